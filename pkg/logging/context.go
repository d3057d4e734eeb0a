package logging

import "context"

type contextKey string

const (
	jobIDKey   contextKey = "promptopt.job_id"
	agentIDKey contextKey = "promptopt.agent_id"
)

// WithJobID annotates a context with the job identifier so that all log
// entries emitted during the job carry it.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// GetJobID extracts the job identifier from a context.
func GetJobID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(jobIDKey).(string)
	return id, ok
}

// WithAgentID annotates a context with the agent identifier.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID)
}

// GetAgentID extracts the agent identifier from a context.
func GetAgentID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(agentIDKey).(string)
	return id, ok
}

package logging

// LogEntry represents a structured log record with fields relevant to
// optimization jobs and agent runs.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Optimization-specific fields
	JobID   string // The job this entry belongs to
	AgentID string // The specialized agent emitting the entry
	Latency int64  // Operation duration in milliseconds

	// General structured data
	Fields map[string]interface{}
}

package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/richpaul1/promptopt/pkg/agents"
	"github.com/richpaul1/promptopt/pkg/ensemble"
	"github.com/richpaul1/promptopt/pkg/errors"
	"github.com/richpaul1/promptopt/pkg/evaluation"
	"github.com/richpaul1/promptopt/pkg/jobs"
)

// Config is the complete configuration for the optimization service.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging,omitempty" validate:"omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty" validate:"omitempty"`
	Evaluator EvaluatorConfig `yaml:"evaluator,omitempty" validate:"omitempty"`
	Ensemble  EnsembleConfig  `yaml:"ensemble,omitempty" validate:"omitempty"`
	Jobs      JobsConfig      `yaml:"jobs,omitempty" validate:"omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error fatal"`
	File  string `yaml:"file,omitempty"`
}

// StorageConfig selects and tunes the job store backend.
type StorageConfig struct {
	Backend string            `yaml:"backend,omitempty" validate:"omitempty,oneof=memory sqlite"`
	SQLite  jobs.SQLiteConfig `yaml:"sqlite,omitempty"`
}

// EvaluatorConfig selects the scoring oracle.
type EvaluatorConfig struct {
	Type           string                     `yaml:"type,omitempty" validate:"omitempty,oneof=heuristic anthropic"`
	Anthropic      evaluation.AnthropicConfig `yaml:"anthropic,omitempty"`
	TimeoutSeconds int                        `yaml:"timeout_seconds,omitempty" validate:"omitempty,min=1"`
	MaxRetries     int                        `yaml:"max_retries,omitempty" validate:"omitempty,min=0"`
}

// EnsembleConfig mirrors the coordinator configuration in YAML form.
type EnsembleConfig struct {
	Agents             []AgentSpecConfig `yaml:"agents,omitempty" validate:"omitempty,dive"`
	ParallelExecution  bool              `yaml:"parallel_execution,omitempty"`
	FusionStrategy     string            `yaml:"fusion_strategy,omitempty" validate:"omitempty,oneof=weighted_voting consensus best_of_breed hybrid"`
	ConsensusThreshold float64           `yaml:"consensus_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	MaxConcurrent      int               `yaml:"max_concurrent,omitempty" validate:"omitempty,min=1"`
	TimeoutMinutes     int               `yaml:"timeout_minutes,omitempty" validate:"omitempty,min=1"`
}

// AgentSpecConfig names one ensemble member and its fusion weight.
type AgentSpecConfig struct {
	Type   string  `yaml:"type" validate:"required,oneof=clarity completeness helpfulness"`
	Weight float64 `yaml:"weight,omitempty" validate:"omitempty,gt=0"`
}

// JobsConfig carries per-job defaults.
type JobsConfig struct {
	MaxIterations int     `yaml:"max_iterations,omitempty" validate:"omitempty,min=1"`
	TargetScore   float64 `yaml:"target_score,omitempty" validate:"omitempty,gt=0,lte=10"`
}

// Default returns the configuration used when no file is given: in-memory
// storage, heuristic scoring, and the full three-agent ensemble.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{Backend: "memory"},
		Evaluator: EvaluatorConfig{
			Type:           "heuristic",
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		Ensemble: EnsembleConfig{
			Agents: []AgentSpecConfig{
				{Type: string(agents.AgentClarity), Weight: 1.0},
				{Type: string(agents.AgentCompleteness), Weight: 1.0},
				{Type: string(agents.AgentHelpfulness), Weight: 1.0},
			},
			ParallelExecution:  true,
			FusionStrategy:     ensemble.StrategyBestOfBreed,
			ConsensusThreshold: 0.8,
			MaxConcurrent:      3,
			TimeoutMinutes:     10,
		},
		Jobs: JobsConfig{
			MaxIterations: 20,
			TargetScore:   8.5,
		},
	}
}

// Load reads a YAML configuration file, fills unset fields with defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to parse config YAML")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	if errs, ok := err.(validator.ValidationErrors); ok {
		var fields []string
		for _, fieldErr := range errs {
			fields = append(fields, fieldErr.Namespace())
		}
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "invalid configuration"),
			errors.Fields{"fields": strings.Join(fields, ", ")},
		)
	}
	return errors.Wrap(err, errors.ValidationFailed, "config validation failed")
}

// EnsembleRuntime converts the YAML form into the coordinator's runtime
// configuration.
func (c *Config) EnsembleRuntime() (ensemble.Config, ensemble.Options) {
	specs := make([]ensemble.AgentSpec, len(c.Ensemble.Agents))
	for i, spec := range c.Ensemble.Agents {
		specs[i] = ensemble.AgentSpec{
			Type:   agents.AgentType(spec.Type),
			Weight: spec.Weight,
		}
	}

	cfg := ensemble.Config{
		Agents:             specs,
		ParallelExecution:  c.Ensemble.ParallelExecution,
		FusionStrategy:     c.Ensemble.FusionStrategy,
		ConsensusThreshold: c.Ensemble.ConsensusThreshold,
		MaxConcurrent:      c.Ensemble.MaxConcurrent,
	}
	opts := ensemble.Options{TimeoutMinutes: c.Ensemble.TimeoutMinutes}
	return cfg, opts
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richpaul1/promptopt/pkg/agents"
	"github.com/richpaul1/promptopt/pkg/config"
	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/datasets"
	"github.com/richpaul1/promptopt/pkg/evaluation"
	"github.com/richpaul1/promptopt/pkg/jobs"
	"github.com/richpaul1/promptopt/pkg/logging"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML configuration file")
		name        = flag.String("name", "prompt-optimization", "job name")
		prompt      = flag.String("prompt", "", "initial prompt to optimize (required)")
		question    = flag.String("question", "", "starting question the prompt must handle (required)")
		datasetPath = flag.String("examples", "", "path to a JSON or parquet training dataset")
		scoreOnly   = flag.Bool("score-only", false, "evaluate the prompt once and exit")
	)
	flag.Parse()

	if *prompt == "" || *question == "" {
		fmt.Fprintln(os.Stderr, "both -prompt and -question are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	setupLogging(cfg.Logging)
	logger := logging.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *name, *prompt, *question, *datasetPath, *scoreOnly); err != nil {
		logger.Error(ctx, "run failed: %v", err)
		os.Exit(1)
	}
}

func setupLogging(cfg config.LoggingConfig) {
	outputs := []logging.Output{logging.NewConsoleOutput(true, logging.WithColor(true))}
	if cfg.File != "" {
		fileOutput, err := logging.NewFileOutput(cfg.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		} else {
			outputs = append(outputs, fileOutput)
		}
	}

	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Level),
		Outputs:  outputs,
	}))
}

func run(ctx context.Context, cfg *config.Config, name, prompt, question, datasetPath string, scoreOnly bool) error {
	evaluator, err := buildEvaluator(cfg.Evaluator)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	var examples []core.TrainingExample
	if datasetPath != "" {
		examples, err = datasets.LoadTrainingExamples(ctx, datasetPath)
		if err != nil {
			return err
		}
	}

	ensembleCfg, options := cfg.EnsembleRuntime()
	service := jobs.NewService(store, evaluator, agents.NewRegistry(), ensembleCfg, options)

	if scoreOnly {
		eval, err := service.EvaluatePrompt(ctx, prompt, question, examples)
		if err != nil {
			return err
		}
		fmt.Printf("overall score: %.2f\n", eval.OverallScore)
		for id, score := range eval.CriteriaScores {
			fmt.Printf("  %-14s %.2f\n", id, score)
		}
		return nil
	}

	jobConfig := core.DefaultJobConfig()
	if cfg.Jobs.MaxIterations > 0 {
		jobConfig.MaxIterations = cfg.Jobs.MaxIterations
	}
	if cfg.Jobs.TargetScore > 0 {
		jobConfig.TargetScore = cfg.Jobs.TargetScore
	}
	jobConfig.ParallelExecution = cfg.Ensemble.ParallelExecution
	if cfg.Ensemble.FusionStrategy != "" {
		jobConfig.FusionStrategy = cfg.Ensemble.FusionStrategy
	}

	job, err := service.CreateJob(ctx, jobs.CreateJobRequest{
		Name:             name,
		StartingQuestion: question,
		InitialPrompt:    prompt,
		Config:           &jobConfig,
		TrainingExamples: examples,
	})
	if err != nil {
		return err
	}

	// Mirror progress to the terminal while the run is active.
	progress, unsubscribe, err := service.SubscribeProgress(ctx, job.ID)
	if err != nil {
		return err
	}
	defer unsubscribe()
	go func() {
		for snapshot := range progress {
			fmt.Printf("\rround %d  iterations %d  best %.2f",
				snapshot.CurrentRound, snapshot.TotalIterations, snapshot.BestScore)
		}
		fmt.Println()
	}()

	done, err := service.RunToCompletion(ctx, job.ID)
	if err != nil {
		return err
	}

	analytics, err := service.Analytics(ctx, job.ID)
	if err != nil {
		return err
	}

	printResults(done, analytics)
	return nil
}

func buildEvaluator(cfg config.EvaluatorConfig) (core.Evaluator, error) {
	var evaluator core.Evaluator
	var err error

	switch cfg.Type {
	case "anthropic":
		evaluator, err = evaluation.NewAnthropicEvaluator(cfg.Anthropic, core.DefaultCriteria())
		if err != nil {
			return nil, err
		}
	default:
		evaluator = evaluation.NewHeuristicEvaluator(nil)
	}

	if cfg.TimeoutSeconds > 0 {
		evaluator = evaluation.WithTimeout(evaluator, time.Duration(cfg.TimeoutSeconds)*time.Second)
	}
	if cfg.MaxRetries > 0 {
		evaluator = evaluation.WithRetries(evaluator, cfg.MaxRetries+1, time.Second)
	}
	return evaluator, nil
}

func buildStore(cfg config.StorageConfig) (jobs.Store, error) {
	if cfg.Backend == "sqlite" {
		return jobs.NewSQLiteStore(cfg.SQLite)
	}
	return jobs.NewMemoryStore(), nil
}

func printResults(job *core.PromptOptimizationJob, analytics *jobs.Analytics) {
	fmt.Println("\n--- optimization finished ---")
	fmt.Printf("status:      %s\n", job.Status)
	if job.FinalResults != nil {
		fmt.Printf("best score:  %.2f\n", job.FinalResults.BestScore)
		fmt.Printf("stopped:     %s\n", job.FinalResults.StoppingReason)
		fmt.Printf("iterations:  %d over %d rounds\n", analytics.TotalIterations, analytics.TotalRounds)
		fmt.Printf("avg score:   %.2f\n", analytics.AverageScore)
		fmt.Printf("duration:    %s\n", analytics.Duration.Round(time.Millisecond))
		fmt.Printf("\nbest prompt:\n%s\n", job.FinalResults.BestPrompt)
	}
}

// Package generator runs one dataset generation end to end: load tools,
// sample subsets, drive the pipeline through the scheduler and finalize the
// output directory.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/toolsgen/internal/config"
	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/metrics"
	"github.com/signalnine/toolsgen/internal/pipeline"
	"github.com/signalnine/toolsgen/internal/prompts"
	"github.com/signalnine/toolsgen/internal/ratelimit"
	"github.com/signalnine/toolsgen/internal/result"
	"github.com/signalnine/toolsgen/internal/runner"
	"github.com/signalnine/toolsgen/internal/sampling"
	"github.com/signalnine/toolsgen/internal/telemetry"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

const promptCacheSize = 256

type Options struct {
	Config    *config.Config
	ToolsPath string
	// Client overrides the OpenAI-compatible client built from Config.
	Client llm.Client
	Logger *slog.Logger
}

type Result struct {
	RunID     string
	OutputDir string
	Manifest  *result.Manifest
	Summary   runner.Summary
	Duration  time.Duration
}

// ErrAborted marks a run that stopped early; the output directory is still
// finalized and consistent.
var ErrAborted = errors.New("run aborted")

// Run generates the dataset described by opts. On a fatal API error or
// cancellation the partial output is finalized and the returned error wraps
// both ErrAborted and the cause.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	g := cfg.Generation
	runID := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", runID)
	start := time.Now()

	tools, err := toolspec.Load(opts.ToolsPath)
	if err != nil {
		return nil, err
	}
	seed := g.SeedOrNow()
	tasks, err := buildTasks(tools, g, seed)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		key := cfg.Models.APIKey()
		if key == "" {
			return nil, fmt.Errorf("no API key: set %s", cfg.Models.APIKeyEnv)
		}
		client = llm.NewOpenAIClient(key, cfg.Models.BaseURL, cfg.Models.Timeout)
	}
	bucket := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
	retrying := llm.NewRetryClient(client, bucket, llm.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		BaseDelay:    cfg.Retry.BaseDelay,
		Factor:       cfg.Retry.Factor,
		MaxDelay:     cfg.Retry.MaxDelay,
		JitterFactor: cfg.Retry.Jitter,
	}, logger)

	builder, err := prompts.NewBuilder(promptCacheSize)
	if err != nil {
		return nil, err
	}
	pipe := pipeline.New(retrying, builder, pipeline.Config{
		ProblemGenerator: modelSettings(cfg.Models.ProblemGenerator),
		ToolCaller:       modelSettings(cfg.Models.ToolCaller),
		Judge:            modelSettings(cfg.Models.Judge),
		Threshold:        cfg.Judge.Threshold,
		RetryOnReject:    g.RetryOnReject,
		JudgeVotes:       cfg.Judge.Votes,
		Language:         g.Language,
		Strategy:         g.Strategy,
	}, logger)

	shutdown, err := telemetry.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	w, err := result.Create(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	logger.Info("generation started",
		"tools", len(tools), "samples", g.NumSamples, "strategy", g.Strategy,
		"seed", seed, "workers", g.NumWorkers, "out", cfg.Output.Dir)

	sched := &runner.Scheduler{
		Workers:   g.NumWorkers,
		BatchSize: g.WorkerBatchSize,
		Target:    g.Target,
		Logger:    logger,
	}
	sum, runErr := sched.Run(ctx, tasks, pipe, w)
	if runErr != nil {
		logger.Error("generation aborted", "error", runErr, "emitted", sum.Emitted)
	}

	m := &result.Manifest{
		NumRequested: g.NumSamples,
		Strategy:     g.Strategy,
		Seed:         seed,
		TrainSplit:   g.TrainSplit,
		ToolsCount:   len(tools),
		Models: result.Models{
			ProblemGenerator: cfg.Models.ProblemGenerator.Model,
			ToolCaller:       cfg.Models.ToolCaller.Model,
			Judge:            cfg.Models.Judge.Model,
		},
		Aborted: runErr != nil,
		RunID:   runID,
	}
	if err := w.Finalize(m); err != nil {
		return nil, errors.Join(runErr, fmt.Errorf("finalizing output: %w", err))
	}
	if cfg.Output.Metrics {
		if err := metrics.WriteTextfile(filepath.Join(cfg.Output.Dir, result.MetricsFile)); err != nil {
			logger.Warn("writing metrics", "error", err)
		}
	}

	res := &Result{
		RunID:     runID,
		OutputDir: cfg.Output.Dir,
		Manifest:  m,
		Summary:   sum,
		Duration:  time.Since(start),
	}
	logger.Info("generation finished",
		"generated", m.NumGenerated, "failed", m.NumFailed,
		"train", m.Splits.Train, "val", m.Splits.Val, "duration", res.Duration.Round(time.Millisecond))
	if runErr != nil {
		return res, fmt.Errorf("%w: %w", ErrAborted, runErr)
	}
	return res, nil
}

func buildTasks(tools []*toolspec.Tool, g config.Generation, seed int64) ([]runner.SampleTask, error) {
	strategy, err := sampling.New(g.Strategy)
	if err != nil {
		return nil, err
	}
	sizing := runner.Sizing{K: g.SubsetSize, Min: g.SubsetMin, Max: g.SubsetMax, Shuffle: g.ShuffleTools}
	if g.NumBatches > 0 {
		batched, err := sampling.NewBatched(strategy, tools, g.NumBatches, g.BatchSize, seed)
		if err != nil {
			return nil, err
		}
		strategy = batched
		sizing.K = g.BatchSize
	}
	return runner.BuildTasks(tools, strategy, sizing, seed, g.NumSamples)
}

func modelSettings(m config.Model) pipeline.ModelSettings {
	return pipeline.ModelSettings{Model: m.Model, Temperature: m.Temperature, MaxTokens: m.MaxTokens}
}

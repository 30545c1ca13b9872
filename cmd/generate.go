package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/signalnine/toolsgen/internal/config"
	"github.com/signalnine/toolsgen/internal/generator"
	"github.com/signalnine/toolsgen/internal/report"
	"github.com/signalnine/toolsgen/internal/result"
)

var (
	flagTools           string
	flagOut             string
	flagNumSamples      int
	flagStrategy        string
	flagSeed            int64
	flagK               int
	flagWorkers         int
	flagWorkerBatchSize int
	flagTrainSplit      float64
	flagTarget          int
	flagLanguage        string
	flagModel           string
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a tool-calling dataset",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
	cmd.Flags().StringVar(&flagTools, "tools", "", "tool definitions file (.json or .yaml)")
	cmd.Flags().StringVar(&flagOut, "out", "", "output directory")
	cmd.Flags().IntVarP(&flagNumSamples, "num", "n", 0, "number of samples to attempt")
	cmd.Flags().StringVar(&flagStrategy, "strategy", "", "sampling strategy (random, param_aware, semantic)")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "run seed")
	cmd.Flags().IntVar(&flagK, "k", 0, "tools per sample")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "concurrent workers")
	cmd.Flags().IntVar(&flagWorkerBatchSize, "worker-batch-size", 0, "tasks per worker chunk")
	cmd.Flags().Float64Var(&flagTrainSplit, "train-split", 0, "fraction of records kept in train.jsonl")
	cmd.Flags().IntVar(&flagTarget, "target", 0, "stop after this many accepted records")
	cmd.Flags().StringVar(&flagLanguage, "language", "", "language of generated requests")
	cmd.Flags().StringVar(&flagModel, "model", "", "model for all three roles")
	_ = cmd.MarkFlagRequired("tools")
	return cmd
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	g := &cfg.Generation
	if f.Changed("out") {
		cfg.Output.Dir = flagOut
	}
	if f.Changed("num") {
		g.NumSamples = flagNumSamples
	}
	if f.Changed("strategy") {
		g.Strategy = flagStrategy
	}
	if f.Changed("seed") {
		seed := flagSeed
		g.Seed = &seed
	}
	if f.Changed("k") {
		g.SubsetSize = flagK
	}
	if f.Changed("workers") {
		g.NumWorkers = flagWorkers
	}
	if f.Changed("worker-batch-size") {
		g.WorkerBatchSize = flagWorkerBatchSize
	}
	if f.Changed("train-split") {
		g.TrainSplit = flagTrainSplit
	}
	if f.Changed("target") {
		g.Target = flagTarget
	}
	if f.Changed("language") {
		g.Language = flagLanguage
	}
	if f.Changed("model") {
		cfg.Models.ProblemGenerator.Model = flagModel
		cfg.Models.ToolCaller.Model = flagModel
		cfg.Models.Judge.Model = flagModel
	}
	return cfg.Validate()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := generator.Run(ctx, generator.Options{
		Config:    cfg,
		ToolsPath: flagTools,
		Logger:    logger,
	})
	if res == nil {
		return runErr
	}
	out := cmd.OutOrStdout()
	printSummary(out, res)
	fmt.Fprintln(out)
	s, err := report.Build(res.OutputDir, nil)
	if err != nil {
		return errors.Join(runErr, err)
	}
	if err := report.Write(s, "table", out); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func printSummary(w io.Writer, res *generator.Result) {
	m := res.Manifest
	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	status := ok("done")
	if m.Aborted {
		status = bad("aborted")
	}
	fmt.Fprintf(w, "%s  %s/%d records accepted", status, ok(m.NumGenerated), m.NumRequested)
	if m.NumFailed > 0 {
		fmt.Fprintf(w, ", %s failed", bad(m.NumFailed))
	}
	fmt.Fprintln(w)
	for _, reason := range result.SortedReasons(m.Failures) {
		fmt.Fprintf(w, "  %-18s %d\n", reason, m.Failures[reason])
	}
	fmt.Fprintf(w, "%s\n", dim(fmt.Sprintf("run %s, seed %d, %s in %s",
		res.RunID, m.Seed, res.OutputDir, res.Duration.Round(time.Millisecond))))
}

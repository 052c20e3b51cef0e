package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/di"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow"
	"github.com/spf13/cobra"
)

const runUsage = "Usage: vqe run <noisemodel_name> <seed> [shots]"

// runArgs are the positional arguments of the run command
type runArgs struct {
	noiseModel string
	seed       int64
	shots      int
}

// parseRunArgs validates positional arguments. shots is zero when omitted.
func parseRunArgs(args []string) (runArgs, error) {
	if len(args) < 2 || len(args) > 3 {
		return runArgs{}, &usageError{msg: runUsage}
	}

	out := runArgs{noiseModel: args[0]}

	seed, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return runArgs{}, &usageError{msg: "Please provide a valid integer for <seed>"}
	}
	out.seed = seed

	if len(args) == 3 {
		shots, err := strconv.Atoi(args[2])
		if err != nil {
			return runArgs{}, &usageError{msg: "Please provide a valid integer for [shots]"}
		}
		if shots <= 0 {
			return runArgs{}, &usageError{msg: "Please provide a positive integer for [shots]"}
		}
		out.shots = shots
	}
	return out, nil
}

// runOptions are the flags of the run command
type runOptions struct {
	noSave bool
	asJSON bool
}

func (a *app) runCmd() *cobra.Command {
	var opts runOptions

	c := &cobra.Command{
		Use:   "run <noisemodel_name> <seed> [shots]",
		Short: "Run the pipeline once and print the accuracy score",
		// Positional validation happens in runPipeline so errors carry the usage text
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd.Context(), args, opts)
		},
	}

	c.Flags().BoolVar(&opts.noSave, "no-save", false, "do not record the run in the run history database")
	c.Flags().BoolVar(&opts.asJSON, "json", false, "print the full run report as JSON")
	return c
}

func (a *app) runPipeline(ctx context.Context, args []string, opts runOptions) error {
	parsed, err := parseRunArgs(args)
	if err != nil {
		return err
	}

	cfg, log, err := a.setup()
	if err != nil {
		return err
	}
	if parsed.shots == 0 {
		parsed.shots = cfg.DefaultShots
	}

	container, err := di.Wire(ctx, cfg, di.Options{RunHistory: !opts.noSave}, log)
	if err != nil {
		return err
	}
	defer container.Close()

	report, err := container.Workflow.Run(ctx, workflow.RunRequest{
		NoiseModel: parsed.noiseModel,
		Seed:       parsed.seed,
		Shots:      parsed.shots,
		Source:     workflow.SourceCLI,
	})
	if domain.IsKind(err, domain.KindArgument) {
		return &usageError{msg: runUsage, cause: err}
	}
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(a.stdout, "Accuracy Score: %f%%\n", report.AccuracyScore())
	return nil
}

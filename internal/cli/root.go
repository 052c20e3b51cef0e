// Package cli implements the command line interface: single pipeline runs,
// the HTTP server and input file generation.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// usageError is reported as a usage line on stdout. A non-nil cause is
// printed to stderr first.
type usageError struct {
	msg   string
	cause error
}

func (e *usageError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.msg
}

func (e *usageError) Unwrap() error { return e.cause }

// app carries what every command needs
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func() (*config.Config, error)
	logLevel   string
}

// Execute runs the CLI against os.Args and exits with its status code.
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the CLI with args and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	return newApp(stdout, stderr, config.Load).execute(args)
}

func newApp(stdout, stderr io.Writer, load func() (*config.Config, error)) *app {
	return &app{stdout: stdout, stderr: stderr, loadConfig: load}
}

func (a *app) execute(args []string) int {
	cmd := a.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	// SIGINT and SIGTERM cancel the running command
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		var ue *usageError
		if errors.As(err, &ue) {
			if ue.cause != nil {
				fmt.Fprintln(a.stderr, "Error:", ue.cause)
			}
			fmt.Fprintln(a.stdout, ue.msg)
		} else {
			fmt.Fprintln(a.stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func (a *app) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vqe [<noisemodel_name> <seed> [shots]]",
		Short:         "Noise-aware VQE ground-state estimation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Bare positional arguments behave like "run"
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd.Context(), args, runOptions{})
		},
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error, disabled)")

	cmd.AddCommand(
		a.runCmd(),
		a.serveCmd(),
		a.initCmd(),
		a.noiseModelCmd(),
		a.hamiltonianCmd(),
		a.moleculeCmd(),
	)
	return cmd
}

// setup loads configuration and builds the logger. Logs go to stderr so
// stdout carries only command output.
func (a *app) setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	log := logger.New(logger.Config{
		Level:  level,
		Pretty: true,
		Output: a.stderr,
	})
	return cfg, log, nil
}

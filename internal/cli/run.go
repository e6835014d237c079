package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cyclegen/internal/collector"
	"cyclegen/internal/config"
	"cyclegen/internal/container"
	"cyclegen/internal/controller"
	"cyclegen/internal/core"
	"cyclegen/internal/data"
	"cyclegen/internal/drivers"
	"cyclegen/internal/funcs"
	"cyclegen/internal/progress"
	"cyclegen/internal/resolver"
	"cyclegen/internal/results"
)

// noTimeout stands in for a session without a timeout.
const noTimeout = 100 * 365 * 24 * time.Hour

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Quiet            bool
	Results          string
	Grace            time.Duration
	ProgressInterval time.Duration

	// HTTPClient overrides the client used by the http driver.
	HTTPClient *http.Client
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <session.yaml>",
		Short: "Run every activity of a session",
		Long: `Run every activity of a session file in one container, wait for them to
finish and print the results.

The session timeout bounds the whole run: activities still running when it
expires are stopped, and after --grace abandoned. Results can also be stored
in SQLite with --results or the session's results.sqlite key.

Exit codes: 0 success, 1 threshold check failed, 2 error.

Example:
  cyclegen run session.yaml
  cyclegen run --format json --results runs.db session.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress progress output")
	cmd.Flags().StringVar(&opts.Results, "results", "", "SQLite database for results, overrides the session")
	cmd.Flags().DurationVar(&opts.Grace, "grace", 5*time.Second, "how long stopped activities may take before they are abandoned")
	cmd.Flags().DurationVar(&opts.ProgressInterval, "progress-interval", time.Second, "time between progress lines")

	return cmd
}

func runSession(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return WrapExitError(ExitError, "failed to load session", err)
	}
	defs, err := cfg.Defs()
	if err != nil {
		return WrapExitError(ExitError, "invalid session", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lib := funcs.NewStandard(data.NewCache(filepath.Dir(path)))
	r := resolver.New(lib, resolver.WithLogger(logger))

	coll := collector.NewCollector()
	sinks := core.StrideSinks{coll}

	var (
		store *results.Store
		sink  *results.Sink
		runID string
	)
	dbPath := opts.Results
	if dbPath == "" {
		dbPath = cfg.Results.SQLite
	}
	if dbPath != "" {
		store, err = results.Open(dbPath, logger)
		if err != nil {
			return WrapExitError(ExitError, "failed to open results", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Error("error closing results", "error", closeErr)
			}
		}()
		runID, err = store.StartRun(ctx, path, time.Now())
		if err != nil {
			return WrapExitError(ExitError, "failed to start run", err)
		}
		sink = store.Sink(runID)
		sinks = append(sinks, sink)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	registry := container.NewRegistry(r, drivers.Standard(client, logger),
		controller.WithSink(sinks),
		controller.WithLogger(logger),
	)
	defer registry.Shutdown()
	ctr := registry.Get(cfg.Container).Controller

	prog := progress.NewProgress(progress.ControllerSource(ctr), opts.Quiet)
	prog.SetOutput(cmd.ErrOrStderr())
	if opts.ProgressInterval > 0 {
		prog.SetInterval(opts.ProgressInterval)
	}

	var interrupted atomic.Bool
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			interrupted.Store(true)
			logger.Info("received signal, stopping activities")
			ctr.StopActivities()
		case <-done:
		}
	}()

	prog.Printf("cyclegen starting: %d activities in container %q", len(defs), cfg.Container)
	prog.Start()

	for _, def := range defs {
		if _, err := ctr.Start(def); err != nil {
			ctr.ForceStopActivities(opts.Grace)
			prog.Stop()
			coll.Close()
			return WrapExitError(ExitError, "failed to start activity", err)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = noTimeout
	}
	complete, runErr := ctr.AwaitCompletion(timeout)
	if !complete {
		logger.Info("session timeout reached, stopping activities", "timeout", cfg.Timeout)
		ctr.ForceStopActivities(opts.Grace)
	}

	prog.Stop()
	coll.Close()

	m := coll.Compute()
	var thresholds *collector.ThresholdResults
	if cfg.Thresholds != nil {
		thresholds = cfg.Thresholds.Check(m)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if err := collector.FormatJSON(out, m, thresholds); err != nil {
			return WrapExitError(ExitError, "failed to write results", err)
		}
	} else {
		collector.FormatText(out, m, thresholds)
	}

	if dropped := coll.DroppedEvents(); dropped > 0 {
		logger.Warn("events reported after the run ended were dropped", "count", dropped)
	}
	if store != nil {
		var passed *bool
		if thresholds != nil {
			passed = &thresholds.Passed
		}
		if err := store.FinishRun(context.Background(), runID, time.Now(), m, passed); err != nil {
			logger.Error("failed to store run summary", "run", runID, "error", err)
		}
		if n := sink.Failed(); n > 0 {
			logger.Warn("some strides were not stored", "run", runID, "count", n)
		}
		logger.Info("results stored", "run", runID, "path", dbPath)
	}

	switch {
	case interrupted.Load():
		return nil
	case runErr != nil:
		return WrapExitError(ExitError, "activity failed", runErr)
	case thresholds != nil && !thresholds.Passed:
		return NewExitError(ExitThresholdFailed, "threshold check failed")
	}
	return nil
}

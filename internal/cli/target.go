package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cyclegen/internal/target"
)

// TargetOptions holds flags for the target command.
type TargetOptions struct {
	*RootOptions
	Addr string

	// ready receives the bound address once the server listens.
	ready chan<- string
}

// NewTargetCommand creates the target command.
func NewTargetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TargetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "target",
		Short: "Serve a local HTTP target for the http driver",
		Long: `Serve a small HTTP service with a key-value store and endpoints that
respond with chosen status codes or delays, for trying sessions locally.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarget(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")

	return cmd
}

func runTarget(opts *TargetOptions, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitError, "failed to listen", err)
	}
	srv := target.NewServer()
	httpSrv := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "target listening on http://%s\n", ln.Addr())
	for _, e := range target.Endpoints {
		fmt.Fprintf(w, "  %s\n", e)
	}
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitError, "server failed", err)
		}
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}
	logger.Info("target stopped", "requests", srv.Requests(), "keys", srv.Len())
	return nil
}

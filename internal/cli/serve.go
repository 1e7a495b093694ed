package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/fpledger/internal/anchor"
	"github.com/roach88/fpledger/internal/api"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// Listener overrides the listener built from Addr (for testing).
	Listener net.Listener
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over HTTP",
		Long: `Open the configured ledger and serve it over HTTP.

Creates the genesis block on first start. When anchor.interval is set the
current tip is also anchored periodically.

Example:
  HMAC_KEY=secret fpledger serve
  fpledger serve --config ./fpledger.yaml --addr :8080 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	s, err := openSession(ctx, opts.RootOptions, f, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	interval, err := s.cfg.AnchorInterval()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid anchor interval", err)
	}
	if interval > 0 && !s.anchors.Empty() {
		sched := anchor.NewScheduler(s.ledger, s.anchors, interval, logger)
		go sched.Run(ctx)
		logger.Info("periodic anchoring enabled", "interval", interval)
	}

	ln := opts.Listener
	if ln == nil {
		addr := opts.Addr
		if addr == "" {
			addr = s.cfg.HTTP.Addr
		}
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, "failed to listen", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Ledger listening on %s\n", ln.Addr())
	if err := api.New(s.ledger, logger).Serve(ctx, ln); err != nil {
		return f.Fail(ExitFailure, ErrCodeServer, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/fpledger/internal/anchor"
	"github.com/roach88/fpledger/internal/config"
	"github.com/roach88/fpledger/internal/ledger"
	"github.com/roach88/fpledger/internal/store"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// newLogger builds the text handler every command logs through.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session is an opened ledger plus everything it holds open.
type session struct {
	cfg     config.Config
	storage *store.Storage
	anchors *anchor.Set
	ledger  *ledger.Ledger
	logger  *slog.Logger
}

// openSession loads config and opens storage, anchors, and the ledger.
// Failures are reported through f and returned as ExitCommandError.
func openSession(ctx context.Context, opts *RootOptions, f *OutputFormatter, logger *slog.Logger) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	logger.Debug("opening storage", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)
	storage, err := store.OpenStorage(cfg.Storage, logger)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStorage, "failed to open storage", err)
	}

	anchors, err := anchor.FromConfig(cfg.Anchor, nil)
	if err != nil {
		storage.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeAnchor, "failed to open anchors", err)
	}

	lopts := []ledger.Option{ledger.WithLogger(logger)}
	if !anchors.Empty() {
		lopts = append(lopts, ledger.WithAnchor(anchors))
	}
	l, err := ledger.New(ctx, cfg, storage.Blocks, storage.Bindings, lopts...)
	if err != nil {
		anchors.Close()
		storage.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeStorage, "failed to open ledger", err)
	}

	return &session{cfg: cfg, storage: storage, anchors: anchors, ledger: l, logger: logger}, nil
}

func (s *session) Close() {
	if err := errors.Join(s.anchors.Close(), s.storage.Close()); err != nil {
		s.logger.Error("error closing ledger", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

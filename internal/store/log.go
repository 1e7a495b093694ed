package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/fpledger/internal/config"
	"github.com/roach88/fpledger/internal/ir"
)

// Errors
var (
	ErrIndexConflict = errors.New("block index does not extend the log")
	ErrCorruptRecord = errors.New("corrupt block record")
	ErrClosed        = errors.New("block log is closed")
)

// BlockLog is the durable, ordered sequence of blocks.
//
// Append must not return until the block is durable. ReadAll returns a
// point-in-time snapshot in index order. Meta derives from the last record.
type BlockLog interface {
	Append(ctx context.Context, b ir.Block) error
	ReadAll(ctx context.Context) ([]ir.Block, error)
	Meta(ctx context.Context) (ir.ChainMeta, error)
	Close() error
}

// Storage bundles the configured block log with the SQLite store that holds
// bindings. With the sqlite driver both are the same database.
type Storage struct {
	Blocks   BlockLog
	Bindings *Store
}

// OpenStorage opens the backend selected by cfg.Driver.
// The file driver keeps bindings in "<path>.bindings.db".
func OpenStorage(cfg config.StorageConfig, logger *slog.Logger) (*Storage, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	switch cfg.Driver {
	case config.DriverSQLite, "":
		s, err := Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Storage{Blocks: s, Bindings: s}, nil
	case config.DriverFile:
		bindings, err := Open(cfg.Path + ".bindings.db")
		if err != nil {
			return nil, err
		}
		fl, err := OpenFileLog(cfg.Path, WithLogger(logger))
		if err != nil {
			bindings.Close()
			return nil, err
		}
		return &Storage{Blocks: fl, Bindings: bindings}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Close closes the block log and, when separate, the bindings store.
func (s *Storage) Close() error {
	err := s.Blocks.Close()
	if st, ok := s.Blocks.(*Store); !ok || st != s.Bindings {
		err = errors.Join(err, s.Bindings.Close())
	}
	return err
}

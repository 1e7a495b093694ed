package anchor

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/fpledger/internal/ir"
)

// MetaSource reports the current chain tip.
type MetaSource interface {
	Meta(ctx context.Context) (ir.ChainMeta, error)
}

// Scheduler anchors the current tip on a fixed interval.
type Scheduler struct {
	source   MetaSource
	anchor   Anchor
	interval time.Duration
	logger   *slog.Logger

	last ir.ChainMeta
}

// NewScheduler creates a scheduler. A nil logger uses slog.Default().
func NewScheduler(source MetaSource, a Anchor, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{source: source, anchor: a, interval: interval, logger: logger}
}

// Run anchors once per interval until ctx is done. Unchanged tips are not
// re-anchored. Always returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one anchoring attempt and reports whether an anchor was written.
func (s *Scheduler) Tick(ctx context.Context) bool {
	meta, err := s.source.Meta(ctx)
	if err != nil {
		s.logger.Warn("anchor scheduler: read meta failed", "error", err)
		return false
	}
	if meta.Height == 0 || meta == s.last {
		return false
	}
	if err := s.anchor.Anchor(ctx, meta); err != nil {
		s.logger.Warn("anchor scheduler: anchor failed", "height", meta.Height, "tip", meta.Tip, "error", err)
		return false
	}
	s.last = meta
	s.logger.Debug("anchored chain tip", "height", meta.Height, "tip", meta.Tip)
	return true
}

package anchor

import (
	"errors"
	"fmt"
	"io"

	"github.com/roach88/fpledger/internal/config"
)

// Set is the group of anchors enabled by configuration.
type Set struct {
	Multi
	closers []io.Closer
}

// FromConfig opens every anchor cfg enables: a FileAnchor when Dir is set
// and a StoreAnchor when DBPath is set. An empty Set is valid and anchors
// nothing.
func FromConfig(cfg config.AnchorConfig, clock Clock) (*Set, error) {
	s := &Set{}
	if cfg.Dir != "" {
		fa, err := NewFileAnchor(cfg.Dir, clock)
		if err != nil {
			return nil, err
		}
		s.Multi = append(s.Multi, fa)
	}
	if cfg.DBPath != "" {
		sa, err := OpenStoreAnchor(cfg.DBPath, clock)
		if err != nil {
			return nil, fmt.Errorf("anchor db %s: %w", cfg.DBPath, err)
		}
		s.Multi = append(s.Multi, sa)
		s.closers = append(s.closers, sa)
	}
	return s, nil
}

// Empty reports whether no anchor is configured.
func (s *Set) Empty() bool {
	return len(s.Multi) == 0
}

// Close releases anchors that hold resources.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

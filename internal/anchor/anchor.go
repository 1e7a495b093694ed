// Package anchor records chain tips in media independent of the block log,
// so later tampering with the log can be detected against an external copy.
//
// Anchoring is best-effort: failures are logged by callers and never undo
// or block an append.
package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/store"
)

// Anchor records a chain tip somewhere outside the block log.
type Anchor interface {
	Anchor(ctx context.Context, meta ir.ChainMeta) error
}

// Clock supplies anchor timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Record is the content of one anchor file.
type Record struct {
	Tip        string `json:"tip"`
	Height     int64  `json:"height"`
	AnchoredAt int64  `json:"anchored_at"`
}

// FileAnchor writes one JSON file per anchor into a directory.
type FileAnchor struct {
	dir   string
	clock Clock
}

// NewFileAnchor creates dir if needed.
func NewFileAnchor(dir string, clock Clock) (*FileAnchor, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create anchor dir: %w", err)
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &FileAnchor{dir: dir, clock: clock}, nil
}

// Anchor writes anchor-<unixms>-<height>.json atomically: the record goes to
// a temp file that is fsynced and then renamed into place.
func (a *FileAnchor) Anchor(ctx context.Context, meta ir.ChainMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := Record{Tip: meta.Tip, Height: meta.Height, AnchoredAt: a.clock.Now().UnixMilli()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("file anchor: %w", err)
	}

	name := fmt.Sprintf("anchor-%013d-%d.json", rec.AnchoredAt, rec.Height)
	tmp, err := os.CreateTemp(a.dir, ".anchor-*.tmp")
	if err != nil {
		return fmt.Errorf("file anchor: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file anchor: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file anchor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file anchor: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(a.dir, name)); err != nil {
		return fmt.Errorf("file anchor: %w", err)
	}
	return nil
}

// Latest reads back the newest anchor file. ok is false when none exist.
func (a *FileAnchor) Latest() (Record, bool, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return Record{}, false, fmt.Errorf("read anchors: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "anchor-") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return Record{}, false, nil
	}
	// Zero-padded timestamps sort lexically; height breaks ties.
	sort.Slice(names, func(i, j int) bool { return lessAnchorName(names[i], names[j]) })

	data, err := os.ReadFile(filepath.Join(a.dir, names[len(names)-1]))
	if err != nil {
		return Record{}, false, fmt.Errorf("read anchor: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode anchor: %w", err)
	}
	return rec, true, nil
}

func lessAnchorName(a, b string) bool {
	var at, ah, bt, bh int64
	fmt.Sscanf(a, "anchor-%d-%d.json", &at, &ah)
	fmt.Sscanf(b, "anchor-%d-%d.json", &bt, &bh)
	if at != bt {
		return at < bt
	}
	return ah < bh
}

// StoreAnchor records tips in a SQLite database separate from the ledger.
type StoreAnchor struct {
	store *store.Store
	clock Clock
}

// OpenStoreAnchor opens (or creates) the anchor database at path.
func OpenStoreAnchor(path string, clock Clock) (*StoreAnchor, error) {
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open anchor store: %w", err)
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &StoreAnchor{store: s, clock: clock}, nil
}

// Anchor inserts a row into the anchors table.
func (a *StoreAnchor) Anchor(ctx context.Context, meta ir.ChainMeta) error {
	return a.store.WriteAnchor(ctx, meta, a.clock.Now().UnixMilli())
}

// Latest returns the highest anchored tip.
func (a *StoreAnchor) Latest(ctx context.Context) (store.AnchorRecord, bool, error) {
	return a.store.LatestAnchor(ctx)
}

// Close closes the anchor database.
func (a *StoreAnchor) Close() error {
	return a.store.Close()
}

// Multi fans one anchor out to several. Every anchor is attempted; the
// errors are joined.
type Multi []Anchor

// Anchor calls each anchor in order.
func (m Multi) Anchor(ctx context.Context, meta ir.ChainMeta) error {
	var errs []error
	for _, a := range m {
		if err := a.Anchor(ctx, meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

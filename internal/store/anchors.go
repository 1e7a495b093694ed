package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fpledger/internal/ir"
)

// AnchorRecord is one externally recorded chain tip.
type AnchorRecord struct {
	Tip        string `json:"tip"`
	Height     int64  `json:"height"`
	AnchoredAt int64  `json:"anchored_at"`
}

// WriteAnchor records meta as anchored at the given Unix millisecond time.
func (s *Store) WriteAnchor(ctx context.Context, meta ir.ChainMeta, at int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anchors (tip, height, anchored_at)
		VALUES (?, ?, ?)
	`, meta.Tip, meta.Height, at)
	if err != nil {
		return fmt.Errorf("write anchor: %w", err)
	}
	return nil
}

// LatestAnchor returns the anchor with the greatest height, newest first on ties.
func (s *Store) LatestAnchor(ctx context.Context) (AnchorRecord, bool, error) {
	var a AnchorRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT tip, height, anchored_at FROM anchors
		ORDER BY height DESC, id DESC
		LIMIT 1
	`).Scan(&a.Tip, &a.Height, &a.AnchoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AnchorRecord{}, false, nil
	}
	if err != nil {
		return AnchorRecord{}, false, fmt.Errorf("read anchor: %w", err)
	}
	return a, true, nil
}

// Anchors returns every anchor in insertion order.
// Returns an empty slice (not nil) if there are none.
func (s *Store) Anchors(ctx context.Context) ([]AnchorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tip, height, anchored_at FROM anchors
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read anchors: %w", err)
	}
	defer rows.Close()

	out := []AnchorRecord{}
	for rows.Next() {
		var a AnchorRecord
		if err := rows.Scan(&a.Tip, &a.Height, &a.AnchoredAt); err != nil {
			return nil, fmt.Errorf("read anchors: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read anchors: %w", err)
	}
	return out, nil
}

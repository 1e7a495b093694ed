package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/ir"
)

// PutBinding inserts b unless a binding for the same public key exists.
// Uses ON CONFLICT(public_key) DO NOTHING so the first binding always wins.
// Returns the binding now stored and whether this call created it.
func (s *Store) PutBinding(ctx context.Context, b ir.Binding) (ir.Binding, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bindings (public_key, fingerprint_hash, curve, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(public_key) DO NOTHING
	`, b.PublicKey, b.FingerprintHash, string(b.Curve), b.CreatedAt)
	if err != nil {
		return ir.Binding{}, false, fmt.Errorf("write binding: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ir.Binding{}, false, fmt.Errorf("write binding: %w", err)
	}
	if n == 1 {
		return b, true, nil
	}

	existing, ok, err := s.GetBinding(ctx, b.PublicKey)
	if err != nil {
		return ir.Binding{}, false, err
	}
	if !ok {
		return ir.Binding{}, false, fmt.Errorf("write binding: conflict on %s but no row found", b.PublicKey)
	}
	return existing, false, nil
}

// GetBinding returns the binding for publicKey.
func (s *Store) GetBinding(ctx context.Context, publicKey string) (ir.Binding, bool, error) {
	var (
		b     ir.Binding
		curve string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT public_key, fingerprint_hash, curve, created_at
		FROM bindings
		WHERE public_key = ?
	`, publicKey).Scan(&b.PublicKey, &b.FingerprintHash, &curve, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Binding{}, false, nil
	}
	if err != nil {
		return ir.Binding{}, false, fmt.Errorf("read binding: %w", err)
	}
	b.Curve = crypto.Curve(curve)
	return b, true, nil
}

// Bindings returns every binding ordered by public key.
// Returns an empty slice (not nil) if there are none.
func (s *Store) Bindings(ctx context.Context) ([]ir.Binding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT public_key, fingerprint_hash, curve, created_at
		FROM bindings
		ORDER BY public_key ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("read bindings: %w", err)
	}
	defer rows.Close()

	out := []ir.Binding{}
	for rows.Next() {
		var (
			b     ir.Binding
			curve string
		)
		if err := rows.Scan(&b.PublicKey, &b.FingerprintHash, &curve, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("read bindings: %w", err)
		}
		b.Curve = crypto.Curve(curve)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bindings: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fpledger/internal/ir"
)

// Append inserts b as the next block. The insert runs in a transaction that
// rejects any index other than the current row count with ErrIndexConflict.
func (s *Store) Append(ctx context.Context, b ir.Block) error {
	record, err := ir.EncodeBlock(b)
	if err != nil {
		return fmt.Errorf("write block: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	defer tx.Rollback()

	var count int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM blocks").Scan(&count); err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	if b.Index != count {
		return fmt.Errorf("write block %d: %w (height %d)", b.Index, ErrIndexConflict, count)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blocks (idx, hash, prev_hash, record)
		VALUES (?, ?, ?, ?)
	`, b.Index, b.Hash, b.PrevHash, string(record))
	if err != nil {
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}
	return nil
}

// ReadAll returns every block in index order.
// Returns an empty slice (not nil) if the log is empty.
func (s *Store) ReadAll(ctx context.Context) ([]ir.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, record FROM blocks
		ORDER BY idx ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	defer rows.Close()

	blocks := []ir.Block{}
	for rows.Next() {
		var (
			idx    int64
			record string
		)
		if err := rows.Scan(&idx, &record); err != nil {
			return nil, fmt.Errorf("read blocks: %w", err)
		}
		b, err := decodeRecord(idx, []byte(record))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	return blocks, nil
}

// Meta decodes the last stored record. Height is its row index plus one.
func (s *Store) Meta(ctx context.Context) (ir.ChainMeta, error) {
	var (
		idx    int64
		record string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT idx, record FROM blocks
		ORDER BY idx DESC
		LIMIT 1
	`).Scan(&idx, &record)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ChainMeta{}, nil
	}
	if err != nil {
		return ir.ChainMeta{}, fmt.Errorf("read meta: %w", err)
	}

	b, err := decodeRecord(idx, []byte(record))
	if err != nil {
		return ir.ChainMeta{}, err
	}
	return ir.ChainMeta{Tip: b.Hash, Height: idx + 1}, nil
}

func decodeRecord(pos int64, data []byte) (ir.Block, error) {
	b, err := ir.DecodeBlock(data)
	if err != nil {
		return ir.Block{}, fmt.Errorf("record %d: %w: %v", pos, ErrCorruptRecord, err)
	}
	return b, nil
}

// Package assembler validates batches of signed transactions and builds the
// next hash-linked block.
//
// Assemble is pure with respect to its inputs: it never mutates the given
// state and never persists anything. The caller appends the returned block
// and, only once that succeeds, adopts the returned state.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/identity"
	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/state"
)

// Clock supplies block timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the block timestamp source.
func WithClock(c Clock) Option {
	return func(a *Assembler) { a.clock = c }
}

// WithMint controls whether kind "mint" transactions are accepted.
func WithMint(allow bool) Option {
	return func(a *Assembler) { a.allowMint = allow }
}

// Assembler turns validated batches into blocks.
type Assembler struct {
	binder    *identity.Binder
	clock     Clock
	allowMint bool
}

// New creates an Assembler that authorizes senders through binder.
func New(binder *identity.Binder, opts ...Option) *Assembler {
	a := &Assembler{binder: binder, clock: SystemClock{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Genesis builds the block at index 0: no transactions, the empty-state
// root, and the all-zero prev hash.
func Genesis(timestamp int64) (ir.Block, error) {
	merkle, err := ir.MerkleRoot(nil)
	if err != nil {
		return ir.Block{}, err
	}
	root, err := state.New().SnapshotRoot()
	if err != nil {
		return ir.Block{}, err
	}
	b := ir.Block{
		Index:        0,
		Timestamp:    timestamp,
		PrevHash:     ir.GenesisPrevHash,
		Transactions: []ir.Transaction{},
		MerkleRoot:   merkle,
		StateRoot:    root,
	}
	if b.Hash, err = ir.BlockHash(b); err != nil {
		return ir.Block{}, err
	}
	return b, nil
}

// Assemble validates txs against tip and st and returns the next block with
// the state it produces. st is not modified. A *ValidationError names the
// first offending transaction.
func (a *Assembler) Assemble(ctx context.Context, tip ir.Block, st *state.State, txs []ir.Transaction) (ir.Block, *state.State, error) {
	if len(txs) == 0 {
		return ir.Block{}, nil, reject(ir.CodeMalformedTransaction, "", "empty batch", nil)
	}

	batch := make([]ir.Transaction, len(txs))
	seen := make(map[string]bool, len(txs))
	lastNonce := make(map[string]int64)
	for i, tx := range txs {
		tx.Kind = tx.Kind.Normalize()
		if err := a.checkShape(tx); err != nil {
			return ir.Block{}, nil, err
		}
		if seen[tx.ID] {
			return ir.Block{}, nil, reject(ir.CodeMalformedTransaction, tx.ID, "duplicate transaction id in batch", nil)
		}
		seen[tx.ID] = true

		if err := a.authorize(ctx, tx); err != nil {
			return ir.Block{}, nil, err
		}

		last, ok := lastNonce[tx.From]
		if !ok {
			last = st.Nonce(tx.From)
		}
		if tx.Nonce <= last {
			return ir.Block{}, nil, reject(ir.CodeNonMonotonicNonce, tx.ID,
				fmt.Sprintf("nonce %d must exceed %d", tx.Nonce, last), nil)
		}
		lastNonce[tx.From] = tx.Nonce
		batch[i] = tx
	}

	next := st.Clone()
	if err := next.ApplyTxs(batch); err != nil {
		var ife *state.InsufficientFundsError
		if errors.As(err, &ife) {
			return ir.Block{}, nil, reject(ir.CodeInsufficientFunds, ife.TxID, ife.Error(), err)
		}
		return ir.Block{}, nil, reject(ir.CodeMalformedTransaction, "", err.Error(), err)
	}

	b := ir.Block{
		Index:        tip.Index + 1,
		Timestamp:    max(a.clock.Now().UnixMilli(), tip.Timestamp),
		PrevHash:     tip.Hash,
		Transactions: batch,
	}
	var err error
	if b.MerkleRoot, err = ir.MerkleRoot(batch); err != nil {
		return ir.Block{}, nil, fmt.Errorf("assemble: %w", err)
	}
	if b.StateRoot, err = next.SnapshotRoot(); err != nil {
		return ir.Block{}, nil, fmt.Errorf("assemble: %w", err)
	}
	if b.Hash, err = ir.BlockHash(b); err != nil {
		return ir.Block{}, nil, fmt.Errorf("assemble: %w", err)
	}
	return b, next, nil
}

func (a *Assembler) checkShape(tx ir.Transaction) error {
	malformed := func(reason string, cause error) error {
		return reject(ir.CodeMalformedTransaction, tx.ID, reason, cause)
	}
	switch {
	case tx.ID == "":
		return malformed("missing id", nil)
	case tx.From == "":
		return malformed("missing from", nil)
	case tx.To == "":
		return malformed("missing to", nil)
	case !tx.Kind.Valid():
		return malformed(fmt.Sprintf("unknown kind %q", tx.Kind), nil)
	case tx.Kind == ir.KindMint && !a.allowMint:
		return malformed("minting is disabled", nil)
	case !tx.Curve.Valid():
		return malformed(fmt.Sprintf("unsupported curve %q", tx.Curve), crypto.ErrUnsupportedCurve)
	}
	// The block log stores strings in NFC; anything else would be checked
	// here as one value and replayed by the verifier as another.
	for _, field := range []struct{ name, value string }{
		{"id", tx.ID},
		{"from", tx.From},
		{"to", tx.To},
		{"amount", tx.Amount},
		{"fingerprint_proof", tx.FingerprintProof},
		{"signature", tx.Signature},
	} {
		if !ir.IsNormalized(field.value) {
			return malformed(field.name+" is not NFC-normalized UTF-8", nil)
		}
	}
	if err := crypto.ValidatePublicKey(tx.Curve, tx.From); err != nil {
		return malformed(err.Error(), err)
	}
	if _, err := state.ParseAmount(tx.Amount); err != nil {
		return malformed(err.Error(), err)
	}
	return nil
}

// authorize checks binding, fingerprint, and signature in that order.
func (a *Assembler) authorize(ctx context.Context, tx ir.Transaction) error {
	bound, err := a.binder.Prove(ctx, tx.From, tx.FingerprintProof)
	switch {
	case errors.Is(err, identity.ErrUnregistered):
		return reject(ir.CodeUnregisteredIdentity, tx.ID, "sender has no binding", err)
	case errors.Is(err, identity.ErrFingerprintMismatch):
		return reject(ir.CodeFingerprintMismatch, tx.ID, "fingerprint proof does not match binding", err)
	case err != nil:
		return fmt.Errorf("authorize tx %s: %w", tx.ID, err)
	}
	if bound.Curve != tx.Curve {
		return reject(ir.CodeMalformedTransaction, tx.ID,
			fmt.Sprintf("curve %s does not match bound curve %s", tx.Curve, bound.Curve), nil)
	}

	ok, err := tx.VerifySignature()
	if err != nil || !ok {
		return reject(ir.CodeBadSignature, tx.ID, "signature does not verify", err)
	}
	return nil
}

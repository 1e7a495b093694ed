// Package verify independently replays a block sequence and checks every
// integrity property of the chain.
//
// A Verifier needs only the blocks, a way to look up bindings, and the HMAC
// key and salt. It never consults cached ledger state.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/fpledger/internal/config"
	"github.com/roach88/fpledger/internal/identity"
	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/state"
	"github.com/roach88/fpledger/internal/store"
)

// IntegrityError is the first failed check. TxID is set for per-transaction
// failures.
type IntegrityError struct {
	Code       ir.ErrorCode
	BlockIndex int64
	TxID       string
	Reason     string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("%s at block %d: %s (tx=%s)", e.Code, e.BlockIndex, e.Reason, e.TxID)
	}
	return fmt.Sprintf("%s at block %d: %s", e.Code, e.BlockIndex, e.Reason)
}

// AsIntegrityError extracts an IntegrityError from err.
// Uses errors.As to handle wrapped errors.
func AsIntegrityError(err error) (*IntegrityError, bool) {
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// BindingLookup resolves a public key to its binding.
type BindingLookup interface {
	GetBinding(ctx context.Context, publicKey string) (ir.Binding, bool, error)
}

// Result is the outcome of a verification run.
// Failure is nil exactly when OK is true.
type Result struct {
	OK      bool            `json:"ok"`
	Height  int64           `json:"height"`
	Tip     string          `json:"tip"`
	Failure *IntegrityError `json:"-"`
}

// Verifier checks chains against one binding source and HMAC secret.
type Verifier struct {
	bindings  BindingLookup
	key       []byte
	salt      []byte
	allowMint bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithMint accepts kind "mint" transactions in the chain. Without it a
// stored mint is an integrity failure, matching a ledger that never mints.
func WithMint(allow bool) Option {
	return func(v *Verifier) { v.allowMint = allow }
}

// New creates a Verifier.
func New(bindings BindingLookup, cfg config.IdentityConfig, opts ...Option) *Verifier {
	v := &Verifier{
		bindings: bindings,
		key:      []byte(cfg.HMACKey),
		salt:     []byte(cfg.HMACSalt),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyLog reads a snapshot of log and verifies it.
func (v *Verifier) VerifyLog(ctx context.Context, log store.BlockLog) (Result, error) {
	blocks, err := log.ReadAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("verify: %w", err)
	}
	return v.Verify(ctx, blocks)
}

// Verify checks blocks in index order and stops at the first failure.
//
// Per block: index, prev_hash, merkle root, each transaction's mint policy,
// binding, fingerprint and signature, state root, then block hash.
//
// An integrity failure is reported in Result, not as an error; the error
// return is reserved for problems reaching the binding source.
func (v *Verifier) Verify(ctx context.Context, blocks []ir.Block) (Result, error) {
	if len(blocks) == 0 {
		return fail(&IntegrityError{
			Code:   ir.CodeChainDiscontinuity,
			Reason: "log is empty: no genesis block",
		}), nil
	}

	st := state.New()
	prev := ir.GenesisPrevHash
	for i, b := range blocks {
		ie, err := v.verifyBlock(ctx, int64(i), prev, b, st)
		if err != nil {
			return Result{}, err
		}
		if ie != nil {
			return fail(ie), nil
		}
		prev = b.Hash
	}

	meta := ir.MetaOf(blocks)
	return Result{OK: true, Height: meta.Height, Tip: meta.Tip}, nil
}

func fail(ie *IntegrityError) Result {
	return Result{OK: false, Failure: ie}
}

// verifyBlock advances st by b's transactions when every check passes.
func (v *Verifier) verifyBlock(ctx context.Context, want int64, prev string, b ir.Block, st *state.State) (*IntegrityError, error) {
	broken := func(code ir.ErrorCode, txID, reason string) *IntegrityError {
		return &IntegrityError{Code: code, BlockIndex: want, TxID: txID, Reason: reason}
	}

	if b.Index != want {
		return broken(ir.CodeChainDiscontinuity, "", fmt.Sprintf("index %d at position %d", b.Index, want)), nil
	}
	if b.PrevHash != prev {
		return broken(ir.CodeChainDiscontinuity, "", "prev_hash does not match previous block hash"), nil
	}

	merkle, err := ir.MerkleRoot(b.Transactions)
	if err != nil || merkle != b.MerkleRoot {
		return broken(ir.CodeMerkleMismatch, "", "merkle root does not match transactions"), nil
	}

	for _, tx := range b.Transactions {
		ie, err := v.verifyTx(ctx, tx)
		if err != nil {
			return nil, err
		}
		if ie != nil {
			ie.BlockIndex = want
			return ie, nil
		}
	}

	if err := st.ApplyTxs(b.Transactions); err != nil {
		return broken(ir.CodeStateRootMismatch, "", fmt.Sprintf("transactions do not replay: %v", err)), nil
	}
	root, err := st.SnapshotRoot()
	if err != nil || root != b.StateRoot {
		return broken(ir.CodeStateRootMismatch, "", "state root does not match replayed balances"), nil
	}

	hash, err := ir.BlockHash(b)
	if err != nil || hash != b.Hash {
		return broken(ir.CodeBlockHashMismatch, "", "block hash does not match contents"), nil
	}
	return nil, nil
}

func (v *Verifier) verifyTx(ctx context.Context, tx ir.Transaction) (*IntegrityError, error) {
	broken := func(code ir.ErrorCode, reason string) *IntegrityError {
		return &IntegrityError{Code: code, TxID: tx.ID, Reason: reason}
	}

	if tx.Kind == ir.KindMint && !v.allowMint {
		return broken(ir.CodeMalformedTransaction, "mint in a chain that does not allow minting"), nil
	}

	bound, ok, err := v.bindings.GetBinding(ctx, tx.From)
	if err != nil {
		return nil, fmt.Errorf("verify tx %s: %w", tx.ID, err)
	}
	if !ok {
		return broken(ir.CodeUnregisteredIdentity, "sender has no binding"), nil
	}
	if !identity.Matches(bound.FingerprintHash, identity.FingerprintHash(v.key, v.salt, tx.FingerprintProof)) {
		return broken(ir.CodeFingerprintMismatch, "fingerprint proof does not match binding"), nil
	}
	if bound.Curve != tx.Curve {
		return broken(ir.CodeBadSignature, "curve does not match binding"), nil
	}
	if ok, err := tx.VerifySignature(); err != nil || !ok {
		return broken(ir.CodeBadSignature, "signature does not verify"), nil
	}
	return nil, nil
}

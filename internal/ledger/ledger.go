// Package ledger is the single writer over a block log.
//
// Ledger serializes registrations and submissions behind one mutex, keeps
// the tip and balance state of the last successful append in memory, and
// triggers a best-effort anchor after every append once that mutex is
// released. Reads (Verify, Meta,
// Account) go to the log for a fresh snapshot and never touch the cache.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/fpledger/internal/anchor"
	"github.com/roach88/fpledger/internal/assembler"
	"github.com/roach88/fpledger/internal/config"
	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/identity"
	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/state"
	"github.com/roach88/fpledger/internal/store"
	"github.com/roach88/fpledger/internal/verify"
)

// Clock is the wall clock shared by genesis, block timestamps, bindings and
// anchors.
type Clock interface {
	Now() time.Time
}

// Option configures a Ledger.
type Option func(*options)

type options struct {
	clock  Clock
	anchor anchor.Anchor
	logger *slog.Logger
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithAnchor anchors the tip after every successful append.
func WithAnchor(a anchor.Anchor) Option {
	return func(o *options) { o.anchor = a }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Account is the balance view of one account.
type Account struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
	Nonce   int64  `json:"nonce"`
}

// Ledger owns the write path of one chain.
//
// Thread-safety: all methods are safe for concurrent use. Register and
// Submit are serialized; Verify, Meta and Account read point-in-time
// snapshots.
type Ledger struct {
	mu       sync.Mutex
	log      store.BlockLog
	binder   *identity.Binder
	asm      *assembler.Assembler
	verifier *verify.Verifier
	anchor   anchor.Anchor
	logger   *slog.Logger

	// head is the tip and state after the last append; nil forces a reload.
	head *head

	// anchorMu guards the post-append anchor queue. It is never held while
	// the anchor runs, and mu is never held while anchoring.
	anchorMu  sync.Mutex
	anchoring bool
	pending   ir.ChainMeta
	anchored  int64
}

type head struct {
	tip   ir.Block
	state *state.State
}

// New opens a ledger over log with bindings in reg. When the log is empty
// a genesis block is appended, stamped with cfg.Ledger.GenesisTimestamp or,
// when that is zero, the current time.
func New(ctx context.Context, cfg config.Config, log store.BlockLog, reg identity.Registry, opts ...Option) (*Ledger, error) {
	o := options{clock: assembler.SystemClock{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	binder := identity.New(reg, cfg.Identity, identity.WithClock(o.clock))
	l := &Ledger{
		log:    log,
		binder: binder,
		asm: assembler.New(binder,
			assembler.WithClock(o.clock),
			assembler.WithMint(cfg.Ledger.AllowMint),
		),
		verifier: verify.New(reg, cfg.Identity, verify.WithMint(cfg.Ledger.AllowMint)),
		anchor:   o.anchor,
		logger:   o.logger,
	}

	meta, err := log.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if meta.Height == 0 {
		ts := cfg.Ledger.GenesisTimestamp
		if ts == 0 {
			ts = o.clock.Now().UnixMilli()
		}
		genesis, err := assembler.Genesis(ts)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		if err := log.Append(ctx, genesis); err != nil {
			return nil, fmt.Errorf("append genesis: %w", err)
		}
		l.head = &head{tip: genesis, state: state.New()}
		l.logger.Info("created genesis block", "hash", genesis.Hash, "timestamp", ts)
		l.anchorTip(ctx, ir.ChainMeta{Tip: genesis.Hash, Height: 1})
	}
	return l, nil
}

// Register binds publicKey to the raw fingerprint. See identity.Binder.Register.
func (l *Ledger) Register(ctx context.Context, publicKey string, curve crypto.Curve, fingerprint string) (ir.Binding, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.binder.Register(ctx, publicKey, curve, fingerprint)
	if err != nil {
		l.logger.Info("registration rejected", "public_key", publicKey, "curve", curve, "error", err)
		return b, err
	}
	l.logger.Debug("registered identity", "public_key", publicKey, "curve", curve)
	return b, nil
}

// Submit validates txs as one batch and appends the resulting block.
//
// A *assembler.ValidationError means nothing was written. Any other error
// comes from storage; the block must then be treated as not acknowledged.
func (l *Ledger) Submit(ctx context.Context, txs ...ir.Transaction) (ir.Block, error) {
	b, err := l.appendBatch(ctx, txs)
	if err != nil {
		return ir.Block{}, err
	}
	l.anchorTip(ctx, ir.ChainMeta{Tip: b.Hash, Height: b.Index + 1})
	return b, nil
}

func (l *Ledger) appendBatch(ctx context.Context, txs []ir.Transaction) (ir.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.current(ctx)
	if err != nil {
		return ir.Block{}, err
	}

	b, next, err := l.asm.Assemble(ctx, h.tip, h.state, txs)
	if err != nil {
		var ve *assembler.ValidationError
		if errors.As(err, &ve) {
			l.logger.Info("submission rejected", "code", ve.Code, "tx", ve.TxID, "reason", ve.Reason)
		}
		return ir.Block{}, err
	}

	if err := l.log.Append(ctx, b); err != nil {
		// The log may or may not hold the block; reload on next use.
		l.head = nil
		return ir.Block{}, fmt.Errorf("append block %d: %w", b.Index, err)
	}
	l.head = &head{tip: b, state: next}
	l.logger.Debug("appended block", "index", b.Index, "hash", b.Hash, "txs", len(b.Transactions))
	return b, nil
}

// current returns the cached head, loading it from the log when needed.
// Caller must hold l.mu.
func (l *Ledger) current(ctx context.Context) (*head, error) {
	if l.head != nil {
		return l.head, nil
	}
	chain, err := store.LoadChain(ctx, l.log)
	if err != nil {
		return nil, err
	}
	tip, ok := chain.Tip()
	if !ok {
		return nil, fmt.Errorf("load chain: log has no genesis block")
	}
	l.head = &head{tip: tip, state: chain.State}
	return l.head, nil
}

// anchorTip records meta with the configured anchor, best effort. Appends
// that land while an anchor is in flight only raise the pending tip; the
// caller already anchoring picks up the newest one when it finishes, so a
// slow anchor delays at most one submitter and never the write lock.
func (l *Ledger) anchorTip(ctx context.Context, meta ir.ChainMeta) {
	if l.anchor == nil {
		return
	}

	l.anchorMu.Lock()
	if meta.Height > l.pending.Height {
		l.pending = meta
	}
	if l.anchoring {
		l.anchorMu.Unlock()
		return
	}
	l.anchoring = true
	for l.pending.Height > l.anchored {
		next := l.pending
		l.anchorMu.Unlock()

		if err := l.anchor.Anchor(ctx, next); err != nil {
			l.logger.Warn("anchor failed", "height", next.Height, "tip", next.Tip, "error", err)
		}

		l.anchorMu.Lock()
		l.anchored = next.Height
	}
	l.anchoring = false
	l.anchorMu.Unlock()
}

// Anchor records the current tip with the configured anchor and returns
// what was anchored. Unlike the post-append anchor, failures are returned.
func (l *Ledger) Anchor(ctx context.Context) (ir.ChainMeta, error) {
	if l.anchor == nil {
		return ir.ChainMeta{}, errors.New("no anchor configured")
	}
	meta, err := l.Meta(ctx)
	if err != nil {
		return ir.ChainMeta{}, err
	}
	if err := l.anchor.Anchor(ctx, meta); err != nil {
		return meta, fmt.Errorf("anchor: %w", err)
	}
	return meta, nil
}

// Verify replays the persisted log from genesis.
func (l *Ledger) Verify(ctx context.Context) (verify.Result, error) {
	return l.verifier.VerifyLog(ctx, l.log)
}

// Meta returns the tip and height from the last stored block.
func (l *Ledger) Meta(ctx context.Context) (ir.ChainMeta, error) {
	return l.log.Meta(ctx)
}

// Account replays the log and reports one account's balance and last nonce.
// Unknown accounts have balance "0" and nonce 0.
func (l *Ledger) Account(ctx context.Context, account string) (Account, error) {
	chain, err := store.LoadChain(ctx, l.log)
	if err != nil {
		return Account{}, err
	}
	return Account{
		Account: account,
		Balance: chain.State.Balance(account),
		Nonce:   chain.State.Nonce(account),
	}, nil
}

// Binding returns the binding for publicKey.
func (l *Ledger) Binding(ctx context.Context, publicKey string) (ir.Binding, bool, error) {
	return l.binder.Lookup(ctx, publicKey)
}

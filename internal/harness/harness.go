package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roach88/fpledger/internal/assembler"
	"github.com/roach88/fpledger/internal/config"
	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/identity"
	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/ledger"
	"github.com/roach88/fpledger/internal/store"
	"github.com/roach88/fpledger/internal/testutil"
)

// Fixed identity secret and genesis time for every scenario run.
const (
	harnessHMACKey   = "harness-key"
	harnessHMACSalt  = "harness-salt"
	GenesisTimestamp = int64(1700000000000)
)

// Outcome codes for registration steps.
const (
	CodeAlreadyBound       = "ALREADY_BOUND"
	CodeInvalidKey         = "INVALID_KEY"
	CodeInvalidFingerprint = "INVALID_FINGERPRINT"
)

type account struct {
	key         crypto.KeyPair
	fingerprint string
}

// Harness executes one scenario against a fresh ledger.
type Harness struct {
	storage  *store.Storage
	ledger   *ledger.Ledger
	accounts map[string]account
	ids      ledger.IDGenerator
	logger   *slog.Logger
}

// Run executes scenario against a new SQLite ledger created in dir.
// dir must be empty or hold no ledger.db; tests pass t.TempDir().
//
// Execution flow:
// 1. Derive account keys from their seeds
// 2. Open the ledger with a step clock and fixed HMAC secret
// 3. Execute flow steps, checking each outcome
// 4. Verify the chain and evaluate assertions
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	accounts := make(map[string]account, len(scenario.Accounts))
	for _, spec := range scenario.Accounts {
		curve := crypto.Ed25519
		if spec.Curve != "" {
			curve = crypto.Curve(spec.Curve)
		}
		kp, err := crypto.KeyPairFromSeed(curve, []byte(spec.Seed))
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", spec.Name, err)
		}
		accounts[spec.Name] = account{key: kp, fingerprint: spec.Fingerprint}
	}

	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "ledger.db")}
	cfg.Identity = config.IdentityConfig{HMACKey: harnessHMACKey, HMACSalt: harnessHMACSalt}
	cfg.Anchor = config.AnchorConfig{}
	cfg.Ledger = config.LedgerConfig{AllowMint: scenario.AllowMint, GenesisTimestamp: GenesisTimestamp}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage, err := store.OpenStorage(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer storage.Close()

	l, err := ledger.New(ctx, cfg, storage.Blocks, storage.Bindings,
		ledger.WithClock(testutil.NewStepClock(GenesisTimestamp, time.Second)),
		ledger.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	h := &Harness{
		storage:  storage,
		ledger:   l,
		accounts: accounts,
		ids:      testutil.NewSequentialIDs(scenario.Name),
		logger:   logger,
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
	}

	if err := h.collectFinal(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Ledger: l, Accounts: h.publicKeys(), Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	var (
		ev  TraceEvent
		err error
	)
	switch {
	case step.Register != "":
		ev, err = h.register(ctx, step)
	case step.Submit != nil:
		ev, err = h.submit(ctx, *step.Submit)
	case step.Tamper != nil:
		ev, err = h.tamper(ctx, *step.Tamper)
	}
	if err != nil {
		return err
	}
	result.AddTrace(ev)

	want := step.Expect
	if want == "" && step.Tamper == nil {
		want = OutcomeAccepted
	}
	if step.Tamper == nil && ev.Outcome != want {
		result.AddError(fmt.Sprintf("flow[%d]: expected %s, got %s", i, want, ev.Outcome))
	}

	h.logger.Info("step completed", "step", i, "op", ev.Op, "outcome", ev.Outcome)
	return nil
}

func (h *Harness) register(ctx context.Context, step Step) (TraceEvent, error) {
	a := h.accounts[step.Register]
	fp := step.Fingerprint
	if fp == "" {
		fp = a.fingerprint
	}

	ev := TraceEvent{Op: OpRegister, Account: step.Register, Outcome: OutcomeAccepted}
	_, err := h.ledger.Register(ctx, a.key.PublicKey, a.key.Curve, fp)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrAlreadyBound):
		ev.Outcome = CodeAlreadyBound
	case errors.Is(err, crypto.ErrInvalidKey), errors.Is(err, crypto.ErrUnsupportedCurve):
		ev.Outcome = CodeInvalidKey
	case errors.Is(err, identity.ErrInvalidFingerprint):
		ev.Outcome = CodeInvalidFingerprint
	default:
		return TraceEvent{}, fmt.Errorf("register %s: %w", step.Register, err)
	}
	return ev, nil
}

func (h *Harness) submit(ctx context.Context, s TxStep) (TraceEvent, error) {
	a := h.accounts[s.From]
	id := s.ID
	if id == "" {
		id = h.ids.Generate()
	}
	to := s.To
	if target, ok := h.accounts[s.To]; ok {
		to = target.key.PublicKey
	}
	proof := s.Proof
	if proof == "" {
		proof = a.fingerprint
	}

	tx := ir.Transaction{
		ID:               id,
		Kind:             ir.TxKind(s.Kind),
		From:             a.key.PublicKey,
		To:               to,
		Amount:           s.Amount,
		Nonce:            s.Nonce,
		FingerprintProof: proof,
		Curve:            a.key.Curve,
	}
	signed, err := tx.Sign(a.key.PrivateKey)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("sign %s: %w", id, err)
	}
	if s.CorruptSignature {
		signed.Signature = flipHex(signed.Signature)
	}

	ev := TraceEvent{Op: OpSubmit, Account: s.From, TxID: id, Outcome: OutcomeAccepted}
	b, err := h.ledger.Submit(ctx, signed)
	if err != nil {
		code, ok := assembler.CodeOf(err)
		if !ok {
			return TraceEvent{}, fmt.Errorf("submit %s: %w", id, err)
		}
		ev.Outcome = string(code)
		return ev, nil
	}
	ev.Block = b.Index
	return ev, nil
}

// tamper rewrites one transaction field in a stored block record.
func (h *Harness) tamper(ctx context.Context, t TamperStep) (TraceEvent, error) {
	db := h.storage.Bindings.DB()

	var record string
	if err := db.QueryRowContext(ctx, "SELECT record FROM blocks WHERE idx = ?", t.Block).Scan(&record); err != nil {
		return TraceEvent{}, fmt.Errorf("read block %d: %w", t.Block, err)
	}
	b, err := ir.DecodeBlock([]byte(record))
	if err != nil {
		return TraceEvent{}, err
	}
	if t.Tx < 0 || t.Tx >= len(b.Transactions) {
		return TraceEvent{}, fmt.Errorf("block %d has no transaction %d", t.Block, t.Tx)
	}

	tx := &b.Transactions[t.Tx]
	switch t.Field {
	case "amount":
		tx.Amount = t.Value
	case "to":
		tx.To = t.Value
	case "nonce":
		n, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return TraceEvent{}, fmt.Errorf("tamper nonce: %w", err)
		}
		tx.Nonce = n
	case "signature":
		tx.Signature = flipHex(tx.Signature)
	}

	data, err := ir.EncodeBlock(b)
	if err != nil {
		return TraceEvent{}, err
	}
	if _, err := db.ExecContext(ctx, "UPDATE blocks SET record = ? WHERE idx = ?", string(data), t.Block); err != nil {
		return TraceEvent{}, fmt.Errorf("rewrite block %d: %w", t.Block, err)
	}
	return TraceEvent{Op: OpTamper, TxID: tx.ID, Outcome: OutcomeTampered, Block: t.Block}, nil
}

func (h *Harness) collectFinal(ctx context.Context, result *Result) error {
	meta, err := h.ledger.Meta(ctx)
	if err != nil {
		return fmt.Errorf("read meta: %w", err)
	}
	res, err := h.ledger.Verify(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	result.Final = FinalState{Height: meta.Height, VerifyOK: res.OK}
	if !res.OK && res.Failure != nil {
		result.Final.VerifyCode = string(res.Failure.Code)
		result.Final.VerifyBlock = res.Failure.BlockIndex
		result.Final.VerifyTxID = res.Failure.TxID
	}
	return nil
}

func (h *Harness) publicKeys() map[string]string {
	keys := make(map[string]string, len(h.accounts))
	for name, a := range h.accounts {
		keys[name] = a.key.PublicKey
	}
	return keys
}

func flipHex(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}

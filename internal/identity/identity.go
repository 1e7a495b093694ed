// Package identity binds public keys to device/browser fingerprints.
//
// A binding stores only a keyed hash of the raw fingerprint. The key and salt
// come from the config passed to New; the raw fingerprint is never persisted.
package identity

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fpledger/internal/config"
	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/ir"
)

// Errors
var (
	ErrAlreadyBound        = errors.New("public key already bound to a different fingerprint")
	ErrUnregistered        = errors.New("public key is not registered")
	ErrFingerprintMismatch = errors.New("fingerprint does not match binding")
	ErrInvalidFingerprint  = errors.New("fingerprint must be NFC-normalized UTF-8")
)

// Registry persists bindings. PutBinding never overwrites: when a binding for
// the key already exists it returns the existing one and created=false.
type Registry interface {
	PutBinding(ctx context.Context, b ir.Binding) (stored ir.Binding, created bool, err error)
	GetBinding(ctx context.Context, publicKey string) (ir.Binding, bool, error)
}

// Clock supplies binding creation times.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Binder.
type Option func(*Binder)

// WithClock overrides the wall clock used for CreatedAt.
func WithClock(c Clock) Option {
	return func(b *Binder) { b.clock = c }
}

// Binder registers and proves fingerprint bindings.
type Binder struct {
	reg   Registry
	key   []byte
	salt  []byte
	clock Clock
}

// New creates a Binder over reg using the HMAC key and salt from cfg.
func New(reg Registry, cfg config.IdentityConfig, opts ...Option) *Binder {
	b := &Binder{
		reg:   reg,
		key:   []byte(cfg.HMACKey),
		salt:  []byte(cfg.HMACSalt),
		clock: systemClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FingerprintHash returns hex(HMAC-SHA256(key, salt || raw)).
func FingerprintHash(key, salt []byte, raw string) string {
	msg := make([]byte, 0, len(salt)+len(raw))
	msg = append(msg, salt...)
	msg = append(msg, raw...)
	return hex.EncodeToString(crypto.HMAC(key, msg))
}

// Matches compares two fingerprint hashes in constant time.
func Matches(bound, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(bound), []byte(candidate)) == 1
}

// Hash commits raw under this binder's key and salt.
func (b *Binder) Hash(raw string) string {
	return FingerprintHash(b.key, b.salt, raw)
}

// Register binds publicKey to raw. The first registration wins: repeating
// it with the same fingerprint is a no-op, a different fingerprint is
// ErrAlreadyBound and the original binding is untouched.
//
// publicKey must be in canonical form (see crypto.ValidatePublicKey) and raw
// must already be NFC, since transactions carrying it are persisted in NFC.
func (b *Binder) Register(ctx context.Context, publicKey string, curve crypto.Curve, raw string) (ir.Binding, error) {
	if err := crypto.ValidatePublicKey(curve, publicKey); err != nil {
		return ir.Binding{}, fmt.Errorf("register: %w", err)
	}
	if !ir.IsNormalized(raw) {
		return ir.Binding{}, fmt.Errorf("register: %w", ErrInvalidFingerprint)
	}

	want := ir.Binding{
		PublicKey:       publicKey,
		FingerprintHash: b.Hash(raw),
		Curve:           curve,
		CreatedAt:       b.clock.Now().UnixMilli(),
	}
	stored, created, err := b.reg.PutBinding(ctx, want)
	if err != nil {
		return ir.Binding{}, fmt.Errorf("register: %w", err)
	}
	if created {
		return stored, nil
	}
	if stored.Curve != curve || !Matches(stored.FingerprintHash, want.FingerprintHash) {
		return stored, ErrAlreadyBound
	}
	return stored, nil
}

// Lookup returns the binding for publicKey.
func (b *Binder) Lookup(ctx context.Context, publicKey string) (ir.Binding, bool, error) {
	return b.reg.GetBinding(ctx, publicKey)
}

// Prove checks that raw is the fingerprint bound to publicKey.
func (b *Binder) Prove(ctx context.Context, publicKey, raw string) (ir.Binding, error) {
	bound, ok, err := b.reg.GetBinding(ctx, publicKey)
	if err != nil {
		return ir.Binding{}, fmt.Errorf("lookup binding: %w", err)
	}
	if !ok {
		return ir.Binding{}, ErrUnregistered
	}
	if !Matches(bound.FingerprintHash, b.Hash(raw)) {
		return bound, ErrFingerprintMismatch
	}
	return bound, nil
}

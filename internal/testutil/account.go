package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/ir"
)

// Account is a deterministic test identity: a key pair derived from a seed
// plus the raw fingerprint it registers with.
type Account struct {
	Key         crypto.KeyPair
	Fingerprint string
}

// NewAccount derives an account from seed. The same seed always yields the
// same keys.
func NewAccount(t testing.TB, curve crypto.Curve, seed, fingerprint string) Account {
	t.Helper()
	kp, err := crypto.KeyPairFromSeed(curve, []byte(seed))
	require.NoError(t, err)
	return Account{Key: kp, Fingerprint: fingerprint}
}

// PublicKey returns the hex public key, which is also the account address.
func (a Account) PublicKey() string {
	return a.Key.PublicKey
}

// Tx builds an unsigned transfer from this account.
func (a Account) Tx(id, to, amount string, nonce int64) ir.Transaction {
	return ir.Transaction{
		ID:               id,
		Kind:             ir.KindTransfer,
		From:             a.Key.PublicKey,
		To:               to,
		Amount:           amount,
		Nonce:            nonce,
		FingerprintProof: a.Fingerprint,
		Curve:            a.Key.Curve,
	}
}

// Sign signs tx with this account's private key.
func (a Account) Sign(t testing.TB, tx ir.Transaction) ir.Transaction {
	t.Helper()
	signed, err := tx.Sign(a.Key.PrivateKey)
	require.NoError(t, err)
	return signed
}

// Transfer builds and signs a transfer in one step.
func (a Account) Transfer(t testing.TB, id, to, amount string, nonce int64) ir.Transaction {
	t.Helper()
	return a.Sign(t, a.Tx(id, to, amount, nonce))
}

// Mint builds and signs a mint crediting to.
func (a Account) Mint(t testing.TB, id, to, amount string, nonce int64) ir.Transaction {
	t.Helper()
	tx := a.Tx(id, to, amount, nonce)
	tx.Kind = ir.KindMint
	return a.Sign(t, tx)
}

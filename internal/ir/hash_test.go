package ir

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fpledger/internal/crypto"
)

func sampleTx() Transaction {
	return Transaction{
		ID:               "tx-1",
		From:             "alice",
		To:               "bob",
		Amount:           "100",
		Nonce:            1,
		FingerprintProof: "browser:abc|device:xyz",
		Curve:            crypto.Ed25519,
	}
}

func sampleBlock() Block {
	tx := sampleTx()
	tx.Kind = KindTransfer
	tx.Signature = "abcd"
	return Block{
		Index:        1,
		Timestamp:    1700000000000,
		PrevHash:     GenesisPrevHash,
		Transactions: []Transaction{tx},
		MerkleRoot:   strings.Repeat("11", 32),
		StateRoot:    strings.Repeat("22", 32),
		Hash:         strings.Repeat("33", 32),
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestSigningBytesGolden(t *testing.T) {
	data, err := sampleTx().SigningBytes()
	require.NoError(t, err)
	newGoldie(t).Assert(t, "tx_signing_bytes", data)
}

func TestSigningBytesExcludeSignature(t *testing.T) {
	a := sampleTx()
	b := sampleTx()
	b.Signature = "deadbeef"

	ab, err := a.SigningBytes()
	require.NoError(t, err)
	bb, err := b.SigningBytes()
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
	assert.NotContains(t, string(bb), "deadbeef")
}

func TestSigningBytesKindDefaultsToTransfer(t *testing.T) {
	a := sampleTx()
	b := sampleTx()
	b.Kind = KindTransfer

	ab, err := a.SigningBytes()
	require.NoError(t, err)
	bb, err := b.SigningBytes()
	require.NoError(t, err)
	assert.Equal(t, ab, bb)

	c := sampleTx()
	c.Kind = KindMint
	cb, err := c.SigningBytes()
	require.NoError(t, err)
	assert.NotEqual(t, ab, cb)
}

func TestTxHashChangesWithEveryField(t *testing.T) {
	base, err := TxHash(sampleTx())
	require.NoError(t, err)

	mutations := map[string]func(*Transaction){
		"id":          func(tx *Transaction) { tx.ID = "tx-2" },
		"kind":        func(tx *Transaction) { tx.Kind = KindMint },
		"from":        func(tx *Transaction) { tx.From = "carol" },
		"to":          func(tx *Transaction) { tx.To = "carol" },
		"amount":      func(tx *Transaction) { tx.Amount = "101" },
		"nonce":       func(tx *Transaction) { tx.Nonce = 2 },
		"fingerprint": func(tx *Transaction) { tx.FingerprintProof = "browser:abc" },
		"curve":       func(tx *Transaction) { tx.Curve = crypto.Secp256k1 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tx := sampleTx()
			mutate(&tx)
			h, err := TxHash(tx)
			require.NoError(t, err)
			assert.NotEqual(t, base, h)
		})
	}
}

func TestMerkleRootOfTransactions(t *testing.T) {
	empty, err := MerkleRoot(nil)
	require.NoError(t, err)
	assert.Equal(t, crypto.Hash(nil).Hex(), empty)

	a := sampleTx()
	b := sampleTx()
	b.ID = "tx-2"

	ha, err := TxHash(a)
	require.NoError(t, err)
	single, err := MerkleRoot([]Transaction{a})
	require.NoError(t, err)
	assert.Equal(t, ha.Hex(), single)

	ab := MustMerkleRoot([]Transaction{a, b})
	ba := MustMerkleRoot([]Transaction{b, a})
	assert.NotEqual(t, ab, ba)
	assert.Equal(t, ab, MustMerkleRoot([]Transaction{a, b}))
}

func TestBlockHashCoversHeaderFields(t *testing.T) {
	base := MustBlockHash(sampleBlock())
	assert.Len(t, base, 64)

	// Hash itself is not part of the preimage.
	b := sampleBlock()
	b.Hash = "other"
	assert.Equal(t, base, MustBlockHash(b))

	mutations := map[string]func(*Block){
		"index":     func(b *Block) { b.Index = 2 },
		"timestamp": func(b *Block) { b.Timestamp++ },
		"prev_hash": func(b *Block) { b.PrevHash = strings.Repeat("ff", 32) },
		"merkle":    func(b *Block) { b.MerkleRoot = strings.Repeat("aa", 32) },
		"state":     func(b *Block) { b.StateRoot = strings.Repeat("aa", 32) },
		"signature": func(b *Block) { b.Transactions[0].Signature = "abce" },
		"amount":    func(b *Block) { b.Transactions[0].Amount = "1000" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := sampleBlock()
			mutate(&b)
			assert.NotEqual(t, base, MustBlockHash(b))
		})
	}
}

func TestMetaOf(t *testing.T) {
	assert.Equal(t, ChainMeta{}, MetaOf(nil))

	b := sampleBlock()
	assert.Equal(t, ChainMeta{Tip: b.Hash, Height: 1}, MetaOf([]Block{b}))
}

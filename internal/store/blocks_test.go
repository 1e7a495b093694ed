package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fpledger/internal/ir"
)

type backend struct {
	name string
	open func(t *testing.T, path string) BlockLog
	ext  string
}

var backends = []backend{
	{
		name: "sqlite",
		ext:  ".db",
		open: func(t *testing.T, path string) BlockLog {
			s, err := Open(path)
			require.NoError(t, err)
			return s
		},
	},
	{
		name: "file",
		ext:  ".jsonl",
		open: func(t *testing.T, path string) BlockLog {
			f, err := OpenFileLog(path)
			require.NoError(t, err)
			return f
		},
	},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend, path string)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b, filepath.Join(t.TempDir(), "ledger"+b.ext))
		})
	}
}

func TestBlockLog_EmptyLog(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, path string) {
		log := b.open(t, path)
		defer log.Close()
		ctx := context.Background()

		blocks, err := log.ReadAll(ctx)
		require.NoError(t, err)
		assert.NotNil(t, blocks)
		assert.Empty(t, blocks)

		meta, err := log.Meta(ctx)
		require.NoError(t, err)
		assert.Equal(t, ir.ChainMeta{}, meta)
	})
}

func TestBlockLog_AppendReadMeta(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, path string) {
		log := b.open(t, path)
		defer log.Close()
		ctx := context.Background()

		for i := int64(0); i < 3; i++ {
			require.NoError(t, log.Append(ctx, testBlock(i)))
		}

		blocks, err := log.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, blocks, 3)
		for i, blk := range blocks {
			assert.Equal(t, testBlock(int64(i)), blk)
		}

		meta, err := log.Meta(ctx)
		require.NoError(t, err)
		assert.Equal(t, ir.ChainMeta{Tip: "hash-2", Height: 3}, meta)
	})
}

func TestBlockLog_RejectsIndexConflict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, path string) {
		log := b.open(t, path)
		defer log.Close()
		ctx := context.Background()

		require.NoError(t, log.Append(ctx, testBlock(0)))

		err := log.Append(ctx, testBlock(0))
		assert.True(t, errors.Is(err, ErrIndexConflict), "duplicate index: %v", err)

		err = log.Append(ctx, testBlock(2))
		assert.True(t, errors.Is(err, ErrIndexConflict), "gap: %v", err)

		blocks, err := log.ReadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, blocks, 1, "rejected appends store nothing")
	})
}

func TestBlockLog_PersistsAcrossReopen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, path string) {
		ctx := context.Background()
		log := b.open(t, path)
		require.NoError(t, log.Append(ctx, testBlock(0)))
		require.NoError(t, log.Append(ctx, testBlock(1)))
		require.NoError(t, log.Close())

		reopened := b.open(t, path)
		defer reopened.Close()

		meta, err := reopened.Meta(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), meta.Height)

		require.NoError(t, reopened.Append(ctx, testBlock(2)))
		blocks, err := reopened.ReadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, blocks, 3)
	})
}

func TestBlockLog_PreservesTransactions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, path string) {
		log := b.open(t, path)
		defer log.Close()
		ctx := context.Background()

		blk := testBlock(0)
		blk.Transactions = []ir.Transaction{{
			ID: "t1", Kind: ir.KindTransfer, From: "a", To: "b", Amount: "5", Nonce: 1,
			FingerprintProof: "browser:abc|device:xyz", Curve: "ed25519", Signature: "ab",
		}}
		require.NoError(t, log.Append(ctx, blk))

		blocks, err := log.ReadAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ir.Block{blk}, blocks)
	})
}

func TestLoadChain(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend, path string) {
		log := b.open(t, path)
		defer log.Close()
		ctx := context.Background()

		empty, err := LoadChain(ctx, log)
		require.NoError(t, err)
		_, ok := empty.Tip()
		assert.False(t, ok)

		genesis := testBlock(0)
		blk := testBlock(1)
		blk.Transactions = []ir.Transaction{{
			ID: "m1", Kind: ir.KindMint, From: "issuer", To: "alice", Amount: "9", Nonce: 1, Curve: "ed25519",
		}}
		require.NoError(t, log.Append(ctx, genesis))
		require.NoError(t, log.Append(ctx, blk))

		chain, err := LoadChain(ctx, log)
		require.NoError(t, err)
		tip, ok := chain.Tip()
		require.True(t, ok)
		assert.Equal(t, blk, tip)
		assert.Equal(t, "9", chain.State.Balance("alice"))
		assert.Equal(t, ir.ChainMeta{Tip: "hash-1", Height: 2}, chain.Meta())
	})
}

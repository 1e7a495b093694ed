package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fpledger/internal/config"
	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/ir"
)

func TestPutBinding_FirstWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := ir.Binding{PublicKey: "pk", FingerprintHash: "aaa", Curve: crypto.Ed25519, CreatedAt: 1}
	stored, created, err := s.PutBinding(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first, stored)

	second := ir.Binding{PublicKey: "pk", FingerprintHash: "bbb", Curve: crypto.Secp256k1, CreatedAt: 2}
	stored, created, err = s.PutBinding(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, stored, "existing binding returned, not overwritten")

	got, ok, err := s.GetBinding(ctx, "pk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestGetBinding_Missing(t *testing.T) {
	s := createTestStore(t)
	_, ok, err := s.GetBinding(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBindings_Sorted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.Bindings(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, pk := range []string{"c", "a", "b"} {
		_, _, err := s.PutBinding(ctx, ir.Binding{PublicKey: pk, FingerprintHash: "h", Curve: crypto.Ed25519})
		require.NoError(t, err)
	}
	all, err := s.Bindings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].PublicKey)
	assert.Equal(t, "c", all[2].PublicKey)
}

func TestAnchors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LatestAnchor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.WriteAnchor(ctx, ir.ChainMeta{Tip: "h1", Height: 1}, 100))
	require.NoError(t, s.WriteAnchor(ctx, ir.ChainMeta{Tip: "h3", Height: 3}, 200))
	require.NoError(t, s.WriteAnchor(ctx, ir.ChainMeta{Tip: "h2", Height: 2}, 300))

	latest, ok, err := s.LatestAnchor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, AnchorRecord{Tip: "h3", Height: 3, AnchoredAt: 200}, latest)

	all, err := s.Anchors(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "h1", all[0].Tip)
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite shares one database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "ledger.db")
		st, err := OpenStorage(config.StorageConfig{Driver: config.DriverSQLite, Path: path}, nil)
		require.NoError(t, err)
		defer st.Close()

		assert.Same(t, st.Bindings, st.Blocks.(*Store))
		require.NoError(t, st.Blocks.Append(ctx, testBlock(0)))
	})

	t.Run("file keeps bindings beside the log", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.jsonl")
		st, err := OpenStorage(config.StorageConfig{Driver: config.DriverFile, Path: path}, nil)
		require.NoError(t, err)

		_, isFile := st.Blocks.(*FileLog)
		assert.True(t, isFile)
		_, _, err = st.Bindings.PutBinding(ctx, ir.Binding{PublicKey: "pk", FingerprintHash: "h", Curve: crypto.Ed25519})
		require.NoError(t, err)
		require.NoError(t, st.Close())

		assert.FileExists(t, path+".bindings.db")
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := OpenStorage(config.StorageConfig{Driver: "postgres", Path: filepath.Join(t.TempDir(), "x")}, nil)
		assert.Error(t, err)
	})
}

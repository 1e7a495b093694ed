package anchor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fpledger/internal/config"
	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/testutil"
)

func TestFileAnchorWritesAndReadsLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "anchors")
	a, err := NewFileAnchor(dir, testutil.NewStepClock(1700000000000, time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := a.Latest()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Anchor(ctx, ir.ChainMeta{Tip: "h1", Height: 1}))
	require.NoError(t, a.Anchor(ctx, ir.ChainMeta{Tip: "h2", Height: 2}))

	rec, ok, err := a.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Record{Tip: "h2", Height: 2, AnchoredAt: 1700000000001}, rec)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2, "no temp files left behind")
	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e.Name(), "anchor-"), e.Name())
	}
}

func TestFileAnchorOrdersByTimeThenHeight(t *testing.T) {
	assert.True(t, lessAnchorName("anchor-0000000000001-9.json", "anchor-0000000000002-1.json"))
	assert.True(t, lessAnchorName("anchor-0000000000001-2.json", "anchor-0000000000001-10.json"))
}

func TestStoreAnchor(t *testing.T) {
	a, err := OpenStoreAnchor(filepath.Join(t.TempDir(), "anchors.db"), testutil.NewStepClock(5, time.Millisecond))
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.Anchor(ctx, ir.ChainMeta{Tip: "h1", Height: 1}))
	require.NoError(t, a.Anchor(ctx, ir.ChainMeta{Tip: "h4", Height: 4}))

	latest, ok, err := a.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h4", latest.Tip)
	assert.Equal(t, int64(6), latest.AnchoredAt)
}

type recordingAnchor struct {
	got []ir.ChainMeta
	err error
}

func (r *recordingAnchor) Anchor(_ context.Context, meta ir.ChainMeta) error {
	r.got = append(r.got, meta)
	return r.err
}

func TestMultiAttemptsEveryAnchor(t *testing.T) {
	failing := &recordingAnchor{err: errors.New("offline")}
	ok := &recordingAnchor{}
	meta := ir.ChainMeta{Tip: "h", Height: 1}

	err := Multi{failing, ok}.Anchor(context.Background(), meta)
	assert.ErrorContains(t, err, "offline")
	assert.Equal(t, []ir.ChainMeta{meta}, ok.got)
	assert.NoError(t, Multi{}.Anchor(context.Background(), meta))
}

type metaSource struct {
	meta ir.ChainMeta
	err  error
}

func (m *metaSource) Meta(context.Context) (ir.ChainMeta, error) { return m.meta, m.err }

func TestSchedulerTick(t *testing.T) {
	src := &metaSource{}
	rec := &recordingAnchor{}
	s := NewScheduler(src, rec, time.Hour, nil)
	ctx := context.Background()

	assert.False(t, s.Tick(ctx), "empty chain is not anchored")

	src.meta = ir.ChainMeta{Tip: "h1", Height: 1}
	assert.True(t, s.Tick(ctx))
	assert.False(t, s.Tick(ctx), "unchanged tip is not re-anchored")

	src.meta = ir.ChainMeta{Tip: "h2", Height: 2}
	rec.err = errors.New("offline")
	assert.False(t, s.Tick(ctx))
	rec.err = nil
	assert.True(t, s.Tick(ctx), "failed anchor is retried")
	assert.Len(t, rec.got, 3)

	src.err = errors.New("read failed")
	assert.False(t, s.Tick(ctx))
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	src := &metaSource{meta: ir.ChainMeta{Tip: "h1", Height: 1}}
	rec := &recordingAnchor{}
	s := NewScheduler(src, rec, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Len(t, rec.got, 1)
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	empty, err := FromConfig(config.AnchorConfig{}, nil)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.NoError(t, empty.Anchor(ctx, ir.ChainMeta{Tip: "h", Height: 1}))
	assert.NoError(t, empty.Close())

	set, err := FromConfig(config.AnchorConfig{
		Dir:    filepath.Join(dir, "anchors"),
		DBPath: filepath.Join(dir, "anchors.db"),
	}, testutil.NewStepClock(1, time.Millisecond))
	require.NoError(t, err)
	defer set.Close()
	require.Len(t, set.Multi, 2)

	require.NoError(t, set.Anchor(ctx, ir.ChainMeta{Tip: "h7", Height: 7}))

	rec, ok, err := set.Multi[0].(*FileAnchor).Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h7", rec.Tip)

	latest, ok, err := set.Multi[1].(*StoreAnchor).Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), latest.Height)
}

package store

import (
	"context"
	"fmt"

	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/state"
)

// Chain is a point-in-time view of a block log with the balance state it
// produces.
type Chain struct {
	Blocks []ir.Block
	State  *state.State
}

// Tip returns the last block. ok is false for an empty log.
func (c Chain) Tip() (ir.Block, bool) {
	if len(c.Blocks) == 0 {
		return ir.Block{}, false
	}
	return c.Blocks[len(c.Blocks)-1], true
}

// Meta summarizes the chain.
func (c Chain) Meta() ir.ChainMeta {
	return ir.MetaOf(c.Blocks)
}

// LoadChain reads every block from log and replays balances from genesis.
// It does not verify hashes or signatures; use the verify package for that.
func LoadChain(ctx context.Context, log BlockLog) (Chain, error) {
	blocks, err := log.ReadAll(ctx)
	if err != nil {
		return Chain{}, fmt.Errorf("load chain: %w", err)
	}
	st, err := state.Replay(blocks)
	if err != nil {
		return Chain{}, fmt.Errorf("load chain: %w", err)
	}
	return Chain{Blocks: blocks, State: st}, nil
}

// Package state tracks account balances and nonces derived from the chain.
package state

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/ir"
)

// Errors
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be a nonnegative decimal integer")
)

// InsufficientFundsError reports the transaction that would overdraw an account.
type InsufficientFundsError struct {
	TxID    string
	Account string
	Balance string
	Amount  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("tx %s: account %s has %s, needs %s", e.TxID, e.Account, e.Balance, e.Amount)
}

// Is makes errors.Is(err, ErrInsufficientFunds) succeed.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// ParseAmount parses a canonical nonnegative decimal integer.
// Leading zeros, signs, and whitespace are rejected so each amount has
// exactly one spelling.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return n, nil
}

// Entry is one account's balance.
type Entry struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// State maps accounts to balances and last-used nonces.
// Accounts never seen have balance 0 and nonce 0.
type State struct {
	balances map[string]*big.Int
	nonces   map[string]int64
}

// New creates an empty state.
func New() *State {
	return &State{
		balances: make(map[string]*big.Int),
		nonces:   make(map[string]int64),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := New()
	for k, v := range s.balances {
		c.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range s.nonces {
		c.nonces[k] = v
	}
	return c
}

// Balance returns the balance of account as a decimal string.
func (s *State) Balance(account string) string {
	if v, ok := s.balances[account]; ok {
		return v.String()
	}
	return "0"
}

// Nonce returns the highest nonce applied for sender, 0 if none.
func (s *State) Nonce(sender string) int64 {
	return s.nonces[sender]
}

// Balances returns every tracked account sorted by account.
func (s *State) Balances() []Entry {
	out := make([]Entry, 0, len(s.balances))
	for k, v := range s.balances {
		out = append(out, Entry{Account: k, Balance: v.String()})
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Account, b.Account) })
	return out
}

// ApplyTxs applies txs in order. On any failure s is left unchanged.
func (s *State) ApplyTxs(txs []ir.Transaction) error {
	staged := s.Clone()
	for _, tx := range txs {
		if err := staged.apply(tx); err != nil {
			return err
		}
	}
	s.balances = staged.balances
	s.nonces = staged.nonces
	return nil
}

func (s *State) apply(tx ir.Transaction) error {
	amount, err := ParseAmount(tx.Amount)
	if err != nil {
		return fmt.Errorf("tx %s: %w", tx.ID, err)
	}

	if tx.Kind.Normalize() != ir.KindMint {
		have := s.balanceOf(tx.From)
		if have.Cmp(amount) < 0 {
			return &InsufficientFundsError{
				TxID:    tx.ID,
				Account: tx.From,
				Balance: have.String(),
				Amount:  tx.Amount,
			}
		}
		s.balances[tx.From] = new(big.Int).Sub(have, amount)
	}
	s.balances[tx.To] = new(big.Int).Add(s.balanceOf(tx.To), amount)

	if tx.Nonce > s.nonces[tx.From] {
		s.nonces[tx.From] = tx.Nonce
	}
	return nil
}

func (s *State) balanceOf(account string) *big.Int {
	if v, ok := s.balances[account]; ok {
		return v
	}
	return new(big.Int)
}

// SnapshotRoot commits to every balance: the canonical encoding of
// [[account, amount], ...] sorted by account, hashed under DomainState.
func (s *State) SnapshotRoot() (string, error) {
	entries := s.Balances()
	arr := make(ir.Array, len(entries))
	for i, e := range entries {
		arr[i] = ir.Array{ir.String(e.Account), ir.String(e.Balance)}
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("snapshot root: %w", err)
	}
	return crypto.HashWithDomain(ir.DomainState, data).Hex(), nil
}

// Replay rebuilds state by applying every block's transactions in order.
func Replay(blocks []ir.Block) (*State, error) {
	s := New()
	for _, b := range blocks {
		if err := s.ApplyTxs(b.Transactions); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", b.Index, err)
		}
	}
	return s, nil
}

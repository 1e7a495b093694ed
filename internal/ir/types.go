package ir

import (
	"strings"

	"github.com/roach88/fpledger/internal/crypto"
)

// GenesisPrevHash is the prev_hash of the block at index 0.
var GenesisPrevHash = strings.Repeat("0", 64)

// TxKind distinguishes ordinary transfers from issuance.
type TxKind string

const (
	// KindTransfer moves amount from one account to another.
	KindTransfer TxKind = "transfer"

	// KindMint credits the recipient without debiting the sender.
	KindMint TxKind = "mint"
)

// Normalize maps the zero value to KindTransfer.
func (k TxKind) Normalize() TxKind {
	if k == "" {
		return KindTransfer
	}
	return k
}

// Valid reports whether k is a known kind after normalization.
func (k TxKind) Valid() bool {
	switch k.Normalize() {
	case KindTransfer, KindMint:
		return true
	}
	return false
}

// Binding commits a public key to the keyed hash of one fingerprint.
// At most one exists per public key and it is never mutated.
type Binding struct {
	PublicKey       string       `json:"public_key"`
	FingerprintHash string       `json:"fingerprint_hash"`
	Curve           crypto.Curve `json:"curve"`
	CreatedAt       int64        `json:"created_at"`
}

// Transaction is a signed value movement.
//
// From is the sender's hex public key. The signature covers SigningBytes,
// the canonical encoding of every other field.
type Transaction struct {
	ID               string       `json:"id" yaml:"id"`
	Kind             TxKind       `json:"kind,omitempty" yaml:"kind,omitempty"`
	From             string       `json:"from" yaml:"from"`
	To               string       `json:"to" yaml:"to"`
	Amount           string       `json:"amount" yaml:"amount"`
	Nonce            int64        `json:"nonce" yaml:"nonce"`
	FingerprintProof string       `json:"fingerprint_proof" yaml:"fingerprint_proof"`
	Curve            crypto.Curve `json:"curve" yaml:"curve"`
	Signature        string       `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// Block is one hash-linked batch of transactions.
type Block struct {
	Index        int64         `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	PrevHash     string        `json:"prev_hash"`
	Transactions []Transaction `json:"transactions"`
	MerkleRoot   string        `json:"merkle_root"`
	StateRoot    string        `json:"state_root"`
	Hash         string        `json:"hash"`
}

// ChainMeta summarizes the stored chain.
// Height is the number of stored blocks; the tip block index is Height-1.
type ChainMeta struct {
	Tip    string `json:"tip"`
	Height int64  `json:"height"`
}

// MetaOf derives ChainMeta from a full block sequence.
func MetaOf(blocks []Block) ChainMeta {
	if len(blocks) == 0 {
		return ChainMeta{}
	}
	return ChainMeta{Tip: blocks[len(blocks)-1].Hash, Height: int64(len(blocks))}
}

func (tx Transaction) signingObject() Object {
	return Object{
		"id":                String(tx.ID),
		"kind":              String(tx.Kind.Normalize()),
		"from":              String(tx.From),
		"to":                String(tx.To),
		"amount":            String(tx.Amount),
		"nonce":             Int(tx.Nonce),
		"fingerprint_proof": String(tx.FingerprintProof),
		"curve":             String(tx.Curve),
	}
}

func (tx Transaction) object() Object {
	obj := tx.signingObject()
	obj["signature"] = String(tx.Signature)
	return obj
}

// SigningBytes returns the canonical bytes a sender signs.
func (tx Transaction) SigningBytes() ([]byte, error) {
	return MarshalCanonical(tx.signingObject())
}

// headerObject covers every block field except hash.
func (b Block) headerObject() Object {
	txs := make(Array, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = tx.object()
	}
	return Object{
		"index":        Int(b.Index),
		"timestamp":    Int(b.Timestamp),
		"prev_hash":    String(b.PrevHash),
		"transactions": txs,
		"merkle_root":  String(b.MerkleRoot),
		"state_root":   String(b.StateRoot),
	}
}

package ir

import (
	"fmt"

	"github.com/roach88/fpledger/internal/crypto"
)

// Domain prefixes for typed commitments.
// Version suffix enables future algorithm migration.
const (
	DomainTx    = "fpledger/tx/v1"
	DomainBlock = "fpledger/block/v1"
	DomainState = "fpledger/state/v1"
)

// TxHash is the Merkle leaf for a transaction.
// The signature is excluded so the leaf names what was authorized.
func TxHash(tx Transaction) (crypto.Digest, error) {
	data, err := tx.SigningBytes()
	if err != nil {
		return crypto.Digest{}, fmt.Errorf("TxHash: failed to marshal: %w", err)
	}
	return crypto.HashWithDomain(DomainTx, data), nil
}

// MerkleRoot computes the hex Merkle root over the transactions' hashes in order.
func MerkleRoot(txs []Transaction) (string, error) {
	leaves := make([]crypto.Digest, len(txs))
	for i, tx := range txs {
		h, err := TxHash(tx)
		if err != nil {
			return "", fmt.Errorf("tx %d: %w", i, err)
		}
		leaves[i] = h
	}
	return crypto.MerkleRoot(leaves).Hex(), nil
}

// BlockHash computes the hash over every block field except Hash itself.
func BlockHash(b Block) (string, error) {
	data, err := MarshalCanonical(b.headerObject())
	if err != nil {
		return "", fmt.Errorf("BlockHash: failed to marshal: %w", err)
	}
	return crypto.HashWithDomain(DomainBlock, data).Hex(), nil
}

// MustBlockHash is like BlockHash but panics on error.
// Use only in tests.
func MustBlockHash(b Block) string {
	h, err := BlockHash(b)
	if err != nil {
		panic(err)
	}
	return h
}

// MustMerkleRoot is like MerkleRoot but panics on error.
// Use only in tests.
func MustMerkleRoot(txs []Transaction) string {
	root, err := MerkleRoot(txs)
	if err != nil {
		panic(err)
	}
	return root
}

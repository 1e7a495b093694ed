package ir

import (
	"fmt"

	"github.com/roach88/fpledger/internal/crypto"
)

// Sign returns a copy of tx signed over its SigningBytes.
// tx.Curve selects the scheme.
func (tx Transaction) Sign(privateKeyHex string) (Transaction, error) {
	msg, err := tx.SigningBytes()
	if err != nil {
		return Transaction{}, fmt.Errorf("sign tx %s: %w", tx.ID, err)
	}
	sig, err := crypto.Sign(tx.Curve, msg, privateKeyHex)
	if err != nil {
		return Transaction{}, fmt.Errorf("sign tx %s: %w", tx.ID, err)
	}
	tx.Signature = sig
	return tx, nil
}

// VerifySignature reports whether tx.Signature was made by tx.From.
func (tx Transaction) VerifySignature() (bool, error) {
	msg, err := tx.SigningBytes()
	if err != nil {
		return false, err
	}
	return crypto.Verify(tx.Curve, msg, tx.Signature, tx.From)
}

package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeBlock returns the canonical persisted record for b, hash included.
// Decoding and re-encoding a record yields identical bytes.
func EncodeBlock(b Block) ([]byte, error) {
	obj := b.headerObject()
	obj["hash"] = String(b.Hash)
	data, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("encode block %d: %w", b.Index, err)
	}
	return data, nil
}

// DecodeBlock parses a persisted block record.
// Unknown fields are rejected so a damaged record cannot decode silently.
func DecodeBlock(data []byte) (Block, error) {
	var b Block
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return Block{}, fmt.Errorf("decode block: %w", err)
	}
	if dec.More() {
		return Block{}, fmt.Errorf("decode block: trailing data")
	}
	if b.Transactions == nil {
		b.Transactions = []Transaction{}
	}
	return b, nil
}

// Package ir defines the ledger's record types and their canonical encoding.
//
// Every byte that is signed, hashed, or persisted goes through
// MarshalCanonical. ir depends only on internal/crypto; every other internal
// package imports ir.
//
// Key constraints:
//   - NO float types anywhere. Amounts are decimal strings, counters are int64.
//   - All JSON tags use snake_case.
//   - Timestamps are Unix milliseconds.
//   - Hashes are lowercase hex SHA-256.
package ir

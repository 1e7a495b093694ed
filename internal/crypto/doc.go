// Package crypto is the ledger's crypto provider.
//
// It owns every primitive the ledger depends on for integrity:
//   - Key generation, signing, and verification for the supported curves
//   - SHA-256 hashing, with and without domain separation
//   - HMAC-SHA256 for fingerprint commitments
//   - Binary Merkle roots over ordered digest lists
//
// Keys and signatures cross package boundaries as lowercase hex strings so they
// can be embedded directly in canonical JSON records.
//
// Supported curves:
//   - ed25519 (Edwards): 32-byte public key, 64-byte private key, signs the raw message
//   - secp256k1 (Koblitz): 33-byte compressed public key, 32-byte scalar, signs
//     SHA-256(message) with RFC 6979 nonces and DER encoding
//
// This package imports nothing internal. All other ledger packages import it.
package crypto

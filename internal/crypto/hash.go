package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DigestSize is the size of every ledger digest in bytes.
const DigestSize = sha256.Size

// Digest is a fixed 256-bit hash value.
type Digest [DigestSize]byte

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return d.Hex()
}

// ParseDigest decodes a 64-character hex string into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("parse digest: want %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Hash computes SHA-256 of data.
func Hash(data []byte) Digest {
	return sha256.Sum256(data)
}

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)

	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// HMAC computes HMAC-SHA256 of message under key.
func HMAC(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// MerkleRoot computes the root of a binary hash tree over leaves.
//
// Parents are SHA256(left || right). At any level with an odd number of
// nodes, the last node is paired with itself. A single leaf is its own root;
// the empty list hashes to SHA256("").
//
// The input slice is not modified.
func MerkleRoot(leaves []Digest) Digest {
	if len(leaves) == 0 {
		return Hash(nil)
	}

	level := make([]Digest, len(leaves))
	copy(level, leaves)

	var pair [2 * DigestSize]byte
	for len(level) > 1 {
		next := make([]Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			copy(pair[:DigestSize], left[:])
			copy(pair[DigestSize:], right[:])
			next = append(next, Hash(pair[:]))
		}
		level = next
	}

	return level[0]
}

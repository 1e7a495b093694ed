package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Errors
var (
	ErrUnsupportedCurve = errors.New("unsupported curve")
	ErrInvalidKey       = errors.New("invalid key")
)

// Curve identifies a signature scheme. Selected per account at registration.
type Curve string

const (
	// Ed25519 is the Edwards curve scheme (RFC 8032).
	Ed25519 Curve = "ed25519"

	// Secp256k1 is the Koblitz curve scheme with ECDSA signatures.
	Secp256k1 Curve = "secp256k1"
)

// Curves lists every supported curve in a stable order.
var Curves = []Curve{Ed25519, Secp256k1}

// ParseCurve validates a curve identifier.
func ParseCurve(s string) (Curve, error) {
	c := Curve(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurve, s)
	}
	return c, nil
}

// Valid reports whether c is a supported curve.
func (c Curve) Valid() bool {
	return c == Ed25519 || c == Secp256k1
}

// KeyPair holds hex-encoded key material for one account.
type KeyPair struct {
	Curve      Curve  `json:"curve" yaml:"curve"`
	PublicKey  string `json:"public_key" yaml:"public_key"`
	PrivateKey string `json:"private_key" yaml:"private_key"`
}

// GenerateKeyPair creates a fresh key pair from the system CSPRNG.
func GenerateKeyPair(curve Curve) (KeyPair, error) {
	switch curve {
	case Ed25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
		}
		return KeyPair{
			Curve:      curve,
			PublicKey:  hex.EncodeToString(pub),
			PrivateKey: hex.EncodeToString(priv),
		}, nil
	case Secp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate secp256k1 key: %w", err)
		}
		return secp256k1Pair(priv), nil
	default:
		return KeyPair{}, fmt.Errorf("%w: %q", ErrUnsupportedCurve, curve)
	}
}

// KeyPairFromSeed derives a key pair deterministically from seed.
// Intended for tests and scenario fixtures; never use a guessable seed in production.
func KeyPairFromSeed(curve Curve, seed []byte) (KeyPair, error) {
	material := Hash(seed)
	switch curve {
	case Ed25519:
		priv := ed25519.NewKeyFromSeed(material[:])
		return KeyPair{
			Curve:      curve,
			PublicKey:  hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
			PrivateKey: hex.EncodeToString(priv),
		}, nil
	case Secp256k1:
		priv := secp256k1.PrivKeyFromBytes(material[:])
		if priv.Key.IsZero() {
			return KeyPair{}, fmt.Errorf("%w: seed derives zero scalar", ErrInvalidKey)
		}
		return secp256k1Pair(priv), nil
	default:
		return KeyPair{}, fmt.Errorf("%w: %q", ErrUnsupportedCurve, curve)
	}
}

func secp256k1Pair(priv *secp256k1.PrivateKey) KeyPair {
	return KeyPair{
		Curve:      Secp256k1,
		PublicKey:  hex.EncodeToString(priv.PubKey().SerializeCompressed()),
		PrivateKey: hex.EncodeToString(priv.Serialize()),
	}
}

// ValidatePublicKey checks that publicKeyHex is key material for curve in
// its canonical spelling: lowercase hex, and the 33-byte compressed point for
// secp256k1. Accounts and bindings are keyed by this string, so any other
// spelling of the same key is rejected.
func ValidatePublicKey(curve Curve, publicKeyHex string) error {
	canonical, err := CanonicalPublicKey(curve, publicKeyHex)
	if err != nil {
		return err
	}
	if canonical != publicKeyHex {
		return fmt.Errorf("%w: %s public key is not canonical, use %s", ErrInvalidKey, curve, canonical)
	}
	return nil
}

// CanonicalPublicKey parses publicKeyHex and re-encodes it in the form
// ValidatePublicKey accepts.
func CanonicalPublicKey(curve Curve, publicKeyHex string) (string, error) {
	switch curve {
	case Ed25519:
		pub, err := parseEd25519Public(publicKeyHex)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(pub), nil
	case Secp256k1:
		pub, err := parseSecp256k1Public(publicKeyHex)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(pub.SerializeCompressed()), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurve, curve)
	}
}

// Sign signs message with a hex-encoded private key and returns a hex signature.
func Sign(curve Curve, message []byte, privateKeyHex string) (string, error) {
	switch curve {
	case Ed25519:
		raw, err := hex.DecodeString(privateKeyHex)
		if err != nil || len(raw) != ed25519.PrivateKeySize {
			return "", fmt.Errorf("%w: ed25519 private key must be %d hex-encoded bytes", ErrInvalidKey, ed25519.PrivateKeySize)
		}
		return hex.EncodeToString(ed25519.Sign(ed25519.PrivateKey(raw), message)), nil
	case Secp256k1:
		raw, err := hex.DecodeString(privateKeyHex)
		if err != nil || len(raw) != secp256k1.PrivKeyBytesLen {
			return "", fmt.Errorf("%w: secp256k1 private key must be %d hex-encoded bytes", ErrInvalidKey, secp256k1.PrivKeyBytesLen)
		}
		priv := secp256k1.PrivKeyFromBytes(raw)
		if priv.Key.IsZero() {
			return "", fmt.Errorf("%w: secp256k1 private key is zero", ErrInvalidKey)
		}
		digest := Hash(message)
		return hex.EncodeToString(ecdsa.Sign(priv, digest[:]).Serialize()), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurve, curve)
	}
}

// Verify reports whether signatureHex is a valid signature of message under publicKeyHex.
//
// A malformed signature is reported as (false, nil): it simply does not verify.
// Malformed public keys and unknown curves are errors.
func Verify(curve Curve, message []byte, signatureHex, publicKeyHex string) (bool, error) {
	switch curve {
	case Ed25519:
		pub, err := parseEd25519Public(publicKeyHex)
		if err != nil {
			return false, err
		}
		sig, err := hex.DecodeString(signatureHex)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return false, nil
		}
		return ed25519.Verify(pub, message, sig), nil
	case Secp256k1:
		pub, err := parseSecp256k1Public(publicKeyHex)
		if err != nil {
			return false, err
		}
		raw, err := hex.DecodeString(signatureHex)
		if err != nil {
			return false, nil
		}
		sig, err := ecdsa.ParseDERSignature(raw)
		if err != nil {
			return false, nil
		}
		digest := Hash(message)
		return sig.Verify(digest[:], pub), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedCurve, curve)
	}
}

func parseEd25519Public(publicKeyHex string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key must be %d hex-encoded bytes", ErrInvalidKey, ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

func parseSecp256k1Public(publicKeyHex string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: secp256k1 public key is not hex", ErrInvalidKey)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

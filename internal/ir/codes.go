package ir

// ErrorCode names why a transaction was rejected or a chain failed
// verification. The set is closed; transports map codes to status values.
type ErrorCode string

const (
	// Raised by the assembler and the verifier.
	CodeUnregisteredIdentity ErrorCode = "UNREGISTERED_IDENTITY"
	CodeFingerprintMismatch  ErrorCode = "FINGERPRINT_MISMATCH"
	CodeBadSignature         ErrorCode = "BAD_SIGNATURE"

	// Raised by the assembler; the verifier reports a mint the chain's
	// policy forbids as malformed.
	CodeMalformedTransaction ErrorCode = "MALFORMED_TRANSACTION"

	// Raised by the assembler only.
	CodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	CodeNonMonotonicNonce ErrorCode = "NON_MONOTONIC_NONCE"

	// Raised by the verifier only.
	CodeChainDiscontinuity ErrorCode = "CHAIN_DISCONTINUITY"
	CodeMerkleMismatch     ErrorCode = "MERKLE_MISMATCH"
	CodeStateRootMismatch  ErrorCode = "STATE_ROOT_MISMATCH"
	CodeBlockHashMismatch  ErrorCode = "BLOCK_HASH_MISMATCH"
)

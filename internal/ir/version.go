package ir

// Version constants for the record format and the binary.
const (
	// RecordVersion is the persisted block record format version.
	RecordVersion = "1"

	// Version is the fpledger release version.
	Version = "0.1.0"
)

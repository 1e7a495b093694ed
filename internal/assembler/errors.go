package assembler

import (
	"errors"
	"fmt"

	"github.com/roach88/fpledger/internal/ir"
)

// ValidationError rejects a batch. TxID names the first offending
// transaction; it is empty for batch-level problems.
type ValidationError struct {
	Code   ir.ErrorCode
	TxID   string
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("%s: %s (tx=%s)", e.Code, e.Reason, e.TxID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func reject(code ir.ErrorCode, txID, reason string, cause error) *ValidationError {
	return &ValidationError{Code: code, TxID: txID, Reason: reason, Err: cause}
}

// CodeOf extracts the validation code from err.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) (ir.ErrorCode, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code, true
	}
	return "", false
}

// IsCode reports whether err is a ValidationError carrying code.
func IsCode(err error, code ir.ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit statuses. A rejected transaction or a chain that fails
// verification is a normal outcome of a ledger command and exits 1; 2 is
// reserved for commands that could not do their job at all.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Codes reported for failures outside the ledger's own ErrorCode set.
// Ledger rejections and integrity failures carry their ir.ErrorCode as is.
const (
	ErrCodeConfig   = "CONFIG_ERROR"
	ErrCodeInput    = "INVALID_INPUT"
	ErrCodeStorage  = "STORAGE_ERROR"
	ErrCodeRemote   = "REMOTE_ERROR"
	ErrCodeAnchor   = "ANCHOR_ERROR"
	ErrCodeServer   = "SERVER_ERROR"
	ErrCodeRejected = "REGISTRATION_REJECTED"
)

// ExitError carries the status the process should exit with. Commands
// return it after the failure has already been written to the formatter,
// so main only has to translate it.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError with no underlying cause.
func NewExitError(code int, message string) *ExitError {
	return WrapExitError(code, message, nil)
}

// WrapExitError attaches an exit status to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit status. Errors that never passed
// through an ExitError count as failures.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// textRenderer is implemented by results with a human-readable form, such
// as the balance and verification tables.
type textRenderer interface {
	renderText(w io.Writer) error
}

// CLIResponse is the envelope every command prints in JSON mode.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command. Code is a ledger ErrorCode or one
// of the ErrCode constants.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results to Writer. Diagnostics from
// VerboseLog go to ErrWriter, so stdout stays a single JSON document in
// JSON mode.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool { return f.Format == FormatJSON }

func (f *OutputFormatter) encode(resp CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(resp)
}

// Success prints a command result.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	if r, ok := data.(textRenderer); ok {
		return r.renderText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error prints a failure. Details are always part of the JSON envelope and
// shown in text mode only with --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// Fail prints a failure whose message includes err and returns the
// ExitError the command should return.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	shown := message
	if err != nil {
		shown += ": " + err.Error()
	}
	_ = f.Error(code, shown, nil)
	return WrapExitError(exitCode, message, err)
}

// VerboseLog prints a diagnostic line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
	}
}

// GetErrWriter returns ErrWriter, or Writer when none is set.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}

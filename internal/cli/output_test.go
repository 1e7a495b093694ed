package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), "output: %s", buf.String())
	return resp
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: FormatJSON, Writer: buf}

	require.NoError(t, f.Success(map[string]string{"tip": "abc"}))
	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"tip": "abc"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		message string
		details any
	}{
		{"without details", "BAD_SIGNATURE", "signature does not verify", nil},
		{"with details", "MERKLE_MISMATCH", "merkle root does not match transactions", map[string]any{"block_index": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: FormatJSON, Writer: buf}

			require.NoError(t, f.Error(tt.code, tt.message, tt.details))
			resp := decodeResponse(t, buf)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, tt.details != nil, resp.Error.Details != nil)
		})
	}
}

func TestOutputFormatter_Text(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: FormatText, Writer: buf}
		require.NoError(t, f.Success("chain verified"))
		assert.Equal(t, "chain verified\n", buf.String())
	})

	t.Run("error hides details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: FormatText, Writer: buf}
		require.NoError(t, f.Error("BAD_SIGNATURE", "signature does not verify", map[string]string{"tx_id": "t1"}))
		assert.Equal(t, "Error [BAD_SIGNATURE]: signature does not verify\n", buf.String())
	})

	t.Run("verbose error shows details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: FormatText, Writer: buf, Verbose: true}
		require.NoError(t, f.Error("STORAGE_ERROR", "block was not stored", map[string]string{"tx_id": "t1"}))
		assert.Contains(t, buf.String(), "Error [STORAGE_ERROR]")
		assert.Contains(t, buf.String(), "Details:")
	})

	t.Run("renderer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: FormatText, Writer: buf}
		require.NoError(t, f.Success(balanceResult{Account: "alice", Balance: "70", Nonce: 2}))
		assert.Contains(t, buf.String(), "alice")
		assert.Contains(t, buf.String(), "70")
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		t.Run(fmt.Sprintf("verbose=%v", verbose), func(t *testing.T) {
			out, diag := &bytes.Buffer{}, &bytes.Buffer{}
			f := &OutputFormatter{Format: FormatJSON, Writer: out, ErrWriter: diag, Verbose: verbose}

			f.VerboseLog("opening %s", "ledger.db")
			assert.Empty(t, out.String(), "diagnostics never reach stdout")
			if verbose {
				assert.Equal(t, "opening ledger.db\n", diag.String())
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}

	// Without an ErrWriter, diagnostics fall back to Writer.
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: FormatText, Writer: buf, Verbose: true}
	f.VerboseLog("replaying %d blocks", 3)
	assert.Equal(t, "replaying 3 blocks\n", buf.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: FormatJSON, Writer: buf}

	cause := errors.New("disk full")
	err := f.Fail(ExitCommandError, ErrCodeStorage, "block was not stored", cause)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "block was not stored: disk full", err.Error())

	resp := decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeStorage, resp.Error.Code)
	assert.Equal(t, "block was not stored: disk full", resp.Error.Message)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad config"))))
	assert.Equal(t, "bad config", NewExitError(ExitCommandError, "bad config").Error())
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/roach88/fpledger/internal/api"
	"github.com/roach88/fpledger/internal/assembler"
	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/ir"
)

type registerResult struct {
	PublicKey       string       `json:"public_key"`
	Curve           crypto.Curve `json:"curve"`
	FingerprintHash string       `json:"fingerprint_hash"`
}

func (r registerResult) renderText(w io.Writer) error {
	pterm.Success.WithWriter(w).Printfln("registered %s key %s", r.Curve, r.PublicKey)
	fmt.Fprintf(w, "fingerprint hash: %s\n", r.FingerprintHash)
	return nil
}

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	KeyFile     string
	Fingerprint string
	Server      string
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Bind a public key to a fingerprint",
		Long: `Register the public key from a key file with a device fingerprint.

The first registration of a key wins; registering it again with a different
fingerprint fails and leaves the original binding in place. Without --server
the configured ledger is opened directly.

Example:
  fpledger register --key alice.key --fingerprint "browser:abc|device:xyz"
  fpledger register --key alice.key --server http://localhost:7070`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.KeyFile, "key", "k", "", "key file written by keygen (required)")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "raw fingerprint (defaults to the key file's)")
	cmd.Flags().StringVar(&opts.Server, "server", "", "ledger server URL (default: open the local ledger)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runRegister(opts *RegisterOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	kf, err := readKeyFile(opts.KeyFile)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid key file", err)
	}
	fp := opts.Fingerprint
	if fp == "" {
		fp = kf.Fingerprint
	}
	if fp == "" {
		return f.Fail(ExitCommandError, ErrCodeInput, "no fingerprint: pass --fingerprint or store one in the key file", nil)
	}

	res := registerResult{PublicKey: kf.PublicKey, Curve: kf.Curve}
	if opts.Server != "" {
		hash, err := api.NewClient(opts.Server).Register(ctx, kf.PublicKey, kf.Curve, fp)
		if err != nil {
			return remoteFailure(f, "registration failed", err)
		}
		res.FingerprintHash = hash
		return f.Success(res)
	}

	s, err := openSession(ctx, opts.RootOptions, f, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.ledger.Register(ctx, kf.PublicKey, kf.Curve, fp)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRejected, "registration failed", err)
	}
	res.FingerprintHash = b.FingerprintHash
	return f.Success(res)
}

type submitResult struct {
	TxID       string `json:"tx_id"`
	Index      int64  `json:"index"`
	Hash       string `json:"hash"`
	PrevHash   string `json:"prev_hash"`
	MerkleRoot string `json:"merkle_root"`
	StateRoot  string `json:"state_root"`
	Timestamp  int64  `json:"timestamp"`
}

func newSubmitResult(txID string, b ir.Block) submitResult {
	return submitResult{
		TxID:       txID,
		Index:      b.Index,
		Hash:       b.Hash,
		PrevHash:   b.PrevHash,
		MerkleRoot: b.MerkleRoot,
		StateRoot:  b.StateRoot,
		Timestamp:  b.Timestamp,
	}
}

func (r submitResult) renderText(w io.Writer) error {
	pterm.Success.WithWriter(w).Printfln("transaction %s accepted in block %d", r.TxID, r.Index)
	return pterm.DefaultTable.WithWriter(w).WithData(pterm.TableData{
		{"index", strconv.FormatInt(r.Index, 10)},
		{"hash", r.Hash},
		{"prev hash", r.PrevHash},
		{"merkle root", r.MerkleRoot},
		{"state root", r.StateRoot},
		{"timestamp", strconv.FormatInt(r.Timestamp, 10)},
	}).Render()
}

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Server string
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit [request.json]",
		Short: "Submit a signed transaction",
		Long: `Submit a signed transaction produced by sign. Reads the request from the
given file, or from stdin when the argument is "-" or omitted.

A rejected transaction exits with code 1 and names the validation code.

Example:
  fpledger sign --key alice.key --to receiver --amount 0 --nonce 1 | fpledger submit
  fpledger submit tx.json --server http://localhost:7070`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runSubmit(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "ledger server URL (default: open the local ledger)")

	return cmd
}

func runSubmit(opts *SubmitOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	req, err := readSubmitRequest(path, cmd.InOrStdin())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid submit request", err)
	}
	tx := req.Transaction()

	if opts.Server != "" {
		b, err := api.NewClient(opts.Server).Submit(ctx, tx)
		if err != nil {
			return remoteFailure(f, "submission failed", err)
		}
		return f.Success(newSubmitResult(tx.ID, b))
	}

	s, err := openSession(ctx, opts.RootOptions, f, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.ledger.Submit(ctx, tx)
	if err != nil {
		var ve *assembler.ValidationError
		if errors.As(err, &ve) {
			_ = f.Error(string(ve.Code), ve.Error(), map[string]string{"tx_id": ve.TxID})
			return WrapExitError(ExitFailure, "transaction rejected", err)
		}
		return f.Fail(ExitCommandError, ErrCodeStorage, "block was not stored", err)
	}
	return f.Success(newSubmitResult(tx.ID, b))
}

func readSubmitRequest(path string, stdin io.Reader) (api.SubmitRequest, error) {
	r := stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return api.SubmitRequest{}, err
		}
		defer file.Close()
		r = file
	}

	var req api.SubmitRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return api.SubmitRequest{}, fmt.Errorf("decode: %w", err)
	}
	return req, nil
}

// remoteFailure reports a server-side rejection with the server's code.
// Validation rejections exit 1; transport problems exit 2.
func remoteFailure(f *OutputFormatter, message string, err error) error {
	var re *api.RemoteError
	if errors.As(err, &re) && re.Code != "" {
		_ = f.Error(re.Code, re.Message, nil)
		if re.Status >= 500 {
			return WrapExitError(ExitCommandError, message, err)
		}
		return WrapExitError(ExitFailure, message, err)
	}
	return f.Fail(ExitCommandError, ErrCodeRemote, message, err)
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/roach88/fpledger/internal/api"
	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/ledger"
)

// KeyFile is the on-disk form of a key pair plus the fingerprint it is
// registered with.
type KeyFile struct {
	crypto.KeyPair
	Fingerprint string `json:"fingerprint,omitempty"`
}

func readKeyFile(path string) (KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyFile{}, fmt.Errorf("read key file: %w", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return KeyFile{}, fmt.Errorf("parse key file %s: %w", path, err)
	}
	if err := crypto.ValidatePublicKey(kf.Curve, kf.PublicKey); err != nil {
		return KeyFile{}, fmt.Errorf("key file %s: %w", path, err)
	}
	return kf, nil
}

type keygenResult struct {
	Curve     crypto.Curve `json:"curve"`
	PublicKey string       `json:"public_key"`
	// PrivateKey is only printed when no --out file is given.
	PrivateKey string `json:"private_key,omitempty"`
	Path       string `json:"path,omitempty"`
}

func (r keygenResult) renderText(w io.Writer) error {
	rows := pterm.TableData{
		{"curve", string(r.Curve)},
		{"public key", r.PublicKey},
	}
	if r.PrivateKey != "" {
		rows = append(rows, []string{"private key", r.PrivateKey})
	}
	if r.Path != "" {
		rows = append(rows, []string{"written to", r.Path})
	}
	return pterm.DefaultTable.WithWriter(w).WithData(rows).Render()
}

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Curve       string
	Out         string
	Fingerprint string
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key pair",
		Long: `Generate a fresh ed25519 or secp256k1 key pair.

With --out the pair is written to a key file (mode 0600) that sign and
register read; otherwise the private key is printed.

Example:
  fpledger keygen --curve ed25519 --out alice.key --fingerprint "browser:abc|device:xyz"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Curve, "curve", string(crypto.Ed25519), "signature curve (ed25519|secp256k1)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the key pair to this file")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "fingerprint to store in the key file")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	curve, err := crypto.ParseCurve(opts.Curve)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid curve", err)
	}
	kp, err := crypto.GenerateKeyPair(curve)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "key generation failed", err)
	}

	res := keygenResult{Curve: kp.Curve, PublicKey: kp.PublicKey}
	if opts.Out == "" {
		res.PrivateKey = kp.PrivateKey
		return f.Success(res)
	}

	data, err := json.MarshalIndent(KeyFile{KeyPair: kp, Fingerprint: opts.Fingerprint}, "", "  ")
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "encode key file", err)
	}
	if err := os.WriteFile(opts.Out, append(data, '\n'), 0o600); err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "write key file", err)
	}
	res.Path = opts.Out
	return f.Success(res)
}

// SignOptions holds flags for the sign command.
type SignOptions struct {
	*RootOptions
	KeyFile     string
	Fingerprint string
	ID          string
	Kind        string
	To          string
	Amount      string
	Nonce       int64
	Out         string

	// IDs overrides the transaction id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs ledger.IDGenerator
}

// NewSignCommand creates the sign command.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Build and sign a transaction",
		Long: `Build a transaction from flags, sign it with a key file, and print the
submit request body ({tx, sig}) that submit and POST /tx/submit accept.

Example:
  fpledger sign --key alice.key --to receiver --amount 100 --nonce 1 > tx.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.KeyFile, "key", "k", "", "key file written by keygen (required)")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "fingerprint proof (defaults to the key file's)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "transaction id (defaults to a new UUIDv7)")
	cmd.Flags().StringVar(&opts.Kind, "kind", string(ir.KindTransfer), "transaction kind (transfer|mint)")
	cmd.Flags().StringVar(&opts.To, "to", "", "recipient account (required)")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "amount as a nonnegative integer (required)")
	cmd.Flags().Int64Var(&opts.Nonce, "nonce", 0, "sender nonce, greater than any previous (required)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the request to this file instead of stdout")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("nonce")

	return cmd
}

func runSign(opts *SignOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	kf, err := readKeyFile(opts.KeyFile)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid key file", err)
	}
	fp := opts.Fingerprint
	if fp == "" {
		fp = kf.Fingerprint
	}
	id := opts.ID
	if id == "" {
		ids := opts.IDs
		if ids == nil {
			ids = ledger.UUIDv7Generator{}
		}
		id = ids.Generate()
	}

	tx := ir.Transaction{
		ID:               id,
		Kind:             ir.TxKind(opts.Kind),
		From:             kf.PublicKey,
		To:               opts.To,
		Amount:           opts.Amount,
		Nonce:            opts.Nonce,
		FingerprintProof: fp,
		Curve:            kf.Curve,
	}
	signed, err := tx.Sign(kf.PrivateKey)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "signing failed", err)
	}

	// The request body is the output in both formats so it can be piped
	// straight into submit.
	data, err := json.MarshalIndent(api.NewSubmitRequest(signed), "", "  ")
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "encode request", err)
	}
	data = append(data, '\n')
	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
			return f.Fail(ExitCommandError, ErrCodeInput, "write request", err)
		}
		f.VerboseLog("signed transaction %s written to %s", id, opts.Out)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/roach88/fpledger/internal/api"
	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/ledger"
)

type verifyResult api.VerifyResponse

func (r verifyResult) renderText(w io.Writer) error {
	pterm.Success.WithWriter(w).Printfln("chain verified: height %d", r.Height)
	fmt.Fprintf(w, "tip: %s\n", r.Tip)
	return nil
}

// ServerOptions holds flags for read commands that can query a server.
type ServerOptions struct {
	*RootOptions
	Server string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay and verify the whole chain",
		Long: `Replay the chain from genesis and check every block: index continuity,
prev hash links, Merkle roots, fingerprint bindings, signatures, state roots
and block hashes.

Exits 0 when the chain is intact and 1 at the first broken check.

Example:
  fpledger verify --config ./fpledger.yaml
  fpledger verify --server http://localhost:7070 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "ledger server URL (default: open the local ledger)")

	return cmd
}

func runVerify(opts *ServerOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	var resp api.VerifyResponse
	if opts.Server != "" {
		var err error
		resp, err = api.NewClient(opts.Server).Verify(ctx)
		if err != nil {
			return remoteFailure(f, "verification failed", err)
		}
	} else {
		s, err := openSession(ctx, opts.RootOptions, f, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := s.ledger.Verify(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStorage, "verification could not run", err)
		}
		resp = api.NewVerifyResponse(res)
	}

	if !resp.OK {
		details := map[string]any{"txId": resp.TxID}
		if resp.BlockIndex != nil {
			details["blockIndex"] = *resp.BlockIndex
		}
		_ = f.Error(resp.Code, resp.Error, details)
		return NewExitError(ExitFailure, fmt.Sprintf("chain verification failed: %s", resp.Code))
	}
	return f.Success(verifyResult(resp))
}

type metaResult ir.ChainMeta

func (r metaResult) renderText(w io.Writer) error {
	return pterm.DefaultTable.WithWriter(w).WithData(pterm.TableData{
		{"height", strconv.FormatInt(r.Height, 10)},
		{"tip", r.Tip},
	}).Render()
}

// NewMetaCommand creates the meta command.
func NewMetaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "meta",
		Short:         "Show the chain tip and height",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeta(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "ledger server URL (default: open the local ledger)")

	return cmd
}

func runMeta(opts *ServerOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	if opts.Server != "" {
		meta, err := api.NewClient(opts.Server).Meta(ctx)
		if err != nil {
			return remoteFailure(f, "meta failed", err)
		}
		return f.Success(metaResult(meta))
	}

	s, err := openSession(ctx, opts.RootOptions, f, newLogger(opts.RootOptions, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer s.Close()

	meta, err := s.ledger.Meta(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStorage, "could not read chain meta", err)
	}
	return f.Success(metaResult(meta))
}

type balanceResult ledger.Account

func (r balanceResult) renderText(w io.Writer) error {
	return pterm.DefaultTable.WithWriter(w).WithData(pterm.TableData{
		{"account", r.Account},
		{"balance", r.Balance},
		{"nonce", strconv.FormatInt(r.Nonce, 10)},
	}).Render()
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account's balance and last nonce",
		Long: `Replay the local ledger and show the balance and highest applied nonce of
one account. Accounts are hex public keys or any recipient string.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)

			s, err := openSession(ctx, rootOpts, f, newLogger(rootOpts, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer s.Close()

			acct, err := s.ledger.Account(ctx, args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStorage, "could not read account", err)
			}
			return f.Success(balanceResult(acct))
		},
	}
}

type anchorResult ir.ChainMeta

func (r anchorResult) renderText(w io.Writer) error {
	pterm.Success.WithWriter(w).Printfln("anchored height %d", r.Height)
	fmt.Fprintf(w, "tip: %s\n", r.Tip)
	return nil
}

// NewAnchorCommand creates the anchor command.
func NewAnchorCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "anchor",
		Short: "Anchor the current chain tip",
		Long: `Record the current tip and height with every anchor enabled in the config:
a JSON file under anchor.dir and a row in the anchor.db_path database.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := commandContext(cmd)

			s, err := openSession(ctx, rootOpts, f, newLogger(rootOpts, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer s.Close()

			meta, err := s.ledger.Anchor(ctx)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeAnchor, "anchoring failed", err)
			}
			return f.Success(anchorResult(meta))
		},
	}
}

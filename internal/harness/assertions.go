package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/fpledger/internal/ledger"
)

// AccountReader is the part of the ledger assertions read from.
type AccountReader interface {
	Account(ctx context.Context, account string) (ledger.Account, error)
}

// AssertionContext provides what balance and nonce assertions need.
type AssertionContext struct {
	Ledger AccountReader
	// Accounts maps declared account names to public keys.
	Accounts map[string]string
	Ctx      context.Context
}

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s -> %s\n", event.Seq, event.Op, event.Account, event.TxID, event.Outcome)
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertBalance, AssertNonce:
		return assertAccount(result, a, actx)
	case AssertHeight:
		return assertHeight(result, a)
	case AssertVerify:
		return assertVerify(result, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertAccount checks a balance or nonce. Names of declared accounts
// resolve to their public keys; anything else is used as the account.
func assertAccount(result *Result, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Ledger == nil {
		return fmt.Errorf("%s assertion requires a ledger", a.Type)
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	id := a.Account
	if key, ok := actx.Accounts[a.Account]; ok {
		id = key
	}
	acct, err := actx.Ledger.Account(ctx, id)
	if err != nil {
		return fmt.Errorf("read account %s: %w", a.Account, err)
	}

	if a.Type == AssertBalance {
		if acct.Balance != a.Expect {
			return &AssertionError{
				Type:     AssertBalance,
				Expected: fmt.Sprintf("%s balance %s", a.Account, a.Expect),
				Actual:   fmt.Sprintf("balance %s", acct.Balance),
				Trace:    result.Trace,
			}
		}
		return nil
	}
	if acct.Nonce != a.Count {
		return &AssertionError{
			Type:     AssertNonce,
			Expected: fmt.Sprintf("%s nonce %d", a.Account, a.Count),
			Actual:   fmt.Sprintf("nonce %d", acct.Nonce),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertHeight(result *Result, a Assertion) error {
	if result.Final.Height != a.Count {
		return &AssertionError{
			Type:     AssertHeight,
			Expected: fmt.Sprintf("height %d", a.Count),
			Actual:   fmt.Sprintf("height %d", result.Final.Height),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertVerify(result *Result, a Assertion) error {
	final := result.Final
	fail := func(expected string) error {
		actual := "ok"
		if !final.VerifyOK {
			actual = fmt.Sprintf("%s at block %d (tx %q)", final.VerifyCode, final.VerifyBlock, final.VerifyTxID)
		}
		return &AssertionError{Type: AssertVerify, Expected: expected, Actual: actual, Trace: result.Trace}
	}

	if *a.OK {
		if !final.VerifyOK {
			return fail("ok")
		}
		return nil
	}
	if final.VerifyOK {
		return fail("verification failure")
	}
	if a.Code != "" && final.VerifyCode != a.Code {
		return fail(a.Code)
	}
	if a.Block != nil && final.VerifyBlock != *a.Block {
		return fail(fmt.Sprintf("failure at block %d", *a.Block))
	}
	return nil
}

// assertTraceCount checks how many steps produced an outcome.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	var count int64
	for _, event := range trace {
		if event.Outcome == a.Outcome {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d steps with outcome %s", a.Count, a.Outcome),
			Actual:   fmt.Sprintf("%d steps", count),
			Trace:    trace,
		}
	}
	return nil
}

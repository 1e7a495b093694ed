package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fpledger/internal/ir"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	return s
}

func TestRun_TestdataScenarios(t *testing.T) {
	for _, name := range []string{"transfer_flow", "tampered_amount", "rebinding_rejected", "rejected_submissions"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(context.Background(), loadTestScenario(t, name), t.TempDir())
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestRun_Golden(t *testing.T) {
	for _, name := range []string{"transfer_flow", "tampered_amount"} {
		t.Run(name, func(t *testing.T) {
			_, err := RunWithGolden(t, loadTestScenario(t, name))
			require.NoError(t, err)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "transfer_flow")

	first, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	second, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Final, second.Final)

	a, err := (&TraceSnapshot{ScenarioName: s.Name, Trace: first.Trace, Final: first.Final}).Canonical()
	require.NoError(t, err)
	b, err := (&TraceSnapshot{ScenarioName: s.Name, Trace: second.Trace, Final: second.Final}).Canonical()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRun_UnexpectedOutcomeFails(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_expectation
description: "A replay expected to be accepted"
accounts:
  - name: alice
    seed: alice
    fingerprint: "browser:abc|device:xyz"
flow:
  - register: alice
  - submit: { from: alice, id: t1, to: receiver, amount: "0", nonce: 1 }
  - submit: { from: alice, id: t2, to: receiver, amount: "0", nonce: 1 }
assertions:
  - type: height
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[2]: expected accepted, got "+string(ir.CodeNonMonotonicNonce))
}

func TestRun_FailedAssertionReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_balance
description: "Balance assertion that does not hold"
allow_mint: true
accounts:
  - name: alice
    seed: alice
    fingerprint: "browser:abc|device:xyz"
flow:
  - register: alice
  - submit: { from: alice, id: m1, kind: mint, to: alice, amount: "5", nonce: 1 }
assertions:
  - type: balance
    account: alice
    expect: "6"
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: balance")
	assert.Contains(t, result.Errors[0], "balance 5")
}

func TestRun_GeneratedIDs(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: ids
description: "Transactions without ids get sequential ones"
accounts:
  - name: alice
    seed: alice
    fingerprint: "browser:abc|device:xyz"
flow:
  - register: alice
  - submit: { from: alice, to: receiver, amount: "0", nonce: 1 }
  - submit: { from: alice, to: receiver, amount: "0", nonce: 2 }
assertions:
  - type: height
    count: 3
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "ids-1", result.Trace[1].TxID)
	assert.Equal(t, "ids-2", result.Trace[2].TxID)
}

func TestRun_TamperSignature(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: tampered_signature
description: "A flipped stored signature is caught on replay"
accounts:
  - name: alice
    curve: secp256k1
    seed: alice
    fingerprint: "browser:abc|device:xyz"
flow:
  - register: alice
  - submit: { from: alice, id: t1, to: receiver, amount: "0", nonce: 1 }
  - tamper: { block: 1, field: signature }
assertions:
  - type: verify
    ok: false
    code: BAD_SIGNATURE
    block: 1
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "t1", result.Final.VerifyTxID)
}

func TestRun_TamperMissingBlock(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: missing_block
description: "Tampering a block that does not exist is a harness error"
flow:
  - tamper: { block: 5, field: amount, value: "1" }
assertions:
  - type: height
    count: 1
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read block 5")
}

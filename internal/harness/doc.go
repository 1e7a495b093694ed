// Package harness runs ledger scenarios described in YAML.
//
// A scenario declares deterministic accounts, a flow of register, submit,
// and tamper steps with the outcome each step must produce, and assertions
// over the final ledger.
//
// # Scenario Format
//
//	name: transfer_flow
//	description: "Mint, transfer, and a rejected replay"
//	allow_mint: true
//	accounts:
//	  - name: alice
//	    curve: ed25519
//	    seed: alice
//	    fingerprint: "browser:abc|device:xyz"
//	flow:
//	  - register: alice
//	  - submit: { from: alice, id: m1, kind: mint, to: alice, amount: "100", nonce: 1 }
//	  - submit: { from: alice, id: t1, to: receiver, amount: "30", nonce: 1 }
//	    expect: NON_MONOTONIC_NONCE
//	  - tamper: { block: 1, field: amount, value: "1000" }
//	assertions:
//	  - type: balance
//	    account: alice
//	    expect: "100"
//	  - type: verify
//	    ok: false
//	    code: MERKLE_MISMATCH
//	    block: 1
//
// A step's expect defaults to "accepted". Any other value is the code the
// step must be rejected with: a validation code for submit, ALREADY_BOUND or
// INVALID_KEY for register. A submit "to" naming a declared account resolves
// to that account's public key.
//
// # Assertion Types
//
//   - balance: an account's balance equals expect
//   - nonce: an account's highest applied nonce equals count
//   - height: the chain height equals count
//   - verify: full verification yields ok, and on failure code and block
//   - trace_count: exactly count steps produced outcome
//
// # Deterministic Testing
//
// Keys are derived from seeds, block timestamps come from a step clock, and
// the HMAC key and salt are fixed, so two runs of a scenario produce
// identical blocks. RunWithGolden compares the step trace against
// testdata/golden/<name>.golden.
package harness

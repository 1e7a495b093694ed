package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fpledger/internal/crypto"
)

// Scenario is a ledger flow plus the assertions its final state must meet.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// AllowMint enables kind "mint" transactions.
	AllowMint bool `yaml:"allow_mint,omitempty"`

	Accounts   []AccountSpec `yaml:"accounts"`
	Flow       []Step        `yaml:"flow"`
	Assertions []Assertion   `yaml:"assertions"`
}

// AccountSpec declares a deterministic identity.
type AccountSpec struct {
	Name        string `yaml:"name"`
	Curve       string `yaml:"curve,omitempty"` // defaults to ed25519
	Seed        string `yaml:"seed"`
	Fingerprint string `yaml:"fingerprint"`
}

// Step is one flow step. Exactly one of Register, Submit, and Tamper is set.
type Step struct {
	// Register names the account to register.
	Register string `yaml:"register,omitempty"`
	// Fingerprint overrides the account's fingerprint for Register.
	Fingerprint string `yaml:"fingerprint,omitempty"`

	Submit *TxStep     `yaml:"submit,omitempty"`
	Tamper *TamperStep `yaml:"tamper,omitempty"`

	// Expect is "accepted" (the default) or the rejection code.
	Expect string `yaml:"expect,omitempty"`
}

// TxStep describes a transaction signed by a declared account.
type TxStep struct {
	From   string `yaml:"from"`
	ID     string `yaml:"id,omitempty"` // generated when empty
	Kind   string `yaml:"kind,omitempty"`
	To     string `yaml:"to"`
	Amount string `yaml:"amount"`
	Nonce  int64  `yaml:"nonce"`
	// Proof overrides the fingerprint proof; defaults to the account's.
	Proof string `yaml:"proof,omitempty"`
	// CorruptSignature flips a signature byte after signing.
	CorruptSignature bool `yaml:"corrupt_signature,omitempty"`
}

// TamperStep rewrites a stored block behind the ledger's back.
type TamperStep struct {
	Block int64  `yaml:"block"`
	Tx    int    `yaml:"tx,omitempty"` // transaction position within the block
	Field string `yaml:"field"`        // amount | to | nonce | signature
	Value string `yaml:"value,omitempty"`
}

// Assertion validates the final ledger.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Account string `yaml:"account,omitempty"`
	Expect  string `yaml:"expect,omitempty"`
	Count   int64  `yaml:"count,omitempty"`

	// Used by verify.
	OK    *bool  `yaml:"ok,omitempty"`
	Code  string `yaml:"code,omitempty"`
	Block *int64 `yaml:"block,omitempty"`

	// Used by trace_count.
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance    = "balance"
	AssertNonce      = "nonce"
	AssertHeight     = "height"
	AssertVerify     = "verify"
	AssertTraceCount = "trace_count"
)

var tamperFields = map[string]bool{"amount": true, "to": true, "nonce": true, "signature": true}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	accounts := make(map[string]bool, len(s.Accounts))
	for i, a := range s.Accounts {
		switch {
		case a.Name == "":
			return fmt.Errorf("accounts[%d]: name is required", i)
		case accounts[a.Name]:
			return fmt.Errorf("accounts[%d]: duplicate name %q", i, a.Name)
		case a.Seed == "":
			return fmt.Errorf("accounts[%d]: seed is required", i)
		case a.Fingerprint == "":
			return fmt.Errorf("accounts[%d]: fingerprint is required", i)
		}
		if a.Curve != "" {
			if _, err := crypto.ParseCurve(a.Curve); err != nil {
				return fmt.Errorf("accounts[%d]: %w", i, err)
			}
		}
		accounts[a.Name] = true
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step, accounts); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, accounts); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, accounts map[string]bool) error {
	set := 0
	for _, present := range []bool{step.Register != "", step.Submit != nil, step.Tamper != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("flow[%d]: exactly one of register, submit, tamper is required", i)
	}

	switch {
	case step.Register != "":
		if !accounts[step.Register] {
			return fmt.Errorf("flow[%d]: unknown account %q", i, step.Register)
		}
	case step.Submit != nil:
		if !accounts[step.Submit.From] {
			return fmt.Errorf("flow[%d].submit: unknown account %q", i, step.Submit.From)
		}
		if step.Submit.To == "" {
			return fmt.Errorf("flow[%d].submit: to is required", i)
		}
	case step.Tamper != nil:
		if step.Tamper.Block < 1 {
			return fmt.Errorf("flow[%d].tamper: block must be at least 1", i)
		}
		if !tamperFields[step.Tamper.Field] {
			return fmt.Errorf("flow[%d].tamper: unknown field %q", i, step.Tamper.Field)
		}
		if step.Expect != "" {
			return fmt.Errorf("flow[%d].tamper: expect is not allowed", i)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, accounts map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBalance:
		if a.Account == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: account and expect are required for balance", index)
		}
	case AssertNonce:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for nonce", index)
		}
		if !accounts[a.Account] {
			return fmt.Errorf("assertions[%d]: unknown account %q", index, a.Account)
		}
	case AssertHeight:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be at least 1 for height", index)
		}
	case AssertVerify:
		if a.OK == nil {
			return fmt.Errorf("assertions[%d]: ok is required for verify", index)
		}
		if *a.OK && (a.Code != "" || a.Block != nil) {
			return fmt.Errorf("assertions[%d]: code and block only apply when ok is false", index)
		}
	case AssertTraceCount:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

package harness

// Step outcomes other than a rejection code.
const (
	OutcomeAccepted = "accepted"
	OutcomeTampered = "tampered"
)

// Step operations.
const (
	OpRegister = "register"
	OpSubmit   = "submit"
	OpTamper   = "tamper"
)

// TraceEvent records what one flow step did.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Account string `json:"account,omitempty"`
	TxID    string `json:"tx_id,omitempty"`
	Outcome string `json:"outcome"`
	// Block is the index the step appended or tampered with, 0 otherwise.
	Block int64 `json:"block,omitempty"`
}

// FinalState is the ledger as seen after the flow.
type FinalState struct {
	Height     int64  `json:"height"`
	VerifyOK   bool   `json:"verify_ok"`
	VerifyCode string `json:"verify_code,omitempty"`
	// VerifyBlock is the failing block index; meaningful only when !VerifyOK.
	VerifyBlock int64  `json:"verify_block,omitempty"`
	VerifyTxID  string `json:"verify_tx_id,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step outcome and assertion matched.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Final  FinalState   `json:"final"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev with the next sequence number.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

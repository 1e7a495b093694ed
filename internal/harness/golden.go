package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fpledger/internal/ir"
)

// TraceSnapshot captures the step trace and final chain of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Final        FinalState
}

// Canonical encodes the snapshot as canonical JSON. Zero-valued optional
// fields are omitted so the golden files stay readable.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	trace := make(ir.Array, len(s.Trace))
	for i, ev := range s.Trace {
		obj := ir.Object{
			"seq":     ir.Int(ev.Seq),
			"op":      ir.String(ev.Op),
			"outcome": ir.String(ev.Outcome),
		}
		if ev.Account != "" {
			obj["account"] = ir.String(ev.Account)
		}
		if ev.TxID != "" {
			obj["tx_id"] = ir.String(ev.TxID)
		}
		if ev.Block != 0 {
			obj["block"] = ir.Int(ev.Block)
		}
		trace[i] = obj
	}

	verify := ir.Object{"ok": ir.Bool(s.Final.VerifyOK)}
	if !s.Final.VerifyOK {
		verify["code"] = ir.String(s.Final.VerifyCode)
		verify["block"] = ir.Int(s.Final.VerifyBlock)
	}

	return ir.MarshalCanonical(ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
		"final": ir.Object{
			"height": ir.Int(s.Final.Height),
			"verify": verify,
		},
	})
}

// RunWithGolden executes a scenario in a temporary directory, fails the
// test if it does not pass, and compares its snapshot with
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, t.TempDir())
	if err != nil {
		return nil, err
	}
	if !result.Pass {
		t.Errorf("scenario %s failed: %v", scenario.Name, result.Errors)
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Final:        result.Final,
	}
	data, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

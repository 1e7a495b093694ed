package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario directory holds no
// scenario files.
type ScenarioNotFoundError struct {
	Dir string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("no scenario files (*.yaml) found in %s", e.Dir)
}

// ValidationResult summarizes a directory of scenarios.
type ValidationResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that failed to load, run, or pass.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// ExtractScenarios lists the scenario files in dir in name order.
func ExtractScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && (strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, &ScenarioNotFoundError{Dir: dir}
	}
	sort.Strings(paths)
	return paths, nil
}

// ValidateScenarios loads and runs every scenario in dir. Each scenario gets
// its own ledger under workDir.
func ValidateScenarios(ctx context.Context, dir, workDir string) (*ValidationResult, error) {
	paths, err := ExtractScenarios(dir)
	if err != nil {
		return nil, err
	}

	vr := &ValidationResult{TotalScenarios: len(paths)}
	for i, path := range paths {
		failure := runScenarioFile(ctx, path, filepath.Join(workDir, fmt.Sprintf("scenario-%03d", i)))
		if failure == "" {
			vr.Passed++
			continue
		}
		vr.Failed++
		vr.Failures = append(vr.Failures, ScenarioFailure{ScenarioPath: path, Error: failure})
	}
	return vr, nil
}

func runScenarioFile(ctx context.Context, path, dir string) string {
	scenario, err := LoadScenario(path)
	if err != nil {
		return err.Error()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err.Error()
	}
	result, err := Run(ctx, scenario, dir)
	if err != nil {
		return err.Error()
	}
	if !result.Pass {
		return strings.Join(result.Errors, "; ")
	}
	return ""
}

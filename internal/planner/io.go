package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadPlan reads a plan file and sanitizes it for problem.
func LoadPlan(path string, problem ProblemType, opts Options) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	plan, err := Sanitize(data, problem, opts)
	if err != nil {
		return Plan{}, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return plan, nil
}

// WritePlan writes plan as indented JSON.
func WritePlan(path string, plan Plan) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure plan dir: %w", err)
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

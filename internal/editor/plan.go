package editor

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/solatis/weaver/internal/weave"
)

// Plan is the YAML report of a run: every class that received edits, what
// was done to it, and the run's warnings.
type Plan struct {
	RunID    string              `yaml:"run_id"`
	State    string              `yaml:"state"`
	Package  string              `yaml:"package"`
	Mode     string              `yaml:"mode"`
	DryRun   bool                `yaml:"dry_run"`
	Started  time.Time           `yaml:"started"`
	Finished time.Time           `yaml:"finished"`
	Rules    int                 `yaml:"rules"`
	Scanned  int                 `yaml:"scanned"`
	Woven    int                 `yaml:"woven"`
	Written  int                 `yaml:"written"`
	Error    string              `yaml:"error,omitempty"`
	Warnings []PlanWarning       `yaml:"warnings,omitempty"`
	Classes  []weave.ClassResult `yaml:"classes,omitempty"`
}

// PlanWarning is a warning as reported in a plan.
type PlanWarning struct {
	Kind    string `yaml:"kind"`
	Source  string `yaml:"source,omitempty"`
	Message string `yaml:"message"`
}

// NewPlan summarizes a run result. Classes without edits are left out.
func NewPlan(res *weave.Result, dryRun bool) Plan {
	p := Plan{
		RunID:    string(res.RunID),
		State:    string(res.State),
		Package:  res.Package,
		Mode:     res.Mode.String(),
		DryRun:   dryRun,
		Started:  res.Started.UTC(),
		Finished: res.Finished.UTC(),
		Rules:    res.Rules,
		Scanned:  res.Scanned,
		Woven:    res.Woven(),
		Written:  res.Written(),
	}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	for _, w := range res.Warnings {
		pw := PlanWarning{Kind: string(w.Kind), Message: w.Message}
		if w.Source.File != "" {
			pw.Source = w.Source.String()
		}
		p.Warnings = append(p.Warnings, pw)
	}
	for _, c := range res.Classes {
		if len(c.Edits) > 0 {
			p.Classes = append(p.Classes, c)
		}
	}
	return p
}

// WritePlan encodes p as YAML.
func WritePlan(w io.Writer, p Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return enc.Close()
}

// WritePlanFile writes p to path, replacing any earlier plan.
func WritePlanFile(path string, p Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plan file: %w", err)
	}
	if err := WritePlan(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

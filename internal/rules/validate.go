package rules

import (
	"fmt"
	"log/slog"

	"github.com/solatis/weaver/internal/types"
)

// Validate reports every exact duplicate (same action, exception type and
// code) within one rule list of the store. It never modifies the store.
// A nil logger only collects warnings.
func Validate(s *Store, logger *slog.Logger) []types.Warning {
	var warnings []types.Warning
	report := func(key string, dup types.Rule, first types.Rule) {
		w := types.Warning{
			Kind:    types.WarnDuplicateRule,
			Message: fmt.Sprintf("duplicate rule for %s (first declared at %s): %s", key, first.Source, dup),
			Source:  dup.Source,
		}
		warnings = append(warnings, w)
		if logger != nil {
			logger.Warn("duplicate rule",
				slog.String("selector", key),
				slog.String("source", dup.Source.String()),
				slog.String("first", first.Source.String()))
		}
	}

	for _, o := range s.owners {
		for _, m := range o.Methods {
			checkDuplicates(o.Owner+"."+m.Selector.Raw, m.Rules, report)
		}
	}
	for _, a := range s.annotations {
		for _, c := range a.Conditions {
			checkDuplicates(a.Annotation+"."+c.Condition.String(), c.Rules, report)
		}
	}
	return warnings
}

func checkDuplicates(key string, list []types.Rule, report func(string, types.Rule, types.Rule)) {
	seen := make(map[string]types.Rule, len(list))
	for _, r := range list {
		if first, ok := seen[r.Key()]; ok {
			report(key, r, first)
			continue
		}
		seen[r.Key()] = r
	}
}

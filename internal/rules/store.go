// internal/rules/store.go
package rules

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/solatis/weaver/internal/types"
)

/*
 * Rule store.
 *
 * Two ordered, multi-valued indices:
 *   - method rules:     owner -> member selector -> []Rule
 *   - annotation rules: annotation -> build condition -> []Rule
 *
 * Every level keeps first-declaration order and rules are appended, never
 * replaced, so duplicates survive for the validator and the weaving engine
 * can rely on declaration order. The Builder is the only writer; Build()
 * hands out a Store with no mutating methods, and a Store lives for one run.
 */

// MethodRules holds the rules of one member selector of an owner.
type MethodRules struct {
	Selector types.MethodSelector
	Rules    []types.Rule
}

// OwnerRules holds every member selector configured for one owner.
type OwnerRules struct {
	Owner   string
	Methods []*MethodRules
	index   map[string]int
}

// ConditionRules holds the rules of one build condition of an annotation.
type ConditionRules struct {
	Condition types.BuildCondition
	Rules     []types.Rule
}

// AnnotationRules holds every condition configured for one annotation.
type AnnotationRules struct {
	Annotation string
	Conditions []*ConditionRules
}

// Store is the read-only rule set of a run.
type Store struct {
	owners      []*OwnerRules
	annotations []*AnnotationRules
	count       int
}

// Owners returns method-rule owners in first-declaration order.
func (s *Store) Owners() []*OwnerRules {
	return s.owners
}

// Annotations returns annotation rules in first-declaration order.
func (s *Store) Annotations() []*AnnotationRules {
	return s.annotations
}

// Len returns the number of rules in the store.
func (s *Store) Len() int {
	return s.count
}

// Empty reports whether no rule was configured.
func (s *Store) Empty() bool {
	return s.count == 0
}

// Describe writes a human-readable listing of the store.
func (s *Store) Describe(w io.Writer) error {
	var buf bytes.Buffer
	for _, o := range s.owners {
		fmt.Fprintf(&buf, "--- %s\n", o.Owner)
		for _, m := range o.Methods {
			fmt.Fprintf(&buf, "   %s\n", m.Selector.Raw)
			for _, r := range m.Rules {
				fmt.Fprintf(&buf, "    %s\n", r)
			}
		}
	}
	for _, a := range s.annotations {
		fmt.Fprintf(&buf, "--- @%s\n", a.Annotation)
		for _, c := range a.Conditions {
			cond := c.Condition.String()
			if cond == "" {
				cond = "(any build)"
			}
			fmt.Fprintf(&buf, "   %s\n", cond)
			for _, r := range c.Rules {
				fmt.Fprintf(&buf, "    %s\n", r)
			}
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Builder accumulates parsed entries across config sources.
type Builder struct {
	logger      *slog.Logger
	owners      []*OwnerRules
	ownerIndex  map[string]*OwnerRules
	annotations []*AnnotationRules
	annIndex    map[string]*AnnotationRules
	warnings    []types.Warning
	next        int
}

// NewBuilder creates an empty builder. A nil logger discards output.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{
		logger:     logger,
		ownerIndex: make(map[string]*OwnerRules),
		annIndex:   make(map[string]*AnnotationRules),
	}
}

// Add appends an entry, assigning the next declaration index.
func (b *Builder) Add(e types.Entry) {
	e.Rule.Index = b.next
	b.next++

	if e.Annotation != nil {
		b.addAnnotation(*e.Annotation, e.Rule)
		return
	}
	b.addMethod(*e.Method, e.Rule)
}

func (b *Builder) addMethod(sel types.MethodSelector, rule types.Rule) {
	owner, ok := b.ownerIndex[sel.Owner]
	if !ok {
		owner = &OwnerRules{Owner: sel.Owner, index: make(map[string]int)}
		b.ownerIndex[sel.Owner] = owner
		b.owners = append(b.owners, owner)
	}
	i, ok := owner.index[sel.Raw]
	if !ok {
		i = len(owner.Methods)
		owner.index[sel.Raw] = i
		owner.Methods = append(owner.Methods, &MethodRules{Selector: sel})
	}
	owner.Methods[i].Rules = append(owner.Methods[i].Rules, rule)
}

func (b *Builder) addAnnotation(sel types.AnnotationSelector, rule types.Rule) {
	if sel.Marker != "" && sel.Condition == types.ConditionNotDefined {
		w := types.Warning{
			Kind:    types.WarnUnknownCondition,
			Message: fmt.Sprintf("unknown build condition %q for @%s, applying to every build", sel.Marker, sel.Annotation),
			Source:  rule.Source,
		}
		b.warnings = append(b.warnings, w)
		b.logger.Warn("unknown build condition",
			slog.String("annotation", sel.Annotation),
			slog.String("marker", sel.Marker),
			slog.String("source", rule.Source.String()))
	}

	ann, ok := b.annIndex[sel.Annotation]
	if !ok {
		ann = &AnnotationRules{Annotation: sel.Annotation}
		b.annIndex[sel.Annotation] = ann
		b.annotations = append(b.annotations, ann)
	}
	for _, c := range ann.Conditions {
		if c.Condition == sel.Condition {
			c.Rules = append(c.Rules, rule)
			return
		}
	}
	ann.Conditions = append(ann.Conditions, &ConditionRules{Condition: sel.Condition, Rules: []types.Rule{rule}})
}

// AddLine parses and adds one config line.
func (b *Builder) AddLine(src types.Source, line string) error {
	entry, ok, err := ParseLine(src, line)
	if err != nil {
		return err
	}
	if ok {
		b.Add(entry)
	}
	return nil
}

// AddReader parses every line of r, naming it file in error context.
func (b *Builder) AddReader(file string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := b.AddLine(types.Source{File: file, Line: line}, scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", file, err)
	}
	return nil
}

// AddFile parses a config file. Both '/' and '\' are accepted as path
// separators.
func (b *Builder) AddFile(path string) error {
	path = filepath.FromSlash(strings.ReplaceAll(path, `\`, "/"))
	b.logger.Debug("loading config file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()
	return b.AddReader(path, f)
}

// Warnings returns the parse-time warnings collected so far.
func (b *Builder) Warnings() []types.Warning {
	return b.warnings
}

// Build returns the store. The builder must not be used afterwards.
func (b *Builder) Build() *Store {
	s := &Store{owners: b.owners, annotations: b.annotations, count: b.next}
	b.owners, b.annotations, b.ownerIndex, b.annIndex = nil, nil, nil, nil
	return s
}

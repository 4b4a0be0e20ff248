package weave

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/solatis/weaver/internal/classfile"
	"github.com/solatis/weaver/internal/rules"
	"github.com/solatis/weaver/internal/types"
)

/*
 * Weaving engine.
 *
 * Per target, three passes over the read-only rule store:
 *
 *   1. annotation rules, BEFORE only
 *   2. method rules of every owner the target properly extends:
 *      BEFORE rules, then AFTER / finally / catch rules
 *   3. annotation rules, everything but BEFORE
 *
 * A BEFORE edit lands at method entry, ahead of every earlier BEFORE edit,
 * so BEFORE rules are applied in declaration order and the last-declared
 * snippet runs first. Other actions are applied in declaration order and
 * run in that order after the super call.
 *
 * A rule on a method the target already has (compiled, or synthesized by an
 * earlier rule) edits that method; otherwise an override is synthesized.
 */

// Engine weaves one class at a time against a fixed rule store.
type Engine struct {
	store    *rules.Store
	mode     types.BuildMode
	logger   *slog.Logger
	warnings []types.Warning
	reported map[string]bool
}

// NewEngine creates an engine for a build mode.
func NewEngine(store *rules.Store, mode types.BuildMode, logger *slog.Logger) *Engine {
	return &Engine{store: store, mode: mode, logger: logger, reported: make(map[string]bool)}
}

// Warnings returns the resolution warnings raised so far.
func (e *Engine) Warnings() []types.Warning {
	return e.warnings
}

type actionFilter func(types.Action) bool

func onlyBefore(a types.Action) bool { return a == types.ActionBefore }
func notBefore(a types.Action) bool  { return a != types.ActionBefore }

// Weave applies every matching rule to t. The first fatal error aborts the
// class; edits recorded before it are left on t but t must not be written.
func (e *Engine) Weave(t *Target, provider ClassMetadataProvider) error {
	if err := e.annotationPass(t, onlyBefore); err != nil {
		return err
	}
	if err := e.methodPass(t, provider); err != nil {
		return err
	}
	return e.annotationPass(t, notBefore)
}

func (e *Engine) annotationPass(t *Target, keep actionFilter) error {
	for _, ann := range e.store.Annotations() {
		methods := annotatedMethods(t.Class, ann.Annotation)
		if len(methods) == 0 {
			continue
		}
		for _, cond := range ann.Conditions {
			if !cond.Condition.Applies(e.mode) {
				continue
			}
			for _, m := range methods {
				body, _ := t.Method(m.Name, m.ParamDescriptor())
				for _, rule := range cond.Rules {
					if !keep(rule.Action) {
						continue
					}
					if err := t.Insert(body, rule); err != nil {
						return err
					}
					e.logEdit(t, m, rule, "annotation")
				}
			}
		}
	}
	return nil
}

// annotatedMethods returns the methods of c with a body that carry the
// annotation. javac copies annotations onto bridges; those are skipped so
// the method they forward to is woven once.
func annotatedMethods(c *classfile.Class, annotation string) []*classfile.Method {
	wildcard := rules.HasWildcard(annotation)
	var out []*classfile.Method
	for _, m := range c.Methods {
		if m.IsInitializer() || m.IsGenerated() || m.Access.Has(classfile.AccAbstract) || m.Access.Has(classfile.AccNative) {
			continue
		}
		if !wildcard {
			if m.HasAnnotation(annotation) {
				out = append(out, m)
			}
			continue
		}
		for _, a := range m.Annotations {
			if rules.MatchClass(annotation, a) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func (e *Engine) methodPass(t *Target, provider ClassMetadataProvider) error {
	if len(e.store.Owners()) == 0 {
		return nil
	}
	ancestors, err := provider.Ancestors(t.Class)
	if err != nil {
		return fmt.Errorf("failed to resolve superclasses of %s: %w", t.Name(), err)
	}

	for _, owner := range e.store.Owners() {
		source, chain, err := e.declaringClass(t, owner, ancestors, provider)
		if err != nil {
			return err
		}
		if source == nil {
			continue
		}
		for _, mr := range owner.Methods {
			candidates := e.candidates(t, source, mr)
			for _, m := range candidates {
				if err := e.applyRules(t, source, chain, m, mr.Rules, onlyBefore); err != nil {
					return err
				}
			}
			for _, m := range candidates {
				if err := e.applyRules(t, source, chain, m, mr.Rules, notBefore); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// declaringClass finds the class a method-rule owner names among the
// target's proper superclasses. chain holds the superclasses between the
// target and the declaring class, nearest first. A nil class means the
// rules do not apply to this target.
func (e *Engine) declaringClass(t *Target, owner *rules.OwnerRules, ancestors []*classfile.Class, provider ClassMetadataProvider) (*classfile.Class, []*classfile.Class, error) {
	if !rules.HasWildcard(owner.Owner) {
		if _, ok, err := provider.Lookup(owner.Owner); err != nil {
			return nil, nil, fmt.Errorf("failed to load %s: %w", owner.Owner, err)
		} else if !ok {
			return nil, nil, &types.ConfigError{
				Source:   firstSource(owner),
				Selector: owner.Owner,
				Class:    t.Name(),
				Err:      types.ErrClassNotFound,
			}
		}
	}
	for i, a := range ancestors {
		if rules.MatchClass(owner.Owner, a.Name) {
			return a, ancestors[:i], nil
		}
	}
	return nil, nil, nil
}

func firstSource(owner *rules.OwnerRules) types.Source {
	for _, m := range owner.Methods {
		if len(m.Rules) > 0 {
			return m.Rules[0].Source
		}
	}
	return types.Source{}
}

// candidates resolves a member selector against the declaring class.
func (e *Engine) candidates(t *Target, source *classfile.Class, mr *rules.MethodRules) []*classfile.Method {
	sel := mr.Selector
	wildcard := rules.HasWildcard(sel.Name)

	methods := source.Methods
	if !wildcard {
		methods = source.DeclaredMethods(sel.Name)
	}

	var out []*classfile.Method
	var names []string
	perName := make(map[string]int)
	for _, m := range methods {
		if m.IsInitializer() || m.IsGenerated() {
			continue
		}
		if wildcard && (!rules.Match(sel.Name, m.Name) || forbiddenModifiers(m.Access) != "") {
			continue
		}
		if sel.Signature != "" && !strings.HasPrefix(m.Descriptor, sel.Signature) {
			continue
		}
		out = append(out, m)
		if perName[m.Name] == 0 {
			names = append(names, m.Name)
		}
		perName[m.Name]++
	}

	src := types.Source{}
	if len(mr.Rules) > 0 {
		src = mr.Rules[0].Source
	}
	if len(out) == 0 {
		e.logger.Warn("no method matches rule selector",
			slog.String("class", t.Name()),
			slog.String("owner", source.Name),
			slog.String("selector", sel.Raw),
			slog.String("source", src.String()))
		return nil
	}
	if sel.Signature == "" && !sel.IgnoreSignature {
		for _, name := range names {
			n := perName[name]
			key := source.Name + "." + name
			if n < 2 || e.reported[key] {
				continue
			}
			e.reported[key] = true
			msg := fmt.Sprintf("%d overloads of %s.%s match; add a signature filter or \"()\" to select all", n, source.Name, name)
			e.warnings = append(e.warnings, types.Warning{Kind: types.WarnAmbiguousMethod, Message: msg, Source: src})
			e.logger.Error("ambiguous method selector",
				slog.String("class", t.Name()),
				slog.String("owner", source.Name),
				slog.String("method", name),
				slog.Int("overloads", n),
				slog.String("source", src.String()))
		}
	}
	return out
}

func (e *Engine) applyRules(t *Target, source *classfile.Class, chain []*classfile.Class, m *classfile.Method, list []types.Rule, keep actionFilter) error {
	for _, rule := range list {
		if !keep(rule.Action) {
			continue
		}
		if body, ok := t.Method(m.Name, m.ParamDescriptor()); ok {
			if err := t.Insert(body, rule); err != nil {
				return err
			}
			e.logEdit(t, m, rule, "existing")
			continue
		}

		owner, decl := nearestDeclaration(source, chain, m)
		body, err := Synthesize(t.Name(), owner, decl, rule)
		if err != nil {
			return err
		}
		t.AddMethod(body, rule)
		e.logEdit(t, m, rule, "override")
	}
	return nil
}

// nearestDeclaration returns the most derived declaration of m between the
// target and the declaring class. An intermediate class may have narrowed
// it, e.g. made it final.
func nearestDeclaration(source *classfile.Class, chain []*classfile.Class, m *classfile.Method) (string, *classfile.Method) {
	for _, c := range chain {
		if d, ok := c.DeclaredMethod(m.Name, m.ParamDescriptor()); ok {
			return c.Name, d
		}
	}
	return source.Name, m
}

func (e *Engine) logEdit(t *Target, m *classfile.Method, rule types.Rule, how string) {
	e.logger.Debug("woven",
		slog.String("class", t.Name()),
		slog.String("method", m.LongName(t.Name())),
		slog.String("descriptor", m.Descriptor),
		slog.String("action", rule.Action.String()),
		slog.String("kind", how),
		slog.String("rule", rule.Source.String()))
}

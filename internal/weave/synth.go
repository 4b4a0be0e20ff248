package weave

import (
	"strconv"
	"strings"

	"github.com/solatis/weaver/internal/classfile"
	"github.com/solatis/weaver/internal/types"
)

/*
 * Method synthesizer.
 *
 * Builds the Java source of a public override of an inherited method that
 * calls super and runs one snippet around the call:
 *
 *   before   { snippet; [result =] super.m(args); [return result;] }
 *   after    { [result =] super.m(args); snippet; [return result;] }
 *   finally  { try { [result =] super.m(args); } finally { snippet } ... }
 *   catch    { try { [result =] super.m(args); } catch (T e) { snippet } ... }
 *
 * Non-void results live in a local declared up front with the type's zero
 * value, so every shape is definitely assigned on every path.
 *
 * Placeholders: $N -> argN (highest index first so $12 never becomes arg1
 * followed by "2"), $0 -> this, $$ -> the argument list, $method -> the
 * method name as a string literal, and in catch snippets $e -> e.
 */

const (
	argPrefix    = "arg"
	resultVar    = "result"
	catchVar     = "e"
	copiedAccess = classfile.AccSynchronized | classfile.AccStrict
)

// Synthesize builds an override of m, declared by owner, for the class named
// target. Static, final and private methods fail with an
// OverrideConstraintError.
func Synthesize(target, owner string, m *classfile.Method, rule types.Rule) (*MethodBody, error) {
	if bad := forbiddenModifiers(m.Access); bad != "" {
		return nil, &types.OverrideConstraintError{
			Class:      target,
			Owner:      owner,
			Method:     m.Name,
			Descriptor: m.Descriptor,
			Modifiers:  bad,
			Source:     rule.Source,
		}
	}

	args := make([]string, len(m.Params))
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		args[i] = argPrefix + strconv.Itoa(i+1)
		params[i] = p.SourceName() + " " + args[i]
	}
	argList := strings.Join(args, ", ")

	var decl strings.Builder
	decl.WriteString("public ")
	if mods := (m.Access & classfile.Modifiers(copiedAccess)).String(); mods != "" {
		decl.WriteString(mods + " ")
	}
	decl.WriteString(m.Return.SourceName() + " " + m.Name + "(" + strings.Join(params, ", ") + ")")
	if len(m.Exceptions) > 0 {
		thrown := make([]string, len(m.Exceptions))
		for i, ex := range m.Exceptions {
			thrown[i] = strings.ReplaceAll(ex, "$", ".")
		}
		decl.WriteString(" throws " + strings.Join(thrown, ", "))
	}

	b := &MethodBody{
		Name:        m.Name,
		Descriptor:  m.Descriptor,
		Synthesized: true,
		decl:        decl.String(),
	}
	superCall := "super." + m.Name + "(" + argList + ");"
	if !m.Return.IsVoid() {
		b.resultDecl = m.Return.SourceName() + " " + resultVar + " = " + m.Return.ZeroValue() + ";"
		superCall = resultVar + " = " + superCall
		b.ret = "return " + resultVar + ";"
	}

	code := expandPlaceholders(rule.Code, m.Name, args)
	switch rule.Action {
	case types.ActionBefore:
		b.stmts = code + " " + superCall
	case types.ActionAfter:
		b.stmts = superCall + " " + code
	case types.ActionAfterFinally:
		b.stmts = "try { " + superCall + " } finally { " + code + " }"
	case types.ActionCatch:
		code = strings.ReplaceAll(code, ExceptionVar, catchVar)
		b.stmts = "try { " + superCall + " } catch (" + strings.ReplaceAll(rule.ExceptionType, "$", ".") + " " + catchVar + ") { " + code + " }"
	default:
		return nil, &types.ConfigError{Source: rule.Source, Selector: rule.ActionToken, Class: target, Err: types.ErrUnknownAction}
	}
	return b, nil
}

func forbiddenModifiers(access classfile.Modifiers) string {
	var bad []string
	if access.Has(classfile.AccPrivate) {
		bad = append(bad, "private")
	}
	if access.Has(classfile.AccStatic) {
		bad = append(bad, "static")
	}
	if access.Has(classfile.AccFinal) {
		bad = append(bad, "final")
	}
	return strings.Join(bad, " ")
}

func expandPlaceholders(code, method string, args []string) string {
	code = expandMethodName(code, method)
	code = strings.ReplaceAll(code, "$$", strings.Join(args, ", "))
	for i := len(args); i >= 1; i-- {
		code = strings.ReplaceAll(code, "$"+strconv.Itoa(i), args[i-1])
	}
	return strings.ReplaceAll(code, "$0", "this")
}

func expandMethodName(code, method string) string {
	return strings.ReplaceAll(code, "$method", strconv.Quote(method))
}

// internal/rules/parse.go
package rules

import (
	"strings"

	"github.com/solatis/weaver/internal/types"
)

/*
 * Rule parser.
 *
 * Turns the tokens of one line into a types.Entry. The first token is split
 * at its last dot (ignoring dots inside a "(...)" signature suffix) into
 * owner and member:
 *
 *   member ""              -> annotation rule, condition NOT_DEFINED
 *   member "_D" / "_R"     -> annotation rule, debug / release only
 *   member "_<Letter>"     -> annotation rule, unknown marker (warned by the
 *                             builder, treated as NOT_DEFINED)
 *   member "name"          -> method rule, every overload (ambiguity logged)
 *   member "name()"        -> method rule, every overload, no ambiguity log
 *   member "name(<desc>"   -> method rule, descriptor prefix filter
 *
 * Descriptor filters are compared against JVM descriptors, so "." in a
 * filter is accepted and normalized to "/".
 */

const ignoreSignatureSuffix = "()"

// ParseLine parses one config line. ok is false for blank and comment lines.
// The returned rule has no declaration index; the builder assigns it.
func ParseLine(src types.Source, line string) (entry types.Entry, ok bool, err error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return types.Entry{}, false, &types.ConfigError{Source: src, Selector: strings.TrimSpace(line), Err: err}
	}
	if len(tokens) == 0 {
		return types.Entry{}, false, nil
	}

	selector := tokens[0]
	owner, member, found := splitSelector(selector)
	if !found || owner == "" {
		return types.Entry{}, false, &types.ConfigError{Source: src, Selector: selector, Err: types.ErrInvalidSelector}
	}

	action, exceptionType := types.ParseAction(tokens[1])
	entry.Rule = types.Rule{
		Action:        action,
		ActionToken:   tokens[1],
		ExceptionType: exceptionType,
		Code:          normalizeCode(tokens[2:]),
		Source:        src,
	}

	if isConditionMarker(member) {
		entry.Annotation = &types.AnnotationSelector{
			Annotation: owner,
			Condition:  parseCondition(member),
			Marker:     member,
		}
		return entry, true, nil
	}

	entry.Method = parseMethodSelector(owner, member)
	return entry, true, nil
}

// splitSelector splits "a.b.C.member(sig" at the last dot before any "(".
func splitSelector(token string) (owner, member string, ok bool) {
	head := token
	if paren := strings.IndexByte(token, '('); paren >= 0 {
		head = token[:paren]
	}
	dot := strings.LastIndexByte(head, '.')
	if dot < 0 {
		return "", "", false
	}
	return token[:dot], token[dot+1:], true
}

// isConditionMarker reports whether a member names a build condition rather
// than a method: empty, or "_" followed by a single upper-case letter.
func isConditionMarker(member string) bool {
	if member == "" {
		return true
	}
	if len(member) != 2 || member[0] != '_' {
		return false
	}
	return member[1] >= 'A' && member[1] <= 'Z'
}

func parseCondition(member string) types.BuildCondition {
	switch member {
	case types.DebugMarker:
		return types.ConditionDebug
	case types.ReleaseMarker:
		return types.ConditionRelease
	default:
		return types.ConditionNotDefined
	}
}

func parseMethodSelector(owner, member string) *types.MethodSelector {
	sel := &types.MethodSelector{Owner: owner, Name: member, Raw: member}

	paren := strings.IndexByte(member, '(')
	if paren < 0 {
		return sel
	}
	sel.Name = member[:paren]
	suffix := member[paren:]
	if suffix == ignoreSignatureSuffix {
		sel.IgnoreSignature = true
		return sel
	}
	sel.Signature = strings.ReplaceAll(suffix, ".", "/")
	return sel
}

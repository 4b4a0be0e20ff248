package rules

import "strings"

/*
 * Wildcards in owner, annotation and method names.
 *
 *   ?    exactly one character
 *   *    any run of characters
 *
 * Class names are matched segment by segment ('.' separated): '*' and '?'
 * never cross a dot, and a segment ending in "**" matches like "*" and then
 * absorbs any number of following segments. So "io.reactive**" matches
 * "io.reactivex.rxjava3.core.Flowable" and "**.Flowable" matches any class
 * named Flowable.
 */

// HasWildcard reports whether s uses any wildcard character.
func HasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// Match reports whether name matches pattern as a whole, with '*' and '?'
// matching any character including '.'.
func Match(pattern, name string) bool {
	p, n := 0, 0
	star, mark := -1, 0
	for n < len(name) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == name[n]):
			p++
			n++
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, n
			p++
		case star >= 0:
			p = star + 1
			mark++
			n = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// MatchClass reports whether a binary class name matches a dotted pattern.
func MatchClass(pattern, name string) bool {
	if pattern == "" || name == "" {
		return false
	}
	if !HasWildcard(pattern) {
		return pattern == name
	}
	return matchSegments(strings.Split(pattern, "."), strings.Split(name, "."))
}

func matchSegments(ps, ns []string) bool {
	if len(ps) == 0 {
		return len(ns) == 0
	}
	if len(ns) == 0 {
		return false
	}
	p := ps[0]
	if p == "" {
		return false
	}
	if !strings.HasSuffix(p, "**") {
		return Match(p, ns[0]) && matchSegments(ps[1:], ns[1:])
	}

	if !Match(strings.TrimSuffix(p, "*"), ns[0]) {
		return false
	}
	for k := 1; k <= len(ns); k++ {
		if matchSegments(ps[1:], ns[k:]) {
			return true
		}
	}
	return false
}

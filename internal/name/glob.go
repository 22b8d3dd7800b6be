package name

import "strings"

// glob compiles a pattern containing '*' (any run, including empty) and '?' (exactly
// one character) into a reusable matcher. No character classes, no escaping — the
// grammar ReadonlyREST's configuration format supports is intentionally this small.
type glob struct {
	pattern string
	literal bool // fast path: no metacharacters at all
}

func compileGlob(pattern string) glob {
	return glob{pattern: pattern, literal: !IsPattern(pattern)}
}

func (g glob) match(s string) bool {
	if g.literal {
		return g.pattern == s
	}
	return globMatch(g.pattern, s)
}

// globMatch implements '*'/'?' matching with an iterative two-pointer algorithm
// (the classic wildcard-matching scan, not a backtracking recursion) so pathological
// patterns like "*a*a*a*a*a*" stay linear-ish in practice.
func globMatch(pattern, s string) bool {
	var pi, si int
	var starIdx = -1
	var match int
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			starIdx = pi
			match = si
			pi++
		case starIdx != -1:
			pi = starIdx + 1
			match++
			si = match
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// dominates reports whether pattern `a` matches a strict superset of (or exactly) what
// pattern `b` can match, computed structurally without a concrete universe — used for
// the "subset of A" predicate in template-operation handling (§4.5.4). It is a
// conservative, syntactic approximation: position-by-position, a '*' in `a` dominates
// any span of `b`; two patterns that aren't clearly comparable are treated as
// non-dominating (the caller then falls back to universe-based matching when one is
// available).
func dominates(a, b string) bool {
	if a == b {
		return true
	}
	if !IsPattern(a) {
		// `a` is a concrete literal: it can only dominate `b` if `b` is the same literal.
		return a == b
	}
	return globDominates(a, b)
}

// globDominates answers: does every string matched by pattern b also match pattern a?
// Implemented by walking both patterns; a run of '*' in a absorbs any run of literal
// or '?' tokens in b, provided the fixed (non-star) segments line up.
func globDominates(a, b string) bool {
	aSegs, aAnchoredStart, aAnchoredEnd := splitStars(a)
	if len(aSegs) == 1 && !strings.Contains(a, "*") {
		// a has no '*' (only literal/'?'): b must be exactly the same fixed pattern.
		return a == b
	}
	rest := b
	for i, seg := range aSegs {
		if seg == "" {
			continue
		}
		switch {
		case i == 0 && aAnchoredStart:
			if !segMatchesPrefix(seg, rest) {
				return false
			}
			rest = rest[len(seg):]
		case i == len(aSegs)-1 && aAnchoredEnd:
			if !segMatchesSuffix(seg, rest) {
				return false
			}
			rest = rest[:len(rest)-len(seg)]
		default:
			idx := findSeg(seg, rest)
			if idx < 0 {
				return false
			}
			rest = rest[idx+len(seg):]
		}
	}
	return true
}

// splitStars splits pattern on '*', reporting whether the first/last segment is
// anchored (true unless the pattern itself starts/ends with '*').
func splitStars(pattern string) (segs []string, anchoredStart, anchoredEnd bool) {
	segs = strings.Split(pattern, "*")
	anchoredStart = !strings.HasPrefix(pattern, "*")
	anchoredEnd = !strings.HasSuffix(pattern, "*")
	return
}

func segMatchesPrefix(seg, s string) bool {
	if len(s) < len(seg) {
		return matchQuestionMarks(seg, s) && len(seg) == len(s)
	}
	return matchQuestionMarks(seg, s[:len(seg)])
}

func segMatchesSuffix(seg, s string) bool {
	if len(s) < len(seg) {
		return false
	}
	return matchQuestionMarks(seg, s[len(s)-len(seg):])
}

func findSeg(seg, s string) int {
	for i := 0; i+len(seg) <= len(s); i++ {
		if matchQuestionMarks(seg, s[i:i+len(seg)]) {
			return i
		}
	}
	return -1
}

func matchQuestionMarks(seg, s string) bool {
	if len(seg) != len(s) {
		return false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] != '?' && seg[i] != s[i] {
			return false
		}
	}
	return true
}

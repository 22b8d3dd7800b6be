// Package variable implements ReadonlyREST's runtime-resolvable variables (§4.2):
// @{user}, @{header:X}, @{jwt:dotted.path}, @{env:NAME}, @{current_group},
// @{available_groups}, the legacy ${NAME} environment form, and the @explode{...}
// multi-valued prefix.
package variable

import (
	"fmt"
	"regexp"
)

// Category discriminates what a variable resolves against.
type Category int

const (
	CategoryUser Category = iota
	CategoryHeader
	CategoryJWT
	CategoryEnv
	CategoryCurrentGroup
	CategoryAvailableGroups
)

// RequiresAuthentication reports whether a rule using this variable category must be
// preceded by an authenticating rule in its block (§4.2 configuration-time validation).
func (c Category) RequiresAuthentication() bool {
	switch c {
	case CategoryUser, CategoryCurrentGroup, CategoryAvailableGroups, CategoryJWT:
		return true
	default:
		return false
	}
}

// RequiresJWTAuth reports whether the category specifically needs a JWT-auth rule
// (stricter than RequiresAuthentication, which JWT also satisfies).
func (c Category) RequiresJWTAuth() bool { return c == CategoryJWT }

// Token is one parsed placeholder inside a template string.
type Token struct {
	Category Category
	Arg      string // header name, JWT dotted path, or env var name; empty otherwise
	Explode  bool
	Literal  string // non-empty only for the literal (non-variable) spans between tokens
	IsVar    bool
}

// Template is a parsed variable template: an ordered sequence of literal spans and
// variable tokens, plus whether it contains an @explode token (at most one is allowed).
type Template struct {
	raw         string
	tokens      []Token
	explodeSeen bool
}

var (
	atVarRe  = regexp.MustCompile(`@(explode)?\{([a-zA-Z_]+)(?::([^}]*))?\}`)
	dollarRe = regexp.MustCompile(`\$\{([^}]*)\}`)
)

// ErrTooManyMultiVariables is returned by Parse when a template contains more than one
// @explode variable (§4.2: "at most one multi-valued variable per template").
var ErrTooManyMultiVariables = fmt.Errorf("at most one @explode variable is allowed per template")

// ErrCannotUseMultiVariableInSingleVariableContext names the configuration-time error for
// a multi-valued variable used where a single value is demanded (§4.2). No code path
// returns it: neither Parse nor the configuration loader checks where an @explode
// variable is used.
var ErrCannotUseMultiVariableInSingleVariableContext = fmt.Errorf("CannotUseMultiVariableInSingleVariableContext")

// Parse compiles a raw template string (e.g. "@{user}" or "prefix-@explode{header:X}")
// into a Template ready for repeated Resolve calls.
func Parse(raw string) (*Template, error) {
	t := &Template{raw: raw}
	pos := 0
	for pos < len(raw) {
		loc := nextMatch(raw, pos)
		if loc == nil {
			t.tokens = append(t.tokens, Token{Literal: raw[pos:]})
			break
		}
		start, end := loc.start, loc.end
		if start > pos {
			t.tokens = append(t.tokens, Token{Literal: raw[pos:start]})
		}
		if loc.explode {
			if t.explodeSeen {
				return nil, ErrTooManyMultiVariables
			}
			t.explodeSeen = true
		}
		tok, err := categorize(loc.name, loc.arg, loc.explode, loc.isEnvShorthand)
		if err != nil {
			return nil, err
		}
		t.tokens = append(t.tokens, tok)
		pos = end
	}
	return t, nil
}

// HasExplode reports whether the template contains an @explode variable.
func (t *Template) HasExplode() bool { return t.explodeSeen }

// Categories returns every variable category referenced by the template, for
// configuration-time "preceded by an authenticating rule" validation.
func (t *Template) Categories() []Category {
	var out []Category
	for _, tok := range t.tokens {
		if tok.IsVar {
			out = append(out, tok.Category)
		}
	}
	return out
}

type matchLoc struct {
	start, end     int
	name, arg      string
	explode        bool
	isEnvShorthand bool
}

func nextMatch(s string, from int) *matchLoc {
	rest := s[from:]
	atLoc := atVarRe.FindStringSubmatchIndex(rest)
	dollarLoc := dollarRe.FindStringSubmatchIndex(rest)
	useAt := atLoc != nil && (dollarLoc == nil || atLoc[0] <= dollarLoc[0])
	switch {
	case useAt:
		m := atVarRe.FindStringSubmatch(rest)
		return &matchLoc{
			start:   from + atLoc[0],
			end:     from + atLoc[1],
			explode: m[1] == "explode",
			name:    m[2],
			arg:     m[3],
		}
	case dollarLoc != nil:
		m := dollarRe.FindStringSubmatch(rest)
		return &matchLoc{
			start:          from + dollarLoc[0],
			end:            from + dollarLoc[1],
			name:           "env",
			arg:            m[1],
			isEnvShorthand: true,
		}
	default:
		return nil
	}
}

func categorize(name, arg string, explode, envShorthand bool) (Token, error) {
	switch name {
	case "user":
		return Token{Category: CategoryUser, Explode: explode, IsVar: true}, nil
	case "header":
		return Token{Category: CategoryHeader, Arg: arg, Explode: explode, IsVar: true}, nil
	case "jwt":
		return Token{Category: CategoryJWT, Arg: arg, Explode: explode, IsVar: true}, nil
	case "env":
		return Token{Category: CategoryEnv, Arg: arg, Explode: explode, IsVar: true}, nil
	case "current_group":
		return Token{Category: CategoryCurrentGroup, Explode: explode, IsVar: true}, nil
	case "available_groups":
		return Token{Category: CategoryAvailableGroups, Explode: explode, IsVar: true}, nil
	default:
		if envShorthand {
			return Token{Category: CategoryEnv, Arg: arg, IsVar: true}, nil
		}
		return Token{}, fmt.Errorf("unknown variable category %q", name)
	}
}

// String returns the original template text (used by configuration error messages).
func (t *Template) String() string { return t.raw }

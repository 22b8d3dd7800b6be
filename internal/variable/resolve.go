package variable

import (
	"fmt"
	"os"
	"strings"
)

// ResolutionContext is the data a Template resolves against, built from the current
// block context (§4.2: "consumes a context derived from the current block context").
type ResolutionContext struct {
	User            string
	Headers         map[string][]string // case-insensitive keys, canonical http.Header-style
	JWTClaims       map[string]any
	CurrentGroup    string
	AvailableGroups []string
	// Env, when non-nil, overrides os.Getenv (tests supply a fixed map so resolution is
	// deterministic per §8 invariant 4; production passes nil to use the real process
	// environment as the spec requires).
	Env map[string]string
}

// ErrVariableMissing is returned when a single-valued variable has nothing to resolve
// to in the given context; callers (rules) turn this into a Rejected outcome, never a
// panic (§4.2: "a variable missing ... causes the rule to reject").
var ErrVariableMissing = fmt.Errorf("variable value missing in resolution context")

// Resolve evaluates the template against ctx. A template with no @explode variable
// resolves to exactly one string; a template with one resolves to the cartesian
// expansion over the multi-valued variable's set of values (§4.2: "expand into the set
// of resulting strings").
func (t *Template) Resolve(ctx ResolutionContext) ([]string, error) {
	if !t.explodeSeen {
		var sb strings.Builder
		for _, tok := range t.tokens {
			if !tok.IsVar {
				sb.WriteString(tok.Literal)
				continue
			}
			v, err := resolveSingle(tok, ctx)
			if err != nil {
				return nil, err
			}
			sb.WriteString(v)
		}
		return []string{sb.String()}, nil
	}

	// One @explode token: resolve its multi-value set, then build one output string per
	// value, substituting literal spans and any other (single-valued) tokens normally.
	var prefix, suffix strings.Builder
	var explodeValues []string
	seenExplode := false
	for _, tok := range t.tokens {
		if !tok.IsVar {
			if !seenExplode {
				prefix.WriteString(tok.Literal)
			} else {
				suffix.WriteString(tok.Literal)
			}
			continue
		}
		if tok.Explode {
			values, err := resolveMulti(tok, ctx)
			if err != nil {
				return nil, err
			}
			explodeValues = values
			seenExplode = true
			continue
		}
		v, err := resolveSingle(tok, ctx)
		if err != nil {
			return nil, err
		}
		if !seenExplode {
			prefix.WriteString(v)
		} else {
			suffix.WriteString(v)
		}
	}
	out := make([]string, 0, len(explodeValues))
	for _, v := range explodeValues {
		out = append(out, prefix.String()+v+suffix.String())
	}
	return out, nil
}

func resolveSingle(tok Token, ctx ResolutionContext) (string, error) {
	switch tok.Category {
	case CategoryUser:
		if ctx.User == "" {
			return "", ErrVariableMissing
		}
		return ctx.User, nil
	case CategoryCurrentGroup:
		if ctx.CurrentGroup == "" {
			return "", ErrVariableMissing
		}
		return ctx.CurrentGroup, nil
	case CategoryAvailableGroups:
		if len(ctx.AvailableGroups) == 0 {
			return "", ErrVariableMissing
		}
		return strings.Join(ctx.AvailableGroups, ","), nil
	case CategoryHeader:
		v := headerValue(ctx.Headers, tok.Arg)
		if v == "" {
			return "", ErrVariableMissing
		}
		return v, nil
	case CategoryEnv:
		v, ok := envValue(ctx.Env, tok.Arg)
		if !ok {
			return "", ErrVariableMissing
		}
		return v, nil
	case CategoryJWT:
		v, err := jwtPath(ctx.JWTClaims, tok.Arg)
		if err != nil {
			return "", err
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("jwt claim %q is not a scalar", tok.Arg)
		}
		return s, nil
	default:
		return "", fmt.Errorf("unsupported variable category %v", tok.Category)
	}
}

func resolveMulti(tok Token, ctx ResolutionContext) ([]string, error) {
	switch tok.Category {
	case CategoryAvailableGroups:
		if len(ctx.AvailableGroups) == 0 {
			return nil, ErrVariableMissing
		}
		return ctx.AvailableGroups, nil
	case CategoryJWT:
		v, err := jwtPath(ctx.JWTClaims, tok.Arg)
		if err != nil {
			return nil, err
		}
		arr, ok := v.([]any)
		if !ok {
			// A scalar under @explode degenerates to a single-element set.
			if s, ok := v.(string); ok {
				return []string{s}, nil
			}
			return nil, fmt.Errorf("jwt claim %q is not explodable", tok.Arg)
		}
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("jwt claim %q array element is not a scalar", tok.Arg)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := resolveSingle(tok, ctx)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func headerValue(headers map[string][]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func envValue(override map[string]string, name string) (string, bool) {
	if override != nil {
		v, ok := override[name]
		return v, ok
	}
	v, ok := os.LookupEnv(name)
	return v, ok
}

// jwtPath selects through a decoded JWT claims tree by dotted path (§4.2: "Dotted JWT
// paths select through JSON objects; scalar and array leaves are accepted").
func jwtPath(claims map[string]any, dotted string) (any, error) {
	if claims == nil {
		return nil, ErrVariableMissing
	}
	parts := strings.Split(dotted, ".")
	var cur any = claims
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, ErrVariableMissing
		}
		v, ok := m[p]
		if !ok {
			return nil, ErrVariableMissing
		}
		cur = v
	}
	return cur, nil
}

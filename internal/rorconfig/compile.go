package rorconfig

import (
	"context"
	"strings"

	"github.com/kubilitics/kubilitics-backend/internal/auth"
	"github.com/kubilitics/kubilitics-backend/internal/authbackend"
	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/engine"
	"github.com/kubilitics/kubilitics-backend/internal/rule"
)

// Compile turns a validated Document's blocks into engine.Blocks, wiring each
// configured concern to its concrete rule implementation. Call Validate before Compile;
// Compile assumes the document is well-formed and does not re-check it.
func (d *Document) Compile() []engine.Block {
	jwtDefs := make(map[string]JWTDefinition, len(d.Definitions.JWT))
	for _, j := range d.Definitions.JWT {
		jwtDefs[j.Name] = j
	}
	proxyDefs := make(map[string]ProxyDefinition, len(d.Definitions.Proxy))
	for _, p := range d.Definitions.Proxy {
		proxyDefs[p.Name] = p
	}

	out := make([]engine.Block, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		out = append(out, engine.Block{
			Name:   b.Name,
			Policy: compilePolicy(b.Policy),
			Rules:  compileRules(b, jwtDefs, proxyDefs),
		})
	}
	return out
}

func compilePolicy(p string) engine.Policy {
	if p == "forbid" {
		return engine.PolicyForbid
	}
	return engine.PolicyAllow
}

func compileRules(b BlockConfig, jwtDefs map[string]JWTDefinition, proxyDefs map[string]ProxyDefinition) []rule.Rule {
	var rules []rule.Rule
	if ar := authRuleFor(b, jwtDefs, proxyDefs); ar != nil {
		rules = append(rules, ar)
	}
	if len(b.Indices) > 0 {
		rules = append(rules, rule.NewIndicesRule(b.Indices))
	}
	if len(b.Snapshots) > 0 {
		rules = append(rules, rule.NewSnapshotsRule(b.Snapshots))
	}
	if len(b.Repositories) > 0 {
		rules = append(rules, rule.NewRepositoriesRule(b.Repositories))
	}
	if b.KibanaAccess != "" {
		rules = append(rules, &rule.KibanaRule{
			Access:      parseKibanaAccess(b.KibanaAccess),
			KibanaIndex: b.KibanaIndex,
			HiddenApps:  b.HiddenApps,
		})
	}
	if len(b.Groups) > 0 {
		rules = append(rules, rule.NewGroupsRule(b.Groups))
	}
	if b.Filter != "" {
		rules = append(rules, rule.NewFilterRule(b.Filter))
	}
	if len(b.FLS) > 0 {
		rules = append(rules, rule.NewFLSRule(b.FLS))
	}
	return rules
}

// authRuleFor compiles a block's auth_key/jwt_auth/proxy_auth directive into the
// authentication-phase rule.AuthRule (§4.2/§4.3). A block naming none of the three
// directives has no authentication rule at all — it simply doesn't care who the caller
// is, matching ReadonlyREST's treatment of auth as opt-in per block.
func authRuleFor(b BlockConfig, jwtDefs map[string]JWTDefinition, proxyDefs map[string]ProxyDefinition) rule.Rule {
	switch {
	case b.AuthKey != "":
		return &rule.AuthRule{RuleName: "auth_key", Backend: authKeyBackend(b.AuthKey)}
	case b.JWTAuth != "":
		def := jwtDefs[b.JWTAuth]
		return &rule.AuthRule{RuleName: "jwt_auth", Backend: &authbackend.JWTBackend{Secret: def.Secret}}
	case b.ProxyAuth != "":
		_ = proxyDefs[b.ProxyAuth]
		return &rule.AuthRule{RuleName: "proxy_auth", Backend: authbackend.ProxyHeaderBackend{}}
	default:
		return nil
	}
}

// authKeyBackend builds the literal "user:password" backend an inline auth_key directive
// describes, bcrypt-hashing the password once at compile time so the block's AuthRule can
// reuse authbackend.BasicBackend's normal comparison path.
func authKeyBackend(literal string) authbackend.Backend {
	idx := strings.IndexByte(literal, ':')
	if idx < 0 {
		return denyBackend{}
	}
	user, pass := literal[:idx], literal[idx+1:]
	hash, err := auth.HashPassword(pass)
	if err != nil {
		return denyBackend{}
	}
	return &authbackend.BasicBackend{Store: authbackend.StaticUserStore{
		user: {PasswordHash: hash},
	}}
}

// denyBackend rejects every credential — the safe fallback for a malformed auth_key
// literal, matching §7's fail-closed posture (never silently treat a bad directive as "no
// authentication required").
type denyBackend struct{}

func (denyBackend) Authenticate(context.Context, authbackend.Credential) (*authbackend.AuthenticatedUser, error) {
	return nil, authbackend.ErrAuthenticationFailed
}

func parseKibanaAccess(s string) block.KibanaAccess {
	switch s {
	case "ro_strict":
		return block.KibanaAccessRoStrict
	case "ro":
		return block.KibanaAccessRo
	case "rw":
		return block.KibanaAccessRw
	case "admin":
		return block.KibanaAccessAdmin
	case "unrestricted":
		return block.KibanaAccessUnrestricted
	default:
		return block.KibanaAccessUnset
	}
}

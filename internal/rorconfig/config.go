// Package rorconfig loads and validates the rule configuration (§4.4's blocks, §9's
// definitions) from YAML, independent of the host adapter's own process configuration
// (package config), which covers ports, timeouts and credentials instead.
package rorconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-backend/internal/name"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

// Document is the top-level YAML shape: a `definitions` section of reusable named
// collaborators (JWT/proxy-auth/LDAP backends), and an ordered `blocks`
// list.
type Document struct {
	Definitions Definitions   `yaml:"definitions"`
	Blocks      []BlockConfig `yaml:"access_control_rules"`
}

// Definitions holds the named, reusable backend configurations a block's rules refer to
// by name rather than inlining (§9 supplemented feature: named definitions keep a shared
// JWT secret or LDAP connection out of every block that uses it).
type Definitions struct {
	JWT   []JWTDefinition   `yaml:"jwt"`
	LDAP  []LDAPDefinition  `yaml:"ldap"`
	Proxy []ProxyDefinition `yaml:"proxy_auth"`
}

type JWTDefinition struct {
	Name       string `yaml:"name"`
	Secret     string `yaml:"signature_key"`
	UserClaim  string `yaml:"user_claim"`
	GroupsClaim string `yaml:"groups_claim"`
}

type LDAPDefinition struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ProxyDefinition struct {
	Name       string `yaml:"name"`
	HeaderName string `yaml:"user_id_header"`
}

// BlockConfig is one YAML block entry before it's compiled into an engine.Block —
// kept as a thin, declarative struct so the compiler (compile.go) is the only place
// that knows how a YAML field maps to a concrete rule.Rule.
type BlockConfig struct {
	Name   string `yaml:"name"`
	Policy string `yaml:"policy"` // "allow" or "forbid"

	AuthKey       string   `yaml:"auth_key"`
	JWTAuth       string   `yaml:"jwt_auth"`  // references a Definitions.JWT entry by name
	ProxyAuth     string   `yaml:"proxy_auth"`
	Groups        []string `yaml:"groups"`

	Indices      []string `yaml:"indices"`
	Snapshots    []string `yaml:"snapshots"`
	Repositories []string `yaml:"repositories"`

	KibanaAccess string   `yaml:"kibana_access"`
	KibanaIndex  string   `yaml:"kibana_index"`
	HiddenApps   []string `yaml:"hidden_apps"`

	Filter string   `yaml:"filter"`
	FLS    []string `yaml:"fields"`
}

// Load reads and parses a YAML rule configuration file. It does not validate; call
// Validate on the result (or use LoadAndValidate) before compiling it into blocks.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule configuration: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rule configuration: %w", err)
	}
	return &doc, nil
}

// LoadAndValidate loads the document and runs Validate, returning the first validation
// error encountered (configuration-time errors are fail-fast, never partially applied —
// §7: "a malformed configuration must never start the engine with half of its blocks
// missing").
func LoadAndValidate(path string) (*Document, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate runs every configuration-time check of §4.2/§4.5/§4.7 that doesn't require a
// live cluster: block policy well-formedness, variable/authentication ordering, and
// redundant-wildcard detection.
func (d *Document) Validate() error {
	jwtNames := make(map[string]bool, len(d.Definitions.JWT))
	for _, j := range d.Definitions.JWT {
		jwtNames[j.Name] = true
	}
	proxyNames := make(map[string]bool, len(d.Definitions.Proxy))
	for _, p := range d.Definitions.Proxy {
		proxyNames[p.Name] = true
	}

	for i, b := range d.Blocks {
		if b.Name == "" {
			return &BlockValidationError{Index: i, Detail: "block must have a non-empty name"}
		}
		if b.Policy != "allow" && b.Policy != "forbid" {
			return &BlockValidationError{Block: b.Name, Detail: fmt.Sprintf("policy must be %q or %q, got %q", "allow", "forbid", b.Policy)}
		}
		if b.JWTAuth != "" && !jwtNames[b.JWTAuth] {
			return &BlockValidationError{Block: b.Name, Detail: fmt.Sprintf("jwt_auth references undefined definition %q", b.JWTAuth)}
		}
		if b.ProxyAuth != "" && !proxyNames[b.ProxyAuth] {
			return &BlockValidationError{Block: b.Name, Detail: fmt.Sprintf("proxy_auth references undefined definition %q", b.ProxyAuth)}
		}

		hasAuth := b.AuthKey != "" || b.JWTAuth != "" || b.ProxyAuth != ""
		if err := checkVariableAuthRequirement(b, hasAuth); err != nil {
			return err
		}
		if err := checkRedundantWildcard(b); err != nil {
			return err
		}
	}
	return nil
}

// checkVariableAuthRequirement implements §4.2's configuration-time rule: a block that
// uses an authentication-requiring variable category (@{user}, @{jwt:...},
// @{current_group}, @{available_groups}) anywhere in its index/snapshot/repository
// patterns must also configure an authenticating rule.
func checkVariableAuthRequirement(b BlockConfig, hasAuth bool) error {
	if hasAuth {
		return nil
	}
	var all []string
	all = append(all, b.Indices...)
	all = append(all, b.Snapshots...)
	all = append(all, b.Repositories...)
	for _, pat := range all {
		tmpl, err := variable.Parse(pat)
		if err != nil {
			return &BlockValidationError{Block: b.Name, Detail: err.Error()}
		}
		for _, cat := range tmpl.Categories() {
			if cat.RequiresAuthentication() {
				return &RulesLevelCreationError{
					Block:  b.Name,
					Detail: fmt.Sprintf("pattern %q uses a variable that requires authentication, but the block configures no authenticating rule", pat),
				}
			}
		}
	}
	return nil
}

// checkRedundantWildcard flags a block whose snapshot/repository pattern list contains a
// wildcard-like entry ("*" or "_all") at all (§4.6: "a bare wildcard alongside any other
// pattern is always a configuration mistake, since the wildcard already admits everything
// the other pattern could" — and a wildcard on its own is equally a mistake, since naming
// snapshots/repositories at all only makes sense when at least one entry narrows the set).
func checkRedundantWildcard(b BlockConfig) error {
	check := func(kind string, nameKind name.Kind, patterns []string) error {
		if len(patterns) == 0 {
			return nil
		}
		for _, p := range patterns {
			if name.Parse(nameKind, p).IsWildcardLike() {
				if len(patterns) == 1 {
					return &BlockValidationError{Block: b.Name, Detail: fmt.Sprintf("%s pattern list contains only a wildcard entry %q, which should be omitted instead", kind, p)}
				}
				return &BlockValidationError{Block: b.Name, Detail: fmt.Sprintf("%s pattern list contains \"*\" alongside other entries, which are unreachable", kind)}
			}
		}
		return nil
	}
	if err := check("snapshots", name.KindSnapshot, b.Snapshots); err != nil {
		return err
	}
	return check("repositories", name.KindRepository, b.Repositories)
}

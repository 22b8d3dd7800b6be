// Package name implements the typed name model shared by every resource-matching rule:
// indices, snapshots, repositories, templates, aliases, Kibana apps, groups and users.
// Every string name parses into one of Full, Pattern, All or Wildcard, and an Index
// additionally carries locality (local vs. cluster:name remote).
package name

import "strings"

// Kind tags which universe a Name belongs to. Kinds never mix during matching.
type Kind int

const (
	KindIndex Kind = iota
	KindSnapshot
	KindRepository
	KindTemplate
	KindAlias
	KindKibanaApp
	KindGroup
	KindUser
	KindAction
)

// Form is the canonicalised shape of a name's text.
type Form int

const (
	FormFull Form = iota
	FormPattern
	FormAll
	FormWildcard
)

// Name is a single configured-or-requested token: a literal, a glob pattern, the
// literal "_all", or the literal "*". Never empty after Parse.
type Name struct {
	Kind Kind
	Form Form
	Text string
}

// Parse canonicalises raw text into a Name of the given kind. Empty text and the
// literal "_all" both fold to the All form (text "_all") and the literal "*" to the
// Wildcard form; IsWildcardLike treats both forms as "everything", so "nothing
// requested" means "everything requested".
func Parse(kind Kind, raw string) Name {
	switch raw {
	case "", "_all":
		return Name{Kind: kind, Form: FormAll, Text: "_all"}
	case "*":
		return Name{Kind: kind, Form: FormWildcard, Text: "*"}
	}
	if IsPattern(raw) {
		return Name{Kind: kind, Form: FormPattern, Text: raw}
	}
	return Name{Kind: kind, Form: FormFull, Text: raw}
}

// IsPattern reports whether raw contains glob metacharacters (* or ?).
func IsPattern(raw string) bool {
	return strings.ContainsAny(raw, "*?")
}

// IsWildcardLike reports whether n matches everything in its universe (All or Wildcard).
func (n Name) IsWildcardLike() bool {
	return n.Form == FormAll || n.Form == FormWildcard
}

func (n Name) String() string { return n.Text }

// Index is a Name of KindIndex plus remote-cluster locality. A wire-form "cluster:name"
// parses into a remote Index with a possibly-pattern cluster part.
type Index struct {
	Name    Name
	Remote  bool
	Cluster Name // zero value when Remote is false
}

// ParseIndex parses a raw index token, splitting on the first ':' into cluster:index
// when present. A bare ':' (empty index part) is invalid and treated as a local literal
// colon name — ReadonlyREST's wire format never produces that, so no extra validation
// is performed here.
func ParseIndex(raw string) Index {
	if i := strings.IndexByte(raw, ':'); i > 0 {
		clusterPart := raw[:i]
		indexPart := raw[i+1:]
		return Index{
			Name:    Parse(KindIndex, indexPart),
			Remote:  true,
			Cluster: Parse(KindIndex, clusterPart),
		}
	}
	return Index{Name: Parse(KindIndex, raw)}
}

func (ix Index) String() string {
	if ix.Remote {
		return ix.Cluster.Text + ":" + ix.Name.Text
	}
	return ix.Name.Text
}

// IsWildcardLike reports whether the index part matches everything (locality irrelevant).
func (ix Index) IsWildcardLike() bool { return ix.Name.IsWildcardLike() }

// Package block implements the block context (§3 BlockContext, §4.3): the accumulated,
// possibly-rewritten view of a request that each rule reads and narrows as it runs.
package block

import (
	"github.com/kubilitics/kubilitics-backend/internal/name"
)

// Kind discriminates the tagged BlockContext variants of §3.
type Kind int

const (
	KindGeneralIndex Kind = iota
	KindFilterableSingle
	KindFilterableMulti
	KindTemplate
	KindSnapshot
	KindRepository
	KindRorAPI
	KindCurrentUserMetadata
	KindGeneral
)

// Indices is the sum type used by FilterableMulti index packs: either a concrete set of
// admitted indices, or NotFound when the pack resolved to nothing (§3).
type Indices struct {
	Found    bool
	Names    []name.Index
	NotFound bool
}

func FoundIndices(names []name.Index) Indices { return Indices{Found: true, Names: names} }
func NotFoundIndices() Indices                { return Indices{NotFound: true} }

// KibanaAccess is the single scalar access level of §4.7.
type KibanaAccess int

const (
	KibanaAccessUnset KibanaAccess = iota
	KibanaAccessRoStrict
	KibanaAccessRo
	KibanaAccessRw
	KibanaAccessAdmin
	KibanaAccessUnrestricted
)

// UserMetadata is §3's UserMetadata record.
type UserMetadata struct {
	LoggedUser       string
	HasLoggedUser    bool
	CurrentGroup     string
	AvailableGroups  []string // ordered-unique
	FoundKibanaIndex string
	HiddenKibanaApps []name.Name
	KibanaAccess     KibanaAccess
	UserOrigin       string
	JWTToken         string
}

// ResponseTemplateTransformation rewrites the outbound template-get response; stashed on
// the block context by the indices rule's template-get path (§4.5.3) and applied by the
// host adapter after the upstream call completes.
type ResponseTemplateTransformation func(templates []TemplateView) []TemplateView

// TemplateView is the adapter-facing shape of a single template in a get-templates
// response, after narrowing.
type TemplateView struct {
	Name     string
	Patterns []name.Name
	Aliases  []name.Name
}

// Context is the mutable-in-intent, immutable-in-representation record threaded through
// rules. Each rule receives a Context and returns a new one (§3 Lifecycles); the zero
// value is never evaluated directly — New creates the fresh per-request context.
type Context struct {
	Kind Kind

	UserMetadata UserMetadata

	// ResponseHeaders accumulates header additions rules want applied to the outbound
	// response (§3: "response-header additions").
	ResponseHeaders map[string][]string

	ResponseTemplateTransform ResponseTemplateTransformation

	// Filter is a query the downstream engine should additionally apply (FLS/filter
	// rules write this); FLSFields restricts which document fields are surfaced.
	Filter       string
	HasFilter    bool
	FLSFields    []string
	HasFLS       bool

	// GeneralIndex / FilterableMulti fields (§3).
	FilteredIndices   []name.Index
	AllAllowedIndices []name.Index
	IndexPacks        []Indices

	// Template fields (§3).
	TemplateOperation TemplateOperation

	// Snapshot/Repository fields (§3).
	Snapshots    []name.Name
	Repositories []name.Name

	// KibanaIndex is the resolved Kibana data index for this request (overridable per
	// tenant by the Kibana rule, §4.7).
	KibanaIndex string
}

// New builds the fresh per-request context for the given request kind (§3 Lifecycles:
// "created fresh per request from the immutable request handle").
func New(kind Kind) *Context {
	return &Context{
		Kind:            kind,
		ResponseHeaders: map[string][]string{},
	}
}

// Clone returns a shallow-structural copy suitable for a rule to mutate and return as
// its Fulfilled result, preserving the "each rule returns a new context" contract without
// forcing every rule to hand-roll field copying.
func (c *Context) Clone() *Context {
	cp := *c
	cp.ResponseHeaders = make(map[string][]string, len(c.ResponseHeaders))
	for k, v := range c.ResponseHeaders {
		cp.ResponseHeaders[k] = append([]string(nil), v...)
	}
	cp.FilteredIndices = append([]name.Index(nil), c.FilteredIndices...)
	cp.AllAllowedIndices = append([]name.Index(nil), c.AllAllowedIndices...)
	cp.IndexPacks = append([]Indices(nil), c.IndexPacks...)
	cp.Snapshots = append([]name.Name(nil), c.Snapshots...)
	cp.Repositories = append([]name.Name(nil), c.Repositories...)
	cp.UserMetadata.AvailableGroups = append([]string(nil), c.UserMetadata.AvailableGroups...)
	cp.UserMetadata.HiddenKibanaApps = append([]name.Name(nil), c.UserMetadata.HiddenKibanaApps...)
	return &cp
}

// AddResponseHeader accumulates a response-header addition on a cloned context.
func (c *Context) AddResponseHeader(key, value string) {
	c.ResponseHeaders[key] = append(c.ResponseHeaders[key], value)
}

// Invariant (§3): FilteredIndices must be a subset of AllAllowedIndices whenever both are
// populated. engine.Evaluate calls CheckInvariants once on a matching block's final
// context, in every build, and returns a violation to its caller as an error instead of
// an Outcome, so the request is never silently allowed (§7).
func (c *Context) CheckInvariants() error {
	if len(c.AllAllowedIndices) == 0 || len(c.FilteredIndices) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(c.AllAllowedIndices))
	for _, a := range c.AllAllowedIndices {
		allowed[a.String()] = true
	}
	for _, f := range c.FilteredIndices {
		if !allowed[f.String()] {
			return &InvariantError{Detail: "filteredIndices contains " + f.String() + " not present in allAllowedIndices"}
		}
	}
	return nil
}

// InvariantError signals a ShouldBeInterrupted condition (§7): an engine bug, never a
// rule-level rejection.
type InvariantError struct{ Detail string }

func (e *InvariantError) Error() string { return "block context invariant violated: " + e.Detail }

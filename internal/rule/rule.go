// Package rule implements the individual access-control rules (§4.4–§4.7) that a block
// orchestrator (package engine) runs in order against a request.
package rule

import (
	"context"
	"strings"

	"github.com/kubilitics/kubilitics-backend/internal/authbackend"
	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/name"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

// Cause enumerates why a rule rejected a request (§7 Error Handling Design: "a Rejected
// outcome always carries a named cause, never a bare bool").
type Cause string

const (
	CauseAuthenticationFailed     Cause = "AUTHENTICATION_FAILED"
	CauseOperationNotAllowed      Cause = "OPERATION_NOT_ALLOWED"
	CauseIndexNotFound            Cause = "INDEX_NOT_FOUND"
	CauseIndexForbidden           Cause = "INDEX_FORBIDDEN"
	CauseTemplateForbidden        Cause = "TEMPLATE_FORBIDDEN"
	CauseTemplateNotFound         Cause = "TEMPLATE_NOT_FOUND"
	CauseSnapshotForbidden        Cause = "SNAPSHOT_FORBIDDEN"
	CauseRepositoryForbidden      Cause = "REPOSITORY_FORBIDDEN"
	CauseKibanaAccessDenied       Cause = "KIBANA_ACCESS_DENIED"
	CauseVariableResolutionFailed Cause = "VARIABLE_RESOLUTION_FAILED"
	CauseActionForbidden          Cause = "ACTION_FORBIDDEN"
)

// Verdict is the three-way result every rule produces (§4.4: Matched / Rejected /
// PassedThrough — PassedThrough meaning "this rule has nothing to say about this request
// kind", distinct from a rejection).
type Verdict int

const (
	VerdictMatched Verdict = iota
	VerdictRejected
	VerdictPassedThrough
)

// Outcome is a rule's verdict plus, on a match, the narrowed context the next rule in the
// block should see.
type Outcome struct {
	Verdict Verdict
	Context *block.Context
	Cause   Cause
	// Detail is a human-readable elaboration of Cause, logged but never used for control
	// flow (§7: "causes are a closed enum for control flow; detail strings are for
	// operators").
	Detail string
}

func Matched(ctx *block.Context) Outcome {
	return Outcome{Verdict: VerdictMatched, Context: ctx}
}

func Rejected(cause Cause, detail string) Outcome {
	return Outcome{Verdict: VerdictRejected, Cause: cause, Detail: detail}
}

func PassedThrough() Outcome {
	return Outcome{Verdict: VerdictPassedThrough}
}

// Request is the immutable request handle a rule reads from; it never changes across a
// block's rule chain (§3: "the request handle is immutable for the lifetime of
// evaluation; only the context narrows"). RequestedIndices/TemplateOp/RequestedSnapshots/... carry
// whatever the request kind (block.Kind) makes relevant; rules ignore fields outside
// their own concern.
type Request struct {
	Action string // the ES action name, e.g. "indices:data/read/search"
	Path   string // the raw HTTP request path, used by the Kibana rule's URI special cases

	RequestedIndices []name.Index
	RequestedKibanaApp name.Name

	// Credential is the single inbound authentication attempt the request carries —
	// at most one mechanism is ever in play for a real request (one Authorization
	// header, one set of trusted-proxy headers, one bearer token). Each block's own
	// AuthRule decides independently whether this credential satisfies what that
	// particular block requires (§4.2/§4.3).
	Credential authbackend.Credential

	TemplateOp block.TemplateOperation

	RequestedSnapshots    []name.Name
	RequestedRepositories []name.Name

	Resolution variable.ResolutionContext

	// Universe resolves configured/requested patterns against a concrete inventory when
	// one is available (§4.1 case 4); nil when the host adapter has none cached.
	Universe name.Universe
}

// Rule is one named, independently testable access-control check (§4.4). Check receives
// the context as narrowed by every rule before it in the block and either narrows it
// further (Matched), stops the block (Rejected), or declines to apply to this request
// kind (PassedThrough).
type Rule interface {
	Name() string
	Check(ctx context.Context, bctx *block.Context, req *Request) (Outcome, error)
}

// mandatorySingleIndexActions are ES admin actions whose semantics genuinely require
// exactly one target index — creating, deleting, or changing the lifecycle state of an
// index is never a multi-index fan-out the way a search or bulk request is.
var mandatorySingleIndexActions = map[string]bool{
	"indices:admin/create":          true,
	"indices:admin/delete":          true,
	"indices:admin/open":            true,
	"indices:admin/close":           true,
	"indices:admin/shrink":          true,
	"indices:admin/split":           true,
	"indices:admin/clone":           true,
	"indices:admin/rollover":        true,
	"indices:admin/settings/update": true,
}

// IsMandatorySingleIndexAction reports whether action names one of the admin operations
// that only ever makes sense against a single concrete index.
func IsMandatorySingleIndexAction(action string) bool {
	return mandatorySingleIndexActions[action]
}

// IsSearchAction reports whether action is a read/search-shaped request — these are
// filterable-multi by nature even when the caller happened to name exactly one index, so
// the request kind must come from the action, not from counting RequestedIndices.
func IsSearchAction(action string) bool {
	return strings.HasPrefix(action, "indices:data/read/")
}

// Ordinal returns the rule's position in the fixed evaluation order every block follows
// regardless of its rules' configuration order (§4.4: authentication, then
// authorization, then resource rules without variables, then resource rules with
// variables, then filter/FLS/response-transform rules last). Lower sorts first.
func Ordinal(r Rule) int {
	switch r.Name() {
	case "auth_key", "auth_key_sha256", "ldap_auth", "jwt_auth", "proxy_auth":
		return 0
	case "groups", "ldap_authorization":
		return 1
	case "kibana_access":
		return 2
	case "indices":
		if ir, ok := r.(*IndicesRule); ok {
			for _, p := range ir.Patterns {
				if t, err := variable.Parse(p); err == nil && len(t.Categories()) > 0 {
					return 4
				}
			}
		}
		return 3
	case "snapshots", "repositories", "actions":
		return 3
	case "filter", "fields", "response_transform":
		return 5
	default:
		return 3
	}
}

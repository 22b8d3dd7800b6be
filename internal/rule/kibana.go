package rule

import (
	"context"
	"strings"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/name"
)

// KibanaActionClass is one of §4.7's four supplied action classes (RO/RW/CLUSTER/ADMIN),
// plus the two classes the rule needs for its own bookkeeping: Other (anything the table
// doesn't name, permitted only under Unrestricted) and AlwaysAllowed (the URI-path
// special cases that bypass the table entirely).
type KibanaActionClass int

const (
	ClassRO KibanaActionClass = iota
	ClassCLUSTER
	ClassRW
	ClassADMIN
	ClassOther
	ClassAlwaysAllowed
)

// KibanaRule implements §4.7: a Kibana access level (RoStrict/Ro/Rw/Admin/Unrestricted)
// gates which action classes are permitted, with a handful of URI-path special cases
// that bypass the class table entirely.
type KibanaRule struct {
	Access      block.KibanaAccess
	KibanaIndex string
	HiddenApps  []string
}

func (r *KibanaRule) Name() string { return "kibana_access" }

// alwaysAllowedPaths are permitted at every access level, mirroring the real product's
// allowance of navigation chrome and session endpoints regardless of data access (§4.7).
var alwaysAllowedPaths = []string{
	"/api/status",
	"/api/licensing",
	"/api/security/v1/login",
	"/api/security/logout",
	"/login",
	"/logout",
	"/app/home",
}

// ClassifyPath applies §4.7's URI-path special cases ahead of the generic action-class
// table; returns (class, true) when the path is special-cased, (_, false) otherwise.
// Spaces and role management are classified ADMIN: they mutate access control itself, the
// same surface ROR's own admin actions occupy.
func ClassifyPath(path string) (KibanaActionClass, bool) {
	for _, p := range alwaysAllowedPaths {
		if strings.HasPrefix(path, p) {
			return ClassAlwaysAllowed, true
		}
	}
	if strings.HasPrefix(path, "/api/spaces/") || strings.HasPrefix(path, "/api/security/role") {
		return ClassADMIN, true
	}
	return 0, false
}

// rorAdminActions are ROR's own administrative actions (§4.7): allowed only under Admin
// or Unrestricted, regardless of how generously the block otherwise treats RW/CLUSTER.
var rorAdminActions = map[string]bool{
	"cluster:ror/user_metadata": true,
	"cluster:ror/config/get":    true,
	"cluster:ror/config/update": true,
	"cluster:ror/audit_event":   true,
}

// classifyAction maps an action name to one of §4.7's four classes when no URI special
// case applies. Real ES action names carry "indices:"/"cluster:" prefixes; Kibana's own
// internal API also issues bare verb-shaped names (e.g. "saved_objects/create") that
// carry no such prefix, so the verb fallback below covers both.
func classifyAction(action string) KibanaActionClass {
	if rorAdminActions[action] {
		return ClassADMIN
	}
	switch {
	case strings.HasPrefix(action, "cluster:"):
		return ClassCLUSTER
	case strings.Contains(action, "role"), strings.Contains(action, "space"):
		return ClassADMIN
	case strings.Contains(action, "delete"),
		strings.Contains(action, "create"),
		strings.Contains(action, "update"),
		strings.Contains(action, "write"),
		strings.Contains(action, "bulk"):
		return ClassRW
	case strings.HasPrefix(action, "indices:data/read/"):
		return ClassRO
	default:
		return ClassRO
	}
}

// isKibanaSelfWrite detects the §4.7 footnote's write allow-list: a write action whose
// URI targets the Kibana index's own documents, index patterns, or templates — the
// mutations Kibana itself issues just rendering its UI, as opposed to a tenant writing
// application data under the same index.
func isKibanaSelfWrite(action, path, kibanaIndex string) bool {
	if kibanaIndex == "" || !strings.HasPrefix(action, "indices:data/write/") {
		return false
	}
	prefix := "/" + kibanaIndex + "/"
	if rest, ok := strings.CutPrefix(path, prefix); ok {
		for _, seg := range []string{"doc/", "_create/", "_update/", "_doc/", "url/", "index-pattern/", "config/"} {
			if strings.HasPrefix(rest, seg) {
				return true
			}
		}
	}
	return strings.HasPrefix(path, "/_template/kibana_index_template")
}

// allIndicesAreKibanaIndex reports whether every requested index equals the configured
// Kibana index (§4.7's Rw write condition). Vacuously true when the request names no
// index at all, e.g. a cluster-level Kibana call.
func allIndicesAreKibanaIndex(indices []name.Index, kibanaIndex string) bool {
	for _, ix := range indices {
		if ix.String() != kibanaIndex {
			return false
		}
	}
	return true
}

// Check implements the access-level x action-class decision table using the rule's own
// Access and KibanaIndex (whatever bctx already carries is not consulted). On a match it
// records the Kibana index, access level and hidden apps in the returned context's
// UserMetadata. It never passes through.
func (r *KibanaRule) Check(_ context.Context, bctx *block.Context, req *Request) (Outcome, error) {
	class := classifyAction(req.Action)
	if special, ok := ClassifyPath(req.Path); ok {
		class = special
	}

	out := bctx.Clone()
	out.KibanaIndex = r.KibanaIndex
	out.UserMetadata.FoundKibanaIndex = r.KibanaIndex
	out.UserMetadata.KibanaAccess = r.Access
	out.UserMetadata.HiddenKibanaApps = hiddenAppNames(r.HiddenApps)

	if class == ClassAlwaysAllowed {
		return Matched(out), nil
	}

	selfWrite := isKibanaSelfWrite(req.Action, req.Path, r.KibanaIndex)
	allKibana := allIndicesAreKibanaIndex(req.RequestedIndices, r.KibanaIndex)
	if !accessPermits(r.Access, class, selfWrite, allKibana) {
		return Rejected(CauseKibanaAccessDenied, "kibana access level does not permit this action class"), nil
	}
	return Matched(out), nil
}

// accessPermits is §4.7's decision table verbatim. RoStrict permits only RO; Ro
// additionally permits CLUSTER but never RW, even via the self-write allow-list, which
// the footnote specifically forbids under Ro. Rw and Admin permit RW only when every
// requested index is the Kibana index or the request is on the self-write allow-list;
// Admin additionally permits ADMIN. Unrestricted permits everything.
func accessPermits(access block.KibanaAccess, class KibanaActionClass, selfWrite, allIndicesAreKibana bool) bool {
	switch access {
	case block.KibanaAccessUnrestricted:
		return true
	case block.KibanaAccessRoStrict:
		return class == ClassRO
	case block.KibanaAccessRo:
		return class == ClassRO || class == ClassCLUSTER
	case block.KibanaAccessRw:
		switch class {
		case ClassRO, ClassCLUSTER:
			return true
		case ClassRW:
			return selfWrite || allIndicesAreKibana
		default:
			return false
		}
	case block.KibanaAccessAdmin:
		switch class {
		case ClassRO, ClassCLUSTER, ClassADMIN:
			return true
		case ClassRW:
			return selfWrite || allIndicesAreKibana
		default:
			return false
		}
	default:
		return false
	}
}

func hiddenAppNames(apps []string) []name.Name {
	out := make([]name.Name, 0, len(apps))
	for _, a := range apps {
		out = append(out, name.Parse(name.KindKibanaApp, a))
	}
	return out
}

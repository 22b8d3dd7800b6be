package rule

import (
	"context"

	"github.com/kubilitics/kubilitics-backend/internal/block"
)

// GroupsRule implements §4.4's group-membership gate: a block configured with a groups
// list only matches a request whose resolved identity (§4.2's authentication-requiring
// variable categories; written into req.Resolution once by the authenticating backend,
// never by a rule) belongs to one of the configured groups. The matching group is
// recorded on the context's UserMetadata for the host adapter's own reporting; it has no
// effect on this request's variable resolution, which already happened once before the
// block ran.
type GroupsRule struct {
	Groups []string
}

func NewGroupsRule(groups []string) *GroupsRule {
	return &GroupsRule{Groups: groups}
}

func (r *GroupsRule) Name() string { return "groups" }

func (r *GroupsRule) Check(_ context.Context, bctx *block.Context, req *Request) (Outcome, error) {
	if req.Resolution.User == "" {
		return Rejected(CauseAuthenticationFailed, "groups rule requires an authenticated user"), nil
	}

	candidates := req.Resolution.AvailableGroups
	if req.Resolution.CurrentGroup != "" {
		candidates = append([]string{req.Resolution.CurrentGroup}, candidates...)
	}
	matched := firstMatchingGroup(r.Groups, candidates)
	if matched == "" {
		return Rejected(CauseOperationNotAllowed, "user's groups do not intersect the block's configured groups"), nil
	}

	out := bctx.Clone()
	out.UserMetadata.HasLoggedUser = true
	out.UserMetadata.LoggedUser = req.Resolution.User
	out.UserMetadata.CurrentGroup = matched
	out.UserMetadata.AvailableGroups = req.Resolution.AvailableGroups
	return Matched(out), nil
}

// firstMatchingGroup returns the first configured group present in the candidate list,
// preserving the configured list's order (§4.4: configuration order breaks ties, not the
// user's own group ordering).
func firstMatchingGroup(configured, candidates []string) string {
	set := make(map[string]bool, len(candidates))
	for _, g := range candidates {
		set[g] = true
	}
	for _, g := range configured {
		if set[g] {
			return g
		}
	}
	return ""
}

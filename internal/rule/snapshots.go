package rule

import (
	"context"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/name"
)

// SnapshotsRule and RepositoriesRule implement §4.6: the same admitted-subset reasoning
// as the indices rule, applied to the snapshot and repository name universes instead.
// They're kept as two small rules rather than one combined rule because a block may
// configure only one of the two (§4.6: "a block that names repositories but not
// snapshots still constrains repository-listing and restore-target operations").
type SnapshotsRule struct {
	Patterns []string
	Matcher  name.Matcher
}

func NewSnapshotsRule(patterns []string) *SnapshotsRule {
	return &SnapshotsRule{Patterns: patterns, Matcher: name.NewMatcher()}
}

func (r *SnapshotsRule) Name() string { return "snapshots" }

func (r *SnapshotsRule) Check(_ context.Context, bctx *block.Context, req *Request) (Outcome, error) {
	if bctx.Kind != block.KindSnapshot {
		return PassedThrough(), nil
	}
	configured := toNames(r.Patterns, name.KindSnapshot)
	requested := req.RequestedSnapshots
	if len(requested) == 0 {
		requested = []name.Name{name.Parse(name.KindSnapshot, "*")}
	}
	var admitted []name.Name
	for _, rn := range requested {
		if r.Matcher.Match(configured, rn, req.Universe) {
			admitted = append(admitted, rn)
		}
	}
	if len(admitted) == 0 {
		return Rejected(CauseSnapshotForbidden, "no configured snapshot pattern admits the requested name"), nil
	}
	out := bctx.Clone()
	out.Snapshots = admitted
	return Matched(out), nil
}

type RepositoriesRule struct {
	Patterns []string
	Matcher  name.Matcher
}

func NewRepositoriesRule(patterns []string) *RepositoriesRule {
	return &RepositoriesRule{Patterns: patterns, Matcher: name.NewMatcher()}
}

func (r *RepositoriesRule) Name() string { return "repositories" }

func (r *RepositoriesRule) Check(_ context.Context, bctx *block.Context, req *Request) (Outcome, error) {
	if bctx.Kind != block.KindRepository {
		return PassedThrough(), nil
	}
	configured := toNames(r.Patterns, name.KindRepository)
	requested := req.RequestedRepositories
	if len(requested) == 0 {
		requested = []name.Name{name.Parse(name.KindRepository, "*")}
	}
	var admitted []name.Name
	for _, rn := range requested {
		if r.Matcher.Match(configured, rn, req.Universe) {
			admitted = append(admitted, rn)
		}
	}
	if len(admitted) == 0 {
		return Rejected(CauseRepositoryForbidden, "no configured repository pattern admits the requested name"), nil
	}
	out := bctx.Clone()
	out.Repositories = admitted
	return Matched(out), nil
}

func toNames(patterns []string, kind name.Kind) []name.Name {
	out := make([]name.Name, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, name.Parse(kind, p))
	}
	return out
}

package rule

import (
	"context"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

// FilterRule implements §4.4's document-filter attachment: a block configured with a
// filter query narrows every matched document read down to whatever the downstream
// engine's own query layer does with bctx.Filter. Ordinal places it last in a block's
// rule chain (§4.4), since it only decorates an already-Matched context rather than
// admitting or rejecting anything itself.
type FilterRule struct {
	// Filter is the raw configured query, which may itself use runtime variables (e.g. a
	// per-tenant filter keyed on @{user}), resolved once per request exactly like an
	// index pattern (§4.2).
	Filter string
}

func NewFilterRule(filter string) *FilterRule {
	return &FilterRule{Filter: filter}
}

func (r *FilterRule) Name() string { return "filter" }

func (r *FilterRule) Check(_ context.Context, bctx *block.Context, req *Request) (Outcome, error) {
	tmpl, err := variable.Parse(r.Filter)
	if err != nil {
		return Rejected(CauseVariableResolutionFailed, err.Error()), nil
	}
	resolved, err := tmpl.Resolve(req.Resolution)
	if err != nil {
		return Rejected(CauseVariableResolutionFailed, err.Error()), nil
	}

	out := bctx.Clone()
	out.Filter = resolved[0]
	out.HasFilter = true
	return Matched(out), nil
}

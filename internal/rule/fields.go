package rule

import (
	"context"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

// FLSRule implements §4.4's field-level-security attachment: a block configured with a
// fields list restricts which document fields a matched read is allowed to surface.
// Field names rarely carry variables but the configuration format allows the same
// templates as an index pattern (e.g. restricting to a @{user}-prefixed custom field),
// so each entry is resolved exactly like one (§4.2).
type FLSRule struct {
	Fields []string
}

func NewFLSRule(fields []string) *FLSRule {
	return &FLSRule{Fields: fields}
}

func (r *FLSRule) Name() string { return "fields" }

func (r *FLSRule) Check(_ context.Context, bctx *block.Context, req *Request) (Outcome, error) {
	resolved := make([]string, 0, len(r.Fields))
	for _, raw := range r.Fields {
		tmpl, err := variable.Parse(raw)
		if err != nil {
			return Rejected(CauseVariableResolutionFailed, err.Error()), nil
		}
		values, err := tmpl.Resolve(req.Resolution)
		if err != nil {
			return Rejected(CauseVariableResolutionFailed, err.Error()), nil
		}
		resolved = append(resolved, values...)
	}

	out := bctx.Clone()
	out.FLSFields = resolved
	out.HasFLS = true
	return Matched(out), nil
}

// Package engine implements the block orchestrator (§4.4, C8): running a policy's
// ordered blocks against a request until one matches or the policy is exhausted.
package engine

import (
	"context"
	"sort"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-backend/internal/rule"
)

// Policy is a Block's disposition when every one of its rules matches (§4.4: a block is
// configured "allow" or "forbid").
type Policy int

const (
	PolicyAllow Policy = iota
	PolicyForbid
)

// Block is one named, ordered rule chain plus its disposition.
type Block struct {
	Name   string
	Policy Policy
	Rules  []rule.Rule
}

// sortedRules returns the block's rules in the fixed evaluation order (§4.4), stable
// across rules sharing an ordinal so configuration order still breaks ties within a
// phase.
func (b Block) sortedRules() []rule.Rule {
	out := append([]rule.Rule(nil), b.Rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return rule.Ordinal(out[i]) < rule.Ordinal(out[j])
	})
	return out
}

// OutcomeKind is the engine-level decision (§4.4): Allow (a matching allow-block),
// ForbiddenByMatched (a matching forbid-block), ForbiddenByMismatched (no block in the
// policy matched at all, the default-deny boundary), or NotFound (every block that could
// have applied rejected specifically because the requested resource doesn't exist, never
// because access was denied — surfaced distinctly so the host adapter can choose a 404
// instead of a 403, per §4.5.2's IndexNotFound boundary behaviour).
type OutcomeKind int

const (
	OutcomeAllow OutcomeKind = iota
	OutcomeForbiddenByMatched
	OutcomeForbiddenByMismatched
	OutcomeNotFound
)

// Outcome is the engine's final decision plus the full per-block history for auditing
// (§3 History, §7).
type Outcome struct {
	Kind          OutcomeKind
	MatchedBlock  string
	Context       *block.Context
	History       []block.History
}

// Evaluate runs each block of the policy, in order, against req, stopping at the first
// block whose every rule matches (§4.4: "first-match wins; later blocks are never
// consulted once one matches"). ctx carries cancellation for the external lookups rules
// may perform via req.Universe.
func Evaluate(ctx context.Context, blocks []Block, req *rule.Request) (Outcome, error) {
	var histories []block.History
	allNotFound := true

	for _, b := range blocks {
		current := block.New(inferKind(req))
		var entries []block.RuleHistoryEntry
		rejected := false

		for _, r := range b.sortedRules() {
			out, err := r.Check(ctx, current, req)
			if err != nil {
				return Outcome{}, err
			}
			switch out.Verdict {
			case rule.VerdictPassedThrough:
				continue
			case rule.VerdictMatched:
				current = out.Context
				entries = append(entries, block.RuleHistoryEntry{RuleName: r.Name(), Outcome: block.OutcomeMatched})
			case rule.VerdictRejected:
				entries = append(entries, block.RuleHistoryEntry{RuleName: r.Name(), Outcome: block.OutcomeRejected, Cause: string(out.Cause)})
				metrics.RuleRejectionsTotal.WithLabelValues(string(out.Cause)).Inc()
				rejected = true
				if out.Cause != rule.CauseIndexNotFound && out.Cause != rule.CauseTemplateNotFound {
					allNotFound = false
				}
			}
			if rejected {
				break
			}
		}

		h := block.History{Block: b.Name, RuleHistory: entries, ResolvedContext: current}
		histories = append(histories, h)

		if rejected {
			continue
		}
		allNotFound = false
		if err := current.CheckInvariants(); err != nil {
			return Outcome{}, err
		}
		kind := OutcomeAllow
		if b.Policy == PolicyForbid {
			kind = OutcomeForbiddenByMatched
		}
		metrics.DecisionsTotal.WithLabelValues(outcomeLabel(kind), b.Name).Inc()
		return Outcome{Kind: kind, MatchedBlock: b.Name, Context: current, History: histories}, nil
	}

	if allNotFound && len(blocks) > 0 {
		metrics.DecisionsTotal.WithLabelValues(outcomeLabel(OutcomeNotFound), "").Inc()
		return Outcome{Kind: OutcomeNotFound, History: histories}, nil
	}
	metrics.DecisionsTotal.WithLabelValues(outcomeLabel(OutcomeForbiddenByMismatched), "").Inc()
	return Outcome{Kind: OutcomeForbiddenByMismatched, History: histories}, nil
}

func outcomeLabel(kind OutcomeKind) string {
	switch kind {
	case OutcomeAllow:
		return "allow"
	case OutcomeForbiddenByMatched:
		return "forbidden_matched"
	case OutcomeForbiddenByMismatched:
		return "forbidden_mismatched"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// inferKind derives the BlockContext kind a request needs from its action and payload
// shape. Host adapters that already know the kind should prefer constructing the context
// themselves; this is the default used when the request carries no explicit kind hint.
// The kind must come from what the action DOES, not from how many indices happen to be
// named: a single-index search is still a filterable-multi/general read, never the
// mandatory-single semantics reserved for admin operations like index create/delete that
// only ever target exactly one index.
func inferKind(req *rule.Request) block.Kind {
	switch {
	case req.TemplateOp.Action != 0 || len(req.TemplateOp.RequestedNames) > 0 || req.TemplateOp.TemplateName != "":
		return block.KindTemplate
	case len(req.RequestedSnapshots) > 0:
		return block.KindSnapshot
	case len(req.RequestedRepositories) > 0:
		return block.KindRepository
	case rule.IsSearchAction(req.Action):
		return block.KindFilterableMulti
	case rule.IsMandatorySingleIndexAction(req.Action):
		return block.KindFilterableSingle
	case len(req.RequestedIndices) > 1:
		return block.KindFilterableMulti
	case len(req.RequestedIndices) == 1:
		return block.KindFilterableSingle
	default:
		return block.KindGeneralIndex
	}
}

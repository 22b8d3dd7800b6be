// Package historystore persists the evaluation History records the engine produces
// (one per request, win-or-lose) for later audit queries. Mirrors the teacher's
// SQLite-vs-"no DSN configured" fallback pattern, generalized to Postgres via sqlx.
package historystore

import (
	"context"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/engine"
)

// Record is the persisted shape of one evaluation, independent of the in-process
// engine.Outcome/block.History types so the store schema doesn't churn with the engine.
type Record struct {
	ID          int64     `db:"id" json:"id"`
	RequestedAt time.Time `db:"requested_at" json:"requestedAt"`
	Outcome     string    `db:"outcome" json:"outcome"`
	MatchedBlock string   `db:"matched_block" json:"matchedBlock,omitempty"`
	Detail      string    `db:"detail" json:"detail,omitempty"`
}

// Store appends and queries evaluation history.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// FromOutcome reifies an engine.Outcome into a persistable Record.
func FromOutcome(out engine.Outcome) Record {
	rec := Record{
		RequestedAt: time.Now().UTC(),
		Outcome:     outcomeString(out.Kind),
		MatchedBlock: out.MatchedBlock,
	}
	if len(out.History) > 0 {
		last := out.History[len(out.History)-1]
		rec.Detail = last.RejectionCause()
	}
	return rec
}

func outcomeString(k engine.OutcomeKind) string {
	switch k {
	case engine.OutcomeAllow:
		return "allow"
	case engine.OutcomeForbiddenByMatched:
		return "forbidden_matched"
	case engine.OutcomeForbiddenByMismatched:
		return "forbidden_mismatched"
	case engine.OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}


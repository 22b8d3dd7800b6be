package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/name"
)

func TestNewContextHasEmptyHeaders(t *testing.T) {
	c := New(KindGeneralIndex)
	assert.NotNil(t, c.ResponseHeaders)
	assert.Empty(t, c.ResponseHeaders)
}

func TestCloneIsIndependent(t *testing.T) {
	c := New(KindFilterableMulti)
	c.AllAllowedIndices = []name.Index{name.ParseIndex("logs-1")}
	clone := c.Clone()
	clone.AllAllowedIndices = append(clone.AllAllowedIndices, name.ParseIndex("logs-2"))
	assert.Len(t, c.AllAllowedIndices, 1, "mutating the clone must not affect the original")
	assert.Len(t, clone.AllAllowedIndices, 2)
}

func TestCheckInvariantsCatchesFilteredNotSubsetOfAllowed(t *testing.T) {
	c := New(KindFilterableMulti)
	c.AllAllowedIndices = []name.Index{name.ParseIndex("logs-1")}
	c.FilteredIndices = []name.Index{name.ParseIndex("logs-2")}
	err := c.CheckInvariants()
	require.Error(t, err)
	var invErr *InvariantError
	assert.ErrorAs(t, err, &invErr)
}

func TestCheckInvariantsPassesWhenSubset(t *testing.T) {
	c := New(KindFilterableMulti)
	c.AllAllowedIndices = []name.Index{name.ParseIndex("logs-1"), name.ParseIndex("logs-2")}
	c.FilteredIndices = []name.Index{name.ParseIndex("logs-1")}
	assert.NoError(t, c.CheckInvariants())
}

func TestHistoryMatchedRequiresAllRulesMatched(t *testing.T) {
	h := History{RuleHistory: []RuleHistoryEntry{
		{RuleName: "auth_key", Outcome: OutcomeMatched},
		{RuleName: "indices", Outcome: OutcomeMatched},
	}}
	assert.True(t, h.Matched())
}

func TestHistoryMatchedFalseOnRejection(t *testing.T) {
	h := History{RuleHistory: []RuleHistoryEntry{
		{RuleName: "auth_key", Outcome: OutcomeMatched},
		{RuleName: "indices", Outcome: OutcomeRejected, Cause: "IndexNotFound"},
	}}
	assert.False(t, h.Matched())
	assert.Equal(t, "IndexNotFound", h.RejectionCause())
}

func TestHistoryMatchedFalseWhenEmpty(t *testing.T) {
	assert.False(t, History{}.Matched())
}

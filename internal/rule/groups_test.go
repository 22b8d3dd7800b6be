package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

func TestGroupsRuleRejectsUnauthenticated(t *testing.T) {
	r := NewGroupsRule([]string{"ops"})
	out, err := r.Check(context.Background(), block.New(block.KindGeneralIndex), &Request{})
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseAuthenticationFailed, out.Cause)
}

func TestGroupsRuleRejectsNonIntersectingGroups(t *testing.T) {
	r := NewGroupsRule([]string{"ops"})
	req := &Request{Resolution: variable.ResolutionContext{User: "dev1", AvailableGroups: []string{"dev"}}}
	out, err := r.Check(context.Background(), block.New(block.KindGeneralIndex), req)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseOperationNotAllowed, out.Cause)
}

func TestGroupsRuleMatchesAndRecordsCurrentGroup(t *testing.T) {
	r := NewGroupsRule([]string{"ops", "dev"})
	req := &Request{Resolution: variable.ResolutionContext{User: "dev1", AvailableGroups: []string{"dev", "ops"}}}
	out, err := r.Check(context.Background(), block.New(block.KindGeneralIndex), req)
	require.NoError(t, err)
	assert.Equal(t, VerdictMatched, out.Verdict)
	assert.Equal(t, "ops", out.Context.UserMetadata.CurrentGroup, "first configured group wins ties, not request order")
	assert.Equal(t, "dev1", out.Context.UserMetadata.LoggedUser)
}

func TestGroupsRulePrefersResolvedCurrentGroup(t *testing.T) {
	r := NewGroupsRule([]string{"dev"})
	req := &Request{Resolution: variable.ResolutionContext{User: "dev1", CurrentGroup: "dev", AvailableGroups: []string{"ops"}}}
	out, err := r.Check(context.Background(), block.New(block.KindGeneralIndex), req)
	require.NoError(t, err)
	assert.Equal(t, VerdictMatched, out.Verdict)
	assert.Equal(t, "dev", out.Context.UserMetadata.CurrentGroup)
}

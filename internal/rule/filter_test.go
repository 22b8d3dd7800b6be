package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

func TestFilterRuleResolvesVariableAndAttachesFilter(t *testing.T) {
	r := NewFilterRule(`{"term":{"owner":"@{user}"}}`)
	req := &Request{Resolution: variable.ResolutionContext{User: "dev1"}}
	out, err := r.Check(context.Background(), block.New(block.KindGeneralIndex), req)
	require.NoError(t, err)
	assert.Equal(t, VerdictMatched, out.Verdict)
	assert.True(t, out.Context.HasFilter)
	assert.Equal(t, `{"term":{"owner":"dev1"}}`, out.Context.Filter)
}

func TestFilterRuleRejectsMissingVariable(t *testing.T) {
	r := NewFilterRule(`{"term":{"owner":"@{user}"}}`)
	out, err := r.Check(context.Background(), block.New(block.KindGeneralIndex), &Request{})
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseVariableResolutionFailed, out.Cause)
}

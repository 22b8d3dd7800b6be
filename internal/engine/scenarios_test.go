package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/auth"
	"github.com/kubilitics/kubilitics-backend/internal/authbackend"
	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/name"
	"github.com/kubilitics/kubilitics-backend/internal/rule"
)

// authKeyRule builds the rule.AuthRule an auth_key directive of "user:password" compiles
// to, the same way rorconfig.compileRules does (§4.2/§4.3), for scenario tests that drive
// the engine end to end without going through the YAML loader.
func authKeyRule(users ...string) *rule.AuthRule {
	store := authbackend.StaticUserStore{}
	for _, u := range users {
		var user, pass string
		for i := 0; i < len(u); i++ {
			if u[i] == ':' {
				user, pass = u[:i], u[i+1:]
				break
			}
		}
		hash, err := auth.HashPassword(pass)
		if err != nil {
			panic(err)
		}
		store[user] = authbackend.UserRecord{PasswordHash: hash}
	}
	return &rule.AuthRule{RuleName: "auth_key", Backend: &authbackend.BasicBackend{Store: store}}
}

// TestFirstMatchingBlockWins covers the basic first-match-wins scenario: two allow
// blocks both cover the request, but the first one in policy order decides it (§4.4).
func TestFirstMatchingBlockWins(t *testing.T) {
	blocks := []Block{
		{Name: "tenant-a", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"logs-a-*"})}},
		{Name: "tenant-b", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"*"})}},
	}
	req := &rule.Request{RequestedIndices: []name.Index{name.ParseIndex("logs-a-1")}}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllow, out.Kind)
	assert.Equal(t, "tenant-a", out.MatchedBlock)
}

// TestForbidBlockWinsOverLaterAllowBlock covers a forbid block matching ahead of an
// allow block that would otherwise have granted access (§4.4).
func TestForbidBlockWinsOverLaterAllowBlock(t *testing.T) {
	blocks := []Block{
		{Name: "deny-admin-indices", Policy: PolicyForbid, Rules: []rule.Rule{rule.NewIndicesRule([]string{".security*"})}},
		{Name: "allow-all", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"*"})}},
	}
	req := &rule.Request{RequestedIndices: []name.Index{name.ParseIndex(".security-7")}}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbiddenByMatched, out.Kind)
	assert.Equal(t, "deny-admin-indices", out.MatchedBlock)
}

// TestNoBlockMatchesIsForbiddenByMismatched covers the default-deny boundary: a request
// that no configured block's rules admit is rejected, not silently passed through.
func TestNoBlockMatchesIsForbiddenByMismatched(t *testing.T) {
	blocks := []Block{
		{Name: "tenant-a", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"logs-a-*"})}},
	}
	req := &rule.Request{TemplateOp: block.TemplateOperation{
		Action:        block.TemplateAdd,
		TemplateName:  "other-template",
		IndexPatterns: []name.Name{name.Parse(name.KindIndex, "other-*")},
	}}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbiddenByMismatched, out.Kind)
}

// TestSingleIndexNotFoundAcrossAllBlocksSurfacesAsNotFound covers the IndexNotFound
// boundary (§4.5.2): every block rejected specifically because the single requested
// index doesn't match any configured pattern, which the engine reports distinctly from
// a generic access denial so the host adapter can answer with a 404.
func TestSingleIndexNotFoundAcrossAllBlocksSurfacesAsNotFound(t *testing.T) {
	blocks := []Block{
		{Name: "tenant-a", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"logs-a-*"})}},
		{Name: "tenant-b", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"logs-b-*"})}},
	}
	req := &rule.Request{RequestedIndices: []name.Index{name.ParseIndex("logs-z-1")}}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out.Kind)
}

// TestBlockHistoryRecordsEveryAttemptedBlock covers §3's History requirement: every
// block the engine tried (not only the winner) appears in the returned history, in
// policy order, each with its own per-rule outcomes.
func TestBlockHistoryRecordsEveryAttemptedBlock(t *testing.T) {
	blocks := []Block{
		{Name: "tenant-a", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"logs-a-*"})}},
		{Name: "tenant-b", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"logs-b-*"})}},
	}
	req := &rule.Request{RequestedIndices: []name.Index{name.ParseIndex("logs-b-1")}}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	require.Len(t, out.History, 2)
	assert.Equal(t, "tenant-a", out.History[0].Block)
	assert.False(t, out.History[0].Matched())
	assert.Equal(t, "tenant-b", out.History[1].Block)
	assert.True(t, out.History[1].Matched())
}

// TestMultiIndexRequestNarrowsToAdmittedSubset covers a filterable-multi request
// admitted only partially by the matching block: the engine still allows, with the
// context narrowed to the admitted subset rather than rejecting the whole request.
func TestMultiIndexRequestNarrowsToAdmittedSubset(t *testing.T) {
	blocks := []Block{
		{Name: "tenant-a", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"logs-a-*"})}},
	}
	req := &rule.Request{RequestedIndices: []name.Index{
		name.ParseIndex("logs-a-1"),
		name.ParseIndex("logs-a-2"),
		name.ParseIndex("other-1"),
	}}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeAllow, out.Kind)
	require.Len(t, out.Context.IndexPacks, 1)
	assert.True(t, out.Context.IndexPacks[0].Found)
	assert.Len(t, out.Context.IndexPacks[0].Names, 2)
}

// TestEvaluationIsIdempotent covers §8 invariant 6: evaluating the same request against
// the same blocks twice yields the same decision.
func TestEvaluationIsIdempotent(t *testing.T) {
	blocks := []Block{
		{Name: "tenant-a", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"logs-a-*"})}},
	}
	req := &rule.Request{RequestedIndices: []name.Index{name.ParseIndex("logs-a-1")}}
	out1, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	out2, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	assert.Equal(t, out1.Kind, out2.Kind)
	assert.Equal(t, out1.MatchedBlock, out2.MatchedBlock)
}

// TestScenario_S1 is the spec's "plain allow" worked example: an authenticated search
// for a single already-admitted remote index is allowed outright, narrowed to exactly
// that index, with a one-block history.
func TestScenario_S1(t *testing.T) {
	blocks := []Block{
		{Name: "test1", Policy: PolicyAllow, Rules: []rule.Rule{
			authKeyRule("dev1:test"),
			rule.NewIndicesRule([]string{"test1_index", "odd:test1_index"}),
		}},
	}
	req := &rule.Request{
		Action:           "indices:data/read/search",
		Credential:       authbackend.BasicCredential{Username: "dev1", Password: "test"},
		RequestedIndices: []name.Index{name.ParseIndex("odd:test1_index")},
	}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeAllow, out.Kind)
	require.Len(t, out.History, 1)
	assert.Equal(t, []name.Index{name.ParseIndex("odd:test1_index")}, out.Context.FilteredIndices)
}

// TestScenario_S2 is the spec's "remote filtered to empty" worked example: a search whose
// glob-shaped index patterns admit nothing still allows — the degenerate "search nothing"
// result is an empty-hits response, not a 404.
func TestScenario_S2(t *testing.T) {
	blocks := []Block{
		{Name: "test1", Policy: PolicyAllow, Rules: []rule.Rule{
			authKeyRule("dev1:test", "dev2:test"),
			rule.NewIndicesRule([]string{"test1_index", "odd:test1_index"}),
		}},
	}
	req := &rule.Request{
		Action:     "indices:data/read/search",
		Credential: authbackend.BasicCredential{Username: "dev2", Password: "test"},
		RequestedIndices: []name.Index{
			name.ParseIndex("etl:etl*"),
			name.ParseIndex("metrics*"),
		},
	}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeAllow, out.Kind)
	assert.Empty(t, out.Context.FilteredIndices)
}

// TestScenario_S3 is the spec's "single concrete remote 404" worked example: the same
// literal index name as S1, but a universe confirming it doesn't actually exist on the
// remote cluster turns the request into IndexNotFound rather than a silent empty result —
// unlike S2's glob-shaped request, a literal name that doesn't exist is a real 404.
func TestScenario_S3(t *testing.T) {
	blocks := []Block{
		{Name: "test1", Policy: PolicyAllow, Rules: []rule.Rule{
			authKeyRule("dev1:test", "dev2:test"),
			rule.NewIndicesRule([]string{"test1_index", "odd:test1_index"}),
		}},
	}
	req := &rule.Request{
		Action:           "indices:data/read/search",
		Credential:       authbackend.BasicCredential{Username: "dev2", Password: "test"},
		RequestedIndices: []name.Index{name.ParseIndex("odd:test1_index")},
		Universe:         name.StaticUniverse{},
	}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out.Kind)
}

// TestScenario_S4 is the spec's "forbid precedence" worked example: a forbid block that
// matches wins outright, even though a later allow block would otherwise have granted
// the same user Kibana access.
func TestScenario_S4(t *testing.T) {
	blocks := []Block{
		{Name: "deny-smg-stats", Policy: PolicyForbid, Rules: []rule.Rule{
			authKeyRule("test:test"),
			rule.NewIndicesRule([]string{"*-logs-smg-stats-*"}),
		}},
		{Name: "allow-kibana", Policy: PolicyAllow, Rules: []rule.Rule{
			authKeyRule("test:test"),
			&rule.KibanaRule{Access: block.KibanaAccessRw, KibanaIndex: ".kibana-xcs"},
		}},
	}
	req := &rule.Request{
		Action:           "indices:data/read/search",
		Credential:       authbackend.BasicCredential{Username: "test", Password: "test"},
		RequestedIndices: []name.Index{name.ParseIndex("c01-logs-smg-stats-2020-03-27")},
	}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbiddenByMatched, out.Kind)
	assert.Equal(t, "deny-smg-stats", out.MatchedBlock)
}

// TestScenario_S5 is the spec's "template add narrowing" worked example: adding a legacy
// template whose patterns aren't entirely covered by the block's allowed indices is
// rejected as a genuine access denial, not a not-found.
func TestScenario_S5(t *testing.T) {
	blocks := []Block{
		{Name: "tenant", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"t*1*"})}},
	}
	req := &rule.Request{
		TemplateOp: block.TemplateOperation{
			Action:       block.TemplateAdd,
			TemplateName: "t1",
			IndexPatterns: []name.Name{
				name.Parse(name.KindIndex, "test1*"),
				name.Parse(name.KindIndex, "test2*"),
			},
		},
	}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbiddenByMismatched, out.Kind)
}

// TestScenario_S6 is the spec's "template get rewrite" worked example: a GET against a
// glob of legacy template names is narrowed to the templates, patterns and aliases the
// block's allowed indices actually cover.
func TestScenario_S6(t *testing.T) {
	blocks := []Block{
		{Name: "tenant", Policy: PolicyAllow, Rules: []rule.Rule{rule.NewIndicesRule([]string{"t*1*"})}},
	}
	universe := name.StaticUniverse{
		TemplateDefs: []name.TemplateInfo{
			{Name: "t1", Patterns: []string{"test1*", "test2*"}, Aliases: []string{"test1_alias", "test2_alias"}},
			{Name: "t2", Patterns: []string{"test3*", "test4*"}},
			{Name: "a3", Patterns: []string{"other*"}},
		},
	}
	req := &rule.Request{
		Universe: universe,
		TemplateOp: block.TemplateOperation{
			Action:         block.TemplateGet,
			RequestedNames: []string{"t*"},
		},
	}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeAllow, out.Kind)
	require.Equal(t, []string{"t1"}, out.Context.TemplateOperation.RequestedNames)

	views := out.Context.ResponseTemplateTransform([]block.TemplateView{
		{Name: "t1", Patterns: []name.Name{name.Parse(name.KindIndex, "test1*"), name.Parse(name.KindIndex, "test2*")}},
	})
	require.Len(t, views, 1)
	assert.Equal(t, []name.Name{name.Parse(name.KindIndex, "test1*")}, views[0].Patterns)
	assert.Equal(t, []name.Name{name.Parse(name.KindIndex, "test1_alias")}, views[0].Aliases)
}

// TestScenario_S7 is the spec's "kibana RW writes to custom index" worked example: an RW
// block permits a Kibana self-write against its own configured index.
func TestScenario_S7(t *testing.T) {
	blocks := []Block{
		{Name: "kibana-rw", Policy: PolicyAllow, Rules: []rule.Rule{
			&rule.KibanaRule{Access: block.KibanaAccessRw, KibanaIndex: ".custom_kibana"},
		}},
	}
	req := &rule.Request{
		Action:           "indices:data/write/update",
		Path:             "/.custom_kibana/_update/url1234",
		RequestedIndices: []name.Index{name.ParseIndex(".custom_kibana")},
	}
	out, err := Evaluate(context.Background(), blocks, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeAllow, out.Kind)
	assert.Equal(t, ".custom_kibana", out.Context.KibanaIndex)
	assert.Equal(t, block.KibanaAccessRw, out.Context.UserMetadata.KibanaAccess)
}

package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/name"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

func TestIndicesRuleMultiAdmitsSubset(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindFilterableMulti)
	req := &Request{RequestedIndices: []name.Index{
		name.ParseIndex("logs-2020"),
		name.ParseIndex("other-2020"),
	}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	require.Equal(t, VerdictMatched, out.Verdict)
	require.Len(t, out.Context.IndexPacks, 1)
	assert.True(t, out.Context.IndexPacks[0].Found)
	assert.Len(t, out.Context.IndexPacks[0].Names, 1)
	assert.Equal(t, "logs-2020", out.Context.IndexPacks[0].Names[0].String())
}

// A multi-index request naming a single concrete (non-glob) index that no configured
// pattern admits is a genuine index_not_found_exception, not a silent empty result — the
// rule rejects rather than matching with an empty pack.
func TestIndicesRuleMultiRejectsWhenConcreteIndexNotAdmitted(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindFilterableMulti)
	req := &Request{RequestedIndices: []name.Index{name.ParseIndex("other-2020")}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseIndexNotFound, out.Cause)
}

// A multi-index request whose requested names are glob patterns that happen to admit
// nothing is the legitimate "search matched zero indices" case: it matches with an empty,
// NotFound-flagged pack rather than rejecting the whole block.
func TestIndicesRuleMultiNotFoundWhenNothingAdmitted(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindFilterableMulti)
	req := &Request{RequestedIndices: []name.Index{name.ParseIndex("other-*")}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	require.Equal(t, VerdictMatched, out.Verdict)
	require.Len(t, out.Context.IndexPacks, 1)
	assert.True(t, out.Context.IndexPacks[0].NotFound)
}

func TestIndicesRuleSingleRejectsUnadmitted(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindFilterableSingle)
	req := &Request{RequestedIndices: []name.Index{name.ParseIndex("other-2020")}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseIndexNotFound, out.Cause)
}

func TestIndicesRuleSingleMatchesAdmitted(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindFilterableSingle)
	req := &Request{RequestedIndices: []name.Index{name.ParseIndex("logs-2020")}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	require.Equal(t, VerdictMatched, out.Verdict)
	assert.Equal(t, []name.Index{name.ParseIndex("logs-2020")}, out.Context.FilteredIndices)
}

func TestIndicesRuleResolvesVariablePattern(t *testing.T) {
	r := NewIndicesRule([]string{"logs_@{user}_*"})
	bctx := block.New(block.KindFilterableMulti)
	req := &Request{
		RequestedIndices: []name.Index{name.ParseIndex("logs_dev1_2020")},
		Resolution:       variable.ResolutionContext{User: "dev1"},
	}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	require.Equal(t, VerdictMatched, out.Verdict)
	require.Len(t, out.Context.IndexPacks, 1)
	assert.True(t, out.Context.IndexPacks[0].Found)
}

func TestIndicesRuleRejectsOnMissingVariable(t *testing.T) {
	r := NewIndicesRule([]string{"logs_@{user}_*"})
	bctx := block.New(block.KindFilterableMulti)
	req := &Request{RequestedIndices: []name.Index{name.ParseIndex("logs_dev1_2020")}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseVariableResolutionFailed, out.Cause)
}

func TestIndicesRuleTemplateAddRejectsPatternOutsideAllowedIndices(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindTemplate)
	req := &Request{TemplateOp: block.TemplateOperation{
		Action:        block.TemplateAdd,
		TemplateName:  "logs-*",
		IndexPatterns: []name.Name{name.Parse(name.KindIndex, "other-*")},
	}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseTemplateForbidden, out.Cause)
}

func TestIndicesRuleTemplateAddMatchesWithinAllowedIndices(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindTemplate)
	req := &Request{TemplateOp: block.TemplateOperation{
		Action:        block.TemplateAdd,
		TemplateName:  "logs-template",
		IndexPatterns: []name.Name{name.Parse(name.KindIndex, "logs-2020")},
	}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerdictMatched, out.Verdict)
}

func TestIndicesRuleTemplateAddRejectsAliasOutsideAllowedIndices(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindTemplate)
	req := &Request{TemplateOp: block.TemplateOperation{
		Action:        block.TemplateAdd,
		TemplateName:  "logs-template",
		IndexPatterns: []name.Name{name.Parse(name.KindIndex, "logs-2020")},
		Aliases:       []name.Name{name.Parse(name.KindIndex, "other-alias")},
	}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseTemplateForbidden, out.Cause)
}

func TestIndicesRuleTemplateAddAllowsIndexPlaceholderAlias(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindTemplate)
	req := &Request{TemplateOp: block.TemplateOperation{
		Action:        block.TemplateAdd,
		TemplateName:  "logs-template",
		IndexPatterns: []name.Name{name.Parse(name.KindIndex, "logs-2020")},
		Aliases:       []name.Name{name.Parse(name.KindIndex, "{index}-read")},
	}}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerdictMatched, out.Verdict)
}

func TestIndicesRuleTemplateAddRejectsHijackOfExistingTemplateOutsideAllowedIndices(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindTemplate)
	universe := name.StaticUniverse{
		TemplateDefs: []name.TemplateInfo{
			{Name: "shared-template", Patterns: []string{"other-*"}},
		},
	}
	req := &Request{
		Universe: universe,
		TemplateOp: block.TemplateOperation{
			Action:        block.TemplateAdd,
			TemplateName:  "shared-template",
			IndexPatterns: []name.Name{name.Parse(name.KindIndex, "logs-2020")},
		},
	}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, out.Verdict)
	assert.Equal(t, CauseTemplateForbidden, out.Cause)
}

func TestIndicesRuleTemplateGetRewritesPatternsAndAliasesToAdmittedSubset(t *testing.T) {
	r := NewIndicesRule([]string{"t*1*"})
	bctx := block.New(block.KindTemplate)
	universe := name.StaticUniverse{
		Names: map[name.Kind][]string{
			name.KindIndex: {"test1-2020", "test2-2020", "test3-2020", "test4-2020"},
		},
		TemplateDefs: []name.TemplateInfo{
			{Name: "t1", Patterns: []string{"test1*", "test2*"}, Aliases: []string{"test1_alias", "test2_alias"}},
			{Name: "t2", Patterns: []string{"test3*", "test4*"}},
		},
	}
	req := &Request{
		Universe: universe,
		TemplateOp: block.TemplateOperation{
			Action:         block.TemplateGet,
			RequestedNames: []string{"t*"},
		},
	}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	require.Equal(t, VerdictMatched, out.Verdict)
	assert.Equal(t, []string{"t1"}, out.Context.TemplateOperation.RequestedNames)

	views := out.Context.ResponseTemplateTransform([]block.TemplateView{
		{Name: "t1", Patterns: []name.Name{name.Parse(name.KindIndex, "test1*"), name.Parse(name.KindIndex, "test2*")}},
		{Name: "t2", Patterns: []name.Name{name.Parse(name.KindIndex, "test3*"), name.Parse(name.KindIndex, "test4*")}},
	})
	require.Len(t, views, 1)
	assert.Equal(t, "t1", views[0].Name)
	assert.Equal(t, []name.Name{name.Parse(name.KindIndex, "test1*")}, views[0].Patterns)
	assert.Equal(t, []name.Name{name.Parse(name.KindIndex, "test1_alias")}, views[0].Aliases)
}

func TestIndicesRuleTemplateDeleteRewritesUnsafeNameToSentinel(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	r.IDGenerator = func() string { return "sentinel" }
	bctx := block.New(block.KindTemplate)
	universe := name.StaticUniverse{
		TemplateDefs: []name.TemplateInfo{
			{Name: "shared-template", Patterns: []string{"other-*"}},
		},
	}
	req := &Request{
		Universe: universe,
		TemplateOp: block.TemplateOperation{
			Action:         block.TemplateDelete,
			RequestedNames: []string{"shared-template"},
		},
	}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	require.Equal(t, VerdictMatched, out.Verdict)
	assert.Equal(t, []string{"shared-template__sentinel"}, out.Context.TemplateOperation.RequestedNames)
}

func TestIndicesRuleTemplateDeleteLeavesSafeNameUnchanged(t *testing.T) {
	r := NewIndicesRule([]string{"logs-*"})
	bctx := block.New(block.KindTemplate)
	universe := name.StaticUniverse{
		TemplateDefs: []name.TemplateInfo{
			{Name: "logs-template", Patterns: []string{"logs-2020"}},
		},
	}
	req := &Request{
		Universe: universe,
		TemplateOp: block.TemplateOperation{
			Action:         block.TemplateDelete,
			RequestedNames: []string{"logs-template"},
		},
	}
	out, err := r.Check(context.Background(), bctx, req)
	require.NoError(t, err)
	require.Equal(t, VerdictMatched, out.Verdict)
	assert.Equal(t, []string{"logs-template"}, out.Context.TemplateOperation.RequestedNames)
}

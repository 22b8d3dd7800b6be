package rule

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/name"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

// IndicesRule implements §4.5: narrows a request's index targets to the admitted subset
// of a configured pattern set, producing NotFound when the admitted subset is empty for
// a request kind that requires at least one index (§4.5.2).
type IndicesRule struct {
	// Patterns are the raw configured patterns, which may contain runtime variables
	// (§4.5: "index patterns may themselves use @{...} templates, resolved once per
	// request before matching").
	Patterns []string
	Matcher  name.Matcher

	// IDGenerator produces the tenant-unique suffix a template-delete rewrites an
	// unsafe requested name-pattern to (§4.5.3). Defaults to a uuid-backed generator.
	IDGenerator func() string
}

func NewIndicesRule(patterns []string) *IndicesRule {
	return &IndicesRule{Patterns: patterns, Matcher: name.NewMatcher()}
}

func (r *IndicesRule) Name() string { return "indices" }

func (r *IndicesRule) Check(_ context.Context, bctx *block.Context, req *Request) (Outcome, error) {
	configured, err := r.resolveConfigured(req.Resolution)
	if err != nil {
		return Rejected(CauseVariableResolutionFailed, err.Error()), nil
	}

	switch bctx.Kind {
	case block.KindGeneralIndex:
		return r.checkGeneral(bctx, req, configured)
	case block.KindFilterableSingle:
		return r.checkSingle(bctx, req, configured)
	case block.KindFilterableMulti:
		return r.checkMulti(bctx, req, configured)
	case block.KindTemplate:
		return r.checkTemplate(bctx, req, configured)
	default:
		return PassedThrough(), nil
	}
}

// resolveConfigured expands every configured pattern's variables (§4.5: resolved once
// per request) into the Name set the matcher compares against. Any parse or resolution
// error, including a missing variable with or without @explode, is returned and rejects
// the whole rule, matching §4.2's "a variable missing causes the rule to reject".
func (r *IndicesRule) resolveConfigured(rc variable.ResolutionContext) ([]name.Name, error) {
	var out []name.Name
	for _, raw := range r.Patterns {
		tmpl, err := variable.Parse(raw)
		if err != nil {
			return nil, err
		}
		values, err := tmpl.Resolve(rc)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			out = append(out, name.Parse(name.KindIndex, v))
		}
	}
	return out, nil
}

// checkGeneral handles requests that name exactly zero-or-more indices but never reject
// with NotFound — an empty admitted set simply means "no indices in scope", which is
// valid for e.g. a cluster-health call scoped by the indices rule only as a ceiling
// (§4.5.1).
func (r *IndicesRule) checkGeneral(bctx *block.Context, req *Request, configured []name.Name) (Outcome, error) {
	admitted := r.Matcher.AdmitIndices(configured, req.RequestedIndices, req.Universe)
	out := bctx.Clone()
	out.AllAllowedIndices = admitted
	out.FilteredIndices = admitted
	return Matched(out), nil
}

// checkSingle handles single-index operations (e.g. index create/delete): exactly one
// requested index must be admitted, else the rule rejects with IndexNotFound (§4.5.2:
// "a single-index operation against a non-admitted index is always NotFound, never a
// silent narrowing").
func (r *IndicesRule) checkSingle(bctx *block.Context, req *Request, configured []name.Name) (Outcome, error) {
	if len(req.RequestedIndices) != 1 {
		return Rejected(CauseIndexNotFound, "single-index operation requires exactly one index"), nil
	}
	admitted := r.Matcher.AdmitIndices(configured, req.RequestedIndices, req.Universe)
	if len(admitted) == 0 {
		return Rejected(CauseIndexNotFound, "requested index not admitted by any configured pattern"), nil
	}
	out := bctx.Clone()
	out.FilteredIndices = admitted
	out.AllAllowedIndices = admitted
	return Matched(out), nil
}

// checkMulti handles multi-index operations (search, bulk): admits whatever subset of
// the requested indices the configured patterns allow. An empty admitted result is
// recorded as NotFound on the context rather than rejecting the whole block — per
// §4.5.2's boundary behaviour, a multi-index search against zero admitted indices
// degenerates into "search nothing", which downstream is surfaced as an empty result
// set, not a rejection — UNLESS every requested name was itself concrete (no glob, no
// wildcard-like form): a pattern that matches nothing legitimately searches zero
// indices, but a literal index name that isn't admitted (or, when a universe is
// available, doesn't actually exist there) is the real Elasticsearch
// index_not_found_exception, surfaced distinctly so the host adapter answers 404
// instead of an empty-hits 200.
func (r *IndicesRule) checkMulti(bctx *block.Context, req *Request, configured []name.Name) (Outcome, error) {
	requested := req.RequestedIndices
	if len(requested) == 0 {
		requested = []name.Index{name.ParseIndex("*")}
	}
	admitted := r.Matcher.AdmitIndices(configured, requested, req.Universe)
	out := bctx.Clone()
	out.AllAllowedIndices = admitted
	admitted = filterExistingConcrete(admitted, req.Universe)
	if len(admitted) == 0 {
		if len(req.RequestedIndices) > 0 && allConcrete(req.RequestedIndices) {
			return Rejected(CauseIndexNotFound, "requested index not admitted by any configured pattern"), nil
		}
		out.IndexPacks = append(out.IndexPacks, block.NotFoundIndices())
		out.FilteredIndices = nil
	} else {
		out.IndexPacks = append(out.IndexPacks, block.FoundIndices(admitted))
		out.FilteredIndices = admitted
	}
	return Matched(out), nil
}

// allConcrete reports whether every index in indices is a literal name: no glob pattern,
// no wildcard/"_all" form, on either the index or (for remote names) the cluster part.
func allConcrete(indices []name.Index) bool {
	for _, ix := range indices {
		if !isConcreteIndex(ix) {
			return false
		}
	}
	return true
}

func isConcreteIndex(ix name.Index) bool {
	if ix.Name.Form == name.FormPattern || ix.Name.IsWildcardLike() {
		return false
	}
	if ix.Remote && (ix.Cluster.Form == name.FormPattern || ix.Cluster.IsWildcardLike()) {
		return false
	}
	return true
}

// filterExistingConcrete drops admitted concrete names a supplied universe does not
// actually list, so a pattern-admitted-but-nonexistent literal index can't slip through
// as "found" just because its text happens to satisfy a configured glob. Pattern-form
// admitted names pass through untouched — whether a glob's expansion exists is the
// search layer's concern, not the access rule's. When no universe is available, every
// admitted name is trusted as-is (the rule has no way to check existence).
func filterExistingConcrete(admitted []name.Index, universe name.Universe) []name.Index {
	if universe == nil {
		return admitted
	}
	known := make(map[string]bool, len(universe.Concrete(name.KindIndex)))
	for _, u := range universe.Concrete(name.KindIndex) {
		known[u] = true
	}
	out := make([]name.Index, 0, len(admitted))
	for _, a := range admitted {
		if !isConcreteIndex(a) || known[a.Name.Text] {
			out = append(out, a)
		}
	}
	return out
}

// checkTemplate implements §4.5.3's legacy/index/component × get/add/delete matrix. A
// template is multi-tenant by nature — its patterns apply cluster-wide — so every branch
// below guarantees a tenant can neither observe nor create template entries that touch
// indices or aliases outside its own admitted namespace.
func (r *IndicesRule) checkTemplate(bctx *block.Context, req *Request, configured []name.Name) (Outcome, error) {
	switch req.TemplateOp.Action {
	case block.TemplateGet:
		return r.checkTemplateGet(bctx, req, configured)
	case block.TemplateDelete:
		return r.checkTemplateDelete(bctx, req, configured)
	case block.TemplateAdd:
		return r.checkTemplateAdd(bctx, req, configured)
	default:
		return Rejected(CauseOperationNotAllowed, "unrecognised template operation"), nil
	}
}

// templateSurvivor is one existing template that survives the GET narrowing, carrying
// either the rewritten (patternsAllowed, aliasesAllowed) pair or a verbatim pass-through
// when A covers every index.
type templateSurvivor struct {
	name     string
	patterns []name.Name
	aliases  []name.Name
	verbatim bool
}

// checkTemplateGet implements §4.5.3's GET branch. Let A be the configured allowed-index
// set. For every existing template whose name matches at least one requested
// name-pattern: if patternsAllowed(T) is non-empty (or, for component templates, only
// aliasesAllowed(T) is non-empty — component templates carry no index patterns of their
// own), the template survives rewritten down to (patternsAllowed(T), aliasesAllowed(T));
// else if A covers every index it survives unchanged; otherwise it is dropped. The
// concrete worked example (get-legacy "t*" against a block allowed only "t*1*") narrows a
// template down to a PROPER subset of its patterns/aliases rather than requiring the full
// set to be allowed, so the condition here tests non-emptiness of the allowed subset, not
// equality with T's original set.
func (r *IndicesRule) checkTemplateGet(bctx *block.Context, req *Request, configured []name.Name) (Outcome, error) {
	op := req.TemplateOp
	out := bctx.Clone()

	requested := requestedTemplateNames(op)
	coversEverything := matchesEverything(configured)
	componentOnly := op.Kind == block.TemplateComponent

	var survivors []templateSurvivor
	for _, t := range existingTemplates(req) {
		tn := name.Parse(name.KindTemplate, t.Name)
		if !r.Matcher.Match(requested, tn, req.Universe) {
			continue
		}
		pAllowed := r.filterPatternSubset(t.Patterns, configured)
		aAllowed := r.filterAliasSubset(t.Aliases, pAllowed, configured)

		switch {
		case componentOnly && len(aAllowed) > 0:
			survivors = append(survivors, templateSurvivor{name: t.Name, patterns: pAllowed, aliases: aAllowed})
		case !componentOnly && len(pAllowed) > 0:
			survivors = append(survivors, templateSurvivor{name: t.Name, patterns: pAllowed, aliases: aAllowed})
		case coversEverything:
			survivors = append(survivors, templateSurvivor{name: t.Name, verbatim: true})
		default:
			continue
		}
	}

	if len(survivors) == 0 {
		return Rejected(CauseTemplateNotFound, "no existing template survives this block's narrowing"), nil
	}

	bySurvivorName := make(map[string]templateSurvivor, len(survivors))
	narrowedNames := make([]string, 0, len(survivors))
	for _, s := range survivors {
		bySurvivorName[s.name] = s
		narrowedNames = append(narrowedNames, s.name)
	}

	out.TemplateOperation = op
	out.TemplateOperation.RequestedNames = narrowedNames
	out.ResponseTemplateTransform = func(templates []block.TemplateView) []block.TemplateView {
		var result []block.TemplateView
		for _, t := range templates {
			s, ok := bySurvivorName[t.Name]
			if !ok {
				continue
			}
			if s.verbatim {
				result = append(result, t)
				continue
			}
			result = append(result, block.TemplateView{Name: t.Name, Patterns: s.patterns, Aliases: s.aliases})
		}
		return result
	}
	return Matched(out), nil
}

// checkTemplateDelete implements §4.5.3's DELETE branch: each requested name-pattern is
// rewritten to a sentinel that cannot match any real template when no existing template
// it would touch is entirely subset-safe, neutralising the delete into a no-op rather
// than letting it remove a template visible to another tenant.
func (r *IndicesRule) checkTemplateDelete(bctx *block.Context, req *Request, configured []name.Name) (Outcome, error) {
	op := req.TemplateOp
	out := bctx.Clone()

	requestedRaw := op.RequestedNames
	if len(requestedRaw) == 0 {
		requestedRaw = []string{"*"}
	}
	existing := existingTemplates(req)
	idGen := r.IDGenerator
	if idGen == nil {
		idGen = func() string { return uuid.New().String() }
	}

	rewritten := make([]string, 0, len(requestedRaw))
	for _, raw := range requestedRaw {
		pn := name.Parse(name.KindTemplate, raw)
		matchedAny := false
		safe := true
		for _, t := range existing {
			tn := name.Parse(name.KindTemplate, t.Name)
			if !r.Matcher.Match([]name.Name{pn}, tn, req.Universe) {
				continue
			}
			matchedAny = true
			if !r.entirelySubset(t, configured) {
				safe = false
			}
		}
		if matchedAny && !safe {
			rewritten = append(rewritten, raw+"__"+idGen())
		} else {
			rewritten = append(rewritten, raw)
		}
	}

	out.TemplateOperation = op
	out.TemplateOperation.RequestedNames = rewritten
	return Matched(out), nil
}

// checkTemplateAdd implements §4.5.3's ADD branch. Fulfils iff every pattern and every
// alias of the new template is a subset of A (aliases carrying the literal "{index}"
// placeholder are accepted unconditionally: their concrete expansions fall within the
// already-checked index pattern, hence within A). Adding under the name of an existing
// template additionally requires that existing template's own patterns and aliases to
// be entirely subset-safe, else the add would hijack a template visible to other tenants.
func (r *IndicesRule) checkTemplateAdd(bctx *block.Context, req *Request, configured []name.Name) (Outcome, error) {
	op := req.TemplateOp
	out := bctx.Clone()

	for _, p := range op.IndexPatterns {
		if !r.Matcher.IsSubsetOf(p, configured, nil) {
			return Rejected(CauseTemplateForbidden, "template index pattern "+p.String()+" exceeds the block's allowed indices"), nil
		}
	}
	for _, a := range op.Aliases {
		if strings.Contains(a.Text, "{index}") {
			continue
		}
		if !r.Matcher.IsSubsetOf(a, configured, nil) {
			return Rejected(CauseTemplateForbidden, "template alias "+a.String()+" exceeds the block's allowed indices"), nil
		}
	}

	for _, t := range existingTemplates(req) {
		if t.Name != op.TemplateName {
			continue
		}
		if !r.entirelySubset(t, configured) {
			return Rejected(CauseTemplateForbidden, "existing template "+t.Name+" is not fully visible to this block"), nil
		}
	}

	return Matched(out), nil
}

// filterPatternSubset computes patternsAllowed(T): the subset of T's raw index patterns
// that are themselves a subset of the configured allowed-index set A (§4.5.4). Evaluated
// structurally (no universe): a template's declared patterns are themselves glob
// expressions being compared against other glob expressions, not concrete cluster
// names, so glob-domination is the correct test regardless of whether a live index
// inventory happens to be cached.
func (r *IndicesRule) filterPatternSubset(raw []string, allowed []name.Name) []name.Name {
	var out []name.Name
	for _, p := range raw {
		pn := name.Parse(name.KindIndex, p)
		if r.Matcher.IsSubsetOf(pn, allowed, nil) {
			out = append(out, pn)
		}
	}
	return out
}

// filterAliasSubset computes aliasesAllowed(T): the subset of T's raw aliases that are a
// subset of A, with the "{index}" placeholder form treated as allowed whenever
// patternsAllowed(T) is non-empty (its concrete expansions fall within that already-safe
// pattern set).
func (r *IndicesRule) filterAliasSubset(raw []string, patternsAllowed []name.Name, allowed []name.Name) []name.Name {
	var out []name.Name
	for _, a := range raw {
		if strings.Contains(a, "{index}") {
			if len(patternsAllowed) > 0 {
				out = append(out, name.Parse(name.KindIndex, a))
			}
			continue
		}
		an := name.Parse(name.KindIndex, a)
		if r.Matcher.IsSubsetOf(an, allowed, nil) {
			out = append(out, an)
		}
	}
	return out
}

// entirelySubset reports whether every one of T's patterns and aliases (ignoring
// "{index}"-placeholder aliases, which are always safe) is a subset of A — the stricter
// all-or-nothing test the ADD hijack check and the DELETE safety check both need, as
// opposed to GET's looser non-empty-subset narrowing.
func (r *IndicesRule) entirelySubset(t name.TemplateInfo, allowed []name.Name) bool {
	for _, p := range t.Patterns {
		if !r.Matcher.IsSubsetOf(name.Parse(name.KindIndex, p), allowed, nil) {
			return false
		}
	}
	for _, a := range t.Aliases {
		if strings.Contains(a, "{index}") {
			continue
		}
		if !r.Matcher.IsSubsetOf(name.Parse(name.KindIndex, a), allowed, nil) {
			return false
		}
	}
	return true
}

func requestedTemplateNames(op block.TemplateOperation) []name.Name {
	raw := op.RequestedNames
	if len(raw) == 0 {
		raw = []string{"*"}
	}
	out := make([]name.Name, 0, len(raw))
	for _, rn := range raw {
		out = append(out, name.Parse(name.KindTemplate, rn))
	}
	return out
}

func existingTemplates(req *Request) []name.TemplateInfo {
	if req.Universe == nil {
		return nil
	}
	return req.Universe.Templates()
}

// matchesEverything reports whether the configured allowed-index set A covers every
// index (A ⊇ {*}), §4.5.3's GET fallback condition.
func matchesEverything(configured []name.Name) bool {
	for _, c := range configured {
		if c.IsWildcardLike() {
			return true
		}
	}
	return false
}

package name

// IndexWithAliases pairs a concrete local index with the aliases pointing at it, as
// supplied by the metadata source at each evaluation (§3 Data model).
type IndexWithAliases struct {
	Index   string
	Aliases []string
}

// TemplateInfo is an existing index/legacy template's name plus the patterns and
// aliases it was created with (§4.5.3's GET/DELETE branches need these to compute
// patternsAllowed(T)/aliasesAllowed(T) against a rule's allowed-index set).
type TemplateInfo struct {
	Name     string
	Patterns []string
	Aliases  []string
}

// Universe is the narrow view of "names known to exist in the cluster right now" that
// the matcher consults for reverse-glob and pattern-intersection matching (§4.1 cases 3
// and 4). Rules obtain a Universe from the external-lookup facade (C9); tests supply a
// static one.
type Universe interface {
	// Concrete returns every concrete name in the universe for the given kind.
	Concrete(kind Kind) []string
	// IndicesWithAliases returns the indices-with-aliases view, used for alias
	// expansion of requested index names.
	IndicesWithAliases() []IndexWithAliases
	// Templates returns every existing index/legacy template and the patterns/aliases it
	// was registered with.
	Templates() []TemplateInfo
}

// StaticUniverse is a fixed-in-memory Universe, the shape tests and the reference REST
// adapter use when real cluster metadata hasn't been fetched (or isn't needed).
type StaticUniverse struct {
	Names       map[Kind][]string
	Indices     []IndexWithAliases
	TemplateDefs []TemplateInfo
}

func (u StaticUniverse) Concrete(kind Kind) []string { return u.Names[kind] }
func (u StaticUniverse) IndicesWithAliases() []IndexWithAliases { return u.Indices }
func (u StaticUniverse) Templates() []TemplateInfo              { return u.TemplateDefs }

// Matcher implements §4.1: given a configured pattern set and a requested name set,
// compute the admitted (permitted) subset of the requested set.
type Matcher struct{}

// NewMatcher returns a stateless Matcher. All matcher state lives in the Universe passed
// per call, so a single Matcher value is safe to share and reuse across goroutines.
func NewMatcher() Matcher { return Matcher{} }

// Match resolves the four cases of §4.1 for a single requested Name against the full
// configured set. universe may be nil when no cluster metadata is needed (cases 1/2
// never consult it; case 3/4 fall back to the documented no-universe behaviour).
func (Matcher) Match(configured []Name, requested Name, universe Universe) bool {
	for _, c := range configured {
		if matchOne(c, requested, universe) {
			return true
		}
	}
	return false
}

// matchOne implements the per-pair case analysis of §4.1.
func matchOne(c, r Name, universe Universe) bool {
	if c.Kind != r.Kind {
		return false
	}
	cIsAll := c.IsWildcardLike()
	rIsAll := r.IsWildcardLike()
	if cIsAll || rIsAll {
		// All/Wildcard textual forms are canonicalised on both sides; "everything" on
		// either side is satisfied by "everything" or by any concrete/pattern value,
		// since the caller is asking "is there any admitted overlap".
		return true
	}
	cPattern := c.Form == FormPattern
	rPattern := r.Form == FormPattern
	switch {
	case !cPattern && !rPattern:
		// Case 1: plain/plain.
		return c.Text == r.Text
	case cPattern && !rPattern:
		// Case 2: configured pattern, requested plain.
		return compileGlob(c.Text).match(r.Text)
	case !cPattern && rPattern:
		// Case 3: configured plain, requested (reverse-glob) pattern.
		if universe == nil {
			return compileGlob(r.Text).match(c.Text)
		}
		for _, u := range universe.Concrete(c.Kind) {
			if u == c.Text && compileGlob(r.Text).match(u) {
				return true
			}
		}
		return false
	default:
		// Case 4: both patterns. With a universe, enumerate names matching r and keep
		// those also matching c. Without one, structural domination stands in for
		// "c matches everything r could match" (used by the subset-of-A predicate).
		if universe == nil {
			return dominates(c.Text, r.Text) || dominates(r.Text, c.Text)
		}
		rg := compileGlob(r.Text)
		cg := compileGlob(c.Text)
		for _, u := range universe.Concrete(c.Kind) {
			if rg.match(u) && cg.match(u) {
				return true
			}
		}
		return false
	}
}

// AdmitIndices resolves §4.5.1's "admitted subset" for a batch of requested local
// indices against a configured pattern set. A requested alias name expands to its
// backing indices before matching (the alias itself stays in the requested set). Alias
// expansion applies to requested names only: a configured name that equals an alias is
// matched as written and does not admit the alias's backing indices.
func (m Matcher) AdmitIndices(configured []Name, requested []Index, universe Universe) []Index {
	expanded := m.expandAliases(requested, universe)
	var admitted []Index
	seen := map[string]bool{}
	for _, r := range expanded {
		key := r.String()
		if seen[key] {
			continue
		}
		if m.matchIndex(configured, r, universe) {
			admitted = append(admitted, r)
			seen[key] = true
		}
	}
	return admitted
}

// matchIndex applies §4.1's remote-cluster rule: cluster and index parts match
// independently, and locality must agree (a cross-cluster requested name never matches
// a local-only configured name and vice versa).
func (m Matcher) matchIndex(configured []Name, r Index, universe Universe) bool {
	for _, c := range configured {
		cIx := ParseIndex(c.Text)
		if cIx.Remote != r.Remote {
			continue
		}
		if r.Remote {
			if matchOne(cIx.Cluster, r.Cluster, universe) && matchOne(cIx.Name, r.Name, universe) {
				return true
			}
			continue
		}
		if matchOne(cIx.Name, r.Name, universe) {
			return true
		}
	}
	return false
}

// expandAliases substitutes, for each requested local index name that is itself an
// alias (matching some universe alias), the backing concrete index name(s) into the
// requested set, keeping the original entries too (a rule may legitimately configure
// either the alias or the underlying index).
func (m Matcher) expandAliases(requested []Index, universe Universe) []Index {
	if universe == nil {
		return requested
	}
	iwa := universe.IndicesWithAliases()
	if len(iwa) == 0 {
		return requested
	}
	out := make([]Index, 0, len(requested))
	out = append(out, requested...)
	for _, r := range requested {
		if r.Remote {
			continue
		}
		for _, entry := range iwa {
			for _, alias := range entry.Aliases {
				if compileGlob(r.Name.Text).match(alias) || r.Name.Text == alias {
					out = append(out, Index{Name: Parse(KindIndex, entry.Index)})
				}
			}
		}
	}
	return out
}

// IsSubsetOf implements §4.5.4: "pattern p is a subset of allowed-set A". Concrete
// (non-glob) values in A are singletons; pure-glob domination is used when no universe
// is supplied, otherwise every universe name matched by p must also be matched by some
// member of A.
func (m Matcher) IsSubsetOf(p Name, allowed []Name, universe Universe) bool {
	if p.IsWildcardLike() {
		for _, a := range allowed {
			if a.IsWildcardLike() {
				return true
			}
		}
		return false
	}
	if universe == nil {
		for _, a := range allowed {
			if a.IsWildcardLike() {
				return true
			}
			if dominates(a.Text, p.Text) {
				return true
			}
		}
		return false
	}
	universeNames := universe.Concrete(p.Kind)
	pg := compileGlob(p.Text)
	for _, u := range universeNames {
		if !pg.match(u) {
			continue
		}
		covered := false
		for _, a := range allowed {
			if a.IsWildcardLike() || compileGlob(a.Text).match(u) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

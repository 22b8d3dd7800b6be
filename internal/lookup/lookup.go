// Package lookup implements the external-lookup facade (§4.1 cases 3/4, §5 Concurrency
// & Resource Model, C9): fetching the live cluster inventory (concrete index/alias/
// snapshot/repository/template names) that the name matcher needs for reverse-glob and
// pattern-intersection reasoning, with caching and request coalescing so a burst of
// concurrent requests against the same cluster triggers one upstream call, not one per
// request.
package lookup

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kubilitics/kubilitics-backend/internal/name"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/tracing"
)

// MetadataSource is the collaborator that actually talks to the cluster (§6 External
// Interfaces): a thin client the host adapter supplies, implemented against whatever
// transport the deployment uses.
type MetadataSource interface {
	Indices(ctx context.Context) ([]name.IndexWithAliases, error)
	Snapshots(ctx context.Context) ([]string, error)
	Repositories(ctx context.Context) ([]string, error)
	Templates(ctx context.Context) ([]name.TemplateInfo, error)
}

// Facade fans a single logical "give me the current universe" request out to the four
// metadata calls concurrently (bounded by errgroup, matching the teacher's
// PermissionChecker concurrency shape), caches the result for TTL, and coalesces
// concurrent callers onto one upstream fetch via singleflight.
type Facade struct {
	source MetadataSource
	ttl    time.Duration
	cache  *lru.Cache[string, cachedUniverse]
	group  singleflight.Group
}

type cachedUniverse struct {
	universe name.StaticUniverse
	expires  time.Time
}

const universeCacheKey = "universe"

// New builds a Facade with the given cache capacity (number of clusters cached — 1 is
// enough for a single-cluster deployment; a multi-cluster host adapter caches one entry
// per cluster ID) and per-entry freshness window.
func New(source MetadataSource, cacheSize int, ttl time.Duration) (*Facade, error) {
	c, err := lru.New[string, cachedUniverse](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Facade{source: source, ttl: ttl, cache: c}, nil
}

// Universe returns the cluster's current name inventory, fetching fresh if the cache
// entry is missing or stale. Concurrent callers for the same key block on one upstream
// fetch rather than issuing one each (§5: "external lookups must not be repeated per
// concurrent request when a fresher-than-TTL result already exists or is in flight").
func (f *Facade) Universe(ctx context.Context, clusterKey string) (name.Universe, error) {
	if cached, ok := f.cache.Get(clusterKey); ok && time.Now().Before(cached.expires) {
		return cached.universe, nil
	}

	v, err, _ := f.group.Do(clusterKey, func() (any, error) {
		return f.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	u := v.(name.StaticUniverse)
	f.cache.Add(clusterKey, cachedUniverse{universe: u, expires: time.Now().Add(f.ttl)})
	return u, nil
}

func (f *Facade) fetch(ctx context.Context) (name.StaticUniverse, error) {
	ctx, span := tracing.StartSpan(ctx, "lookup.fetch_universe")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ExternalLookupDurationSeconds.Observe(time.Since(start).Seconds()) }()

	var indices []name.IndexWithAliases
	var snapshots, repositories []string
	var templates []name.TemplateInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		indices, err = f.source.Indices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snapshots, err = f.source.Snapshots(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		repositories, err = f.source.Repositories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		templates, err = f.source.Templates(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return name.StaticUniverse{}, err
	}

	indexNames := make([]string, 0, len(indices))
	for _, ix := range indices {
		indexNames = append(indexNames, ix.Index)
	}
	templateNames := make([]string, 0, len(templates))
	for _, t := range templates {
		templateNames = append(templateNames, t.Name)
	}

	return name.StaticUniverse{
		Names: map[name.Kind][]string{
			name.KindIndex:      indexNames,
			name.KindSnapshot:   snapshots,
			name.KindRepository: repositories,
			name.KindTemplate:   templateNames,
		},
		Indices:      indices,
		TemplateDefs: templates,
	}, nil
}

// Invalidate drops the cached entry for key, forcing the next Universe call to fetch
// fresh instead of waiting out the TTL. Neither the engine nor the REST host adapter
// calls it; cache entries otherwise expire only by TTL or LRU eviction.
func (f *Facade) Invalidate(clusterKey string) {
	f.cache.Remove(clusterKey)
}

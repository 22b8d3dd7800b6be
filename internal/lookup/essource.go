package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kubilitics/kubilitics-backend/internal/name"
)

// ESMetadataSource is the reference MetadataSource implementation (§6 External
// Interfaces): it talks to the target cluster's cat/snapshot/template REST APIs
// directly over HTTP. No example repo in this project's dependency pack ships an
// Elasticsearch/OpenSearch client, so this talks the wire protocol directly with
// net/http and encoding/json rather than adopting an unrelated third-party client.
type ESMetadataSource struct {
	BaseURL  string
	Username string
	Password string
	Client   *http.Client
}

// NewESMetadataSource builds a source against baseURL (e.g. "https://localhost:9200").
// An empty Client defaults to http.DefaultClient.
func NewESMetadataSource(baseURL, username, password string) *ESMetadataSource {
	return &ESMetadataSource{BaseURL: baseURL, Username: username, Password: password, Client: http.DefaultClient}
}

func (s *ESMetadataSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *ESMetadataSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fetching %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Indices returns every concrete index and the aliases pointing at it, via _cat/aliases.
func (s *ESMetadataSource) Indices(ctx context.Context) ([]name.IndexWithAliases, error) {
	var rows []struct {
		Alias string `json:"alias"`
		Index string `json:"index"`
	}
	if err := s.get(ctx, "/_cat/aliases?format=json", &rows); err != nil {
		return nil, err
	}
	byIndex := make(map[string][]string)
	order := make([]string, 0)
	for _, r := range rows {
		if r.Index == "" {
			continue
		}
		if _, ok := byIndex[r.Index]; !ok {
			order = append(order, r.Index)
		}
		if r.Alias != "" && r.Alias != r.Index {
			byIndex[r.Index] = append(byIndex[r.Index], r.Alias)
		} else if _, ok := byIndex[r.Index]; !ok {
			byIndex[r.Index] = nil
		}
	}
	out := make([]name.IndexWithAliases, 0, len(order))
	for _, idx := range order {
		out = append(out, name.IndexWithAliases{Index: idx, Aliases: byIndex[idx]})
	}
	return out, nil
}

// Snapshots returns every snapshot name across every registered repository.
func (s *ESMetadataSource) Snapshots(ctx context.Context) ([]string, error) {
	repos, err := s.Repositories(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, repo := range repos {
		var payload struct {
			Snapshots []struct {
				Snapshot string `json:"snapshot"`
			} `json:"snapshots"`
		}
		if err := s.get(ctx, "/_snapshot/"+repo+"/_all", &payload); err != nil {
			continue
		}
		for _, snap := range payload.Snapshots {
			out = append(out, snap.Snapshot)
		}
	}
	return out, nil
}

// Repositories returns every registered snapshot repository's name.
func (s *ESMetadataSource) Repositories(ctx context.Context) ([]string, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	if err := s.get(ctx, "/_cat/repositories?format=json", &rows); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out, nil
}

// Templates returns every legacy template's name, index patterns and aliases via the
// legacy template API, which is the only one exposing a template's patterns/aliases in
// one call (_cat/templates carries names only).
func (s *ESMetadataSource) Templates(ctx context.Context) ([]name.TemplateInfo, error) {
	var payload map[string]struct {
		IndexPatterns []string                  `json:"index_patterns"`
		Aliases       map[string]map[string]any `json:"aliases"`
	}
	if err := s.get(ctx, "/_template", &payload); err != nil {
		return nil, err
	}
	out := make([]name.TemplateInfo, 0, len(payload))
	for tmplName, def := range payload {
		aliases := make([]string, 0, len(def.Aliases))
		for alias := range def.Aliases {
			aliases = append(aliases, alias)
		}
		out = append(out, name.TemplateInfo{
			Name:     tmplName,
			Patterns: def.IndexPatterns,
			Aliases:  aliases,
		})
	}
	return out, nil
}

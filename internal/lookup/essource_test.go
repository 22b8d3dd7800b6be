package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestESMetadataSourceIndicesGroupsAliasesByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/_cat/aliases":
			w.Write([]byte(`[{"alias":"logs","index":"logs-2024.01"},{"alias":"logs","index":"logs-2024.02"},{"alias":"","index":"logs-2024.02"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewESMetadataSource(srv.URL, "", "")
	idx, err := src.Indices(context.Background())
	require.NoError(t, err)
	require.Len(t, idx, 2)
	assert.Equal(t, "logs-2024.01", idx[0].Index)
	assert.Equal(t, []string{"logs"}, idx[0].Aliases)
	assert.Equal(t, "logs-2024.02", idx[1].Index)
	assert.Equal(t, []string{"logs"}, idx[1].Aliases)
}

func TestESMetadataSourceRepositoriesAndSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/_cat/repositories":
			w.Write([]byte(`[{"id":"backups"}]`))
		case "/_snapshot/backups/_all":
			w.Write([]byte(`{"snapshots":[{"snapshot":"snap-1"},{"snapshot":"snap-2"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewESMetadataSource(srv.URL, "", "")
	repos, err := src.Repositories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"backups"}, repos)

	snaps, err := src.Snapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-1", "snap-2"}, snaps)
}

func TestESMetadataSourceTemplates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"logs-template":{"index_patterns":["logs-*"],"aliases":{"logs_alias":{}}}}`))
	}))
	defer srv.Close()

	src := NewESMetadataSource(srv.URL, "", "")
	templates, err := src.Templates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "logs-template", templates[0].Name)
	assert.Equal(t, []string{"logs-*"}, templates[0].Patterns)
	assert.Equal(t, []string{"logs_alias"}, templates[0].Aliases)
}

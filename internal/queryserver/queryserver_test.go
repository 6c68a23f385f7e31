package queryserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cartograph/internal/config"
	"github.com/tonimelisma/cartograph/internal/graphengine"
	"github.com/tonimelisma/cartograph/internal/pathnode"
)

func newTestServer(t *testing.T, dir string, cfg *config.Config) (*Server, *graphengine.Graph) {
	t.Helper()

	g, err := graphengine.FromDir(context.Background(), dir, pathnode.ParseConfig{
		LinkTypes:       cfg.LinkTypes,
		DefaultLinkType: cfg.DefaultLinkType,
		ActionKeywords:  cfg.ActionKeywords,
		Tags:            cfg.Tags,
	}, nil, nil)
	require.NoError(t, err)

	holder := config.NewHolder(cfg, filepath.Join(dir, ".cartograph.toml"))

	return New(func() *graphengine.Graph { return g }, holder, nil), g
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		WatchDir:        dir,
		LinkTypes:       []string{"link"},
		DefaultLinkType: "link",
		Tags:            []string{"project"},
		ActionKeywords:  []string{"TODO", "DONE"},
	}
}

func TestHandleHealthz_ReportsOK(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir(), testConfig(t.TempDir()))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleGetNode_RoundTripsASingleNode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\ntitle: A\n---\n\nbody text\n"), 0o644))

	s, g := newTestServer(t, dir, testConfig(dir))
	require.Len(t, g.ListNodes(), 1)
	id := g.ListNodes()[0]

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/node/"+id.String()+"?body=1", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var node graphengine.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &node))
	assert.Equal(t, "A", node.Title)
	require.NotNil(t, node.Body)
	assert.Contains(t, *node.Body, "body text")
}

func TestHandleGetNode_UnknownIDReturns404(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestServer(t, dir, testConfig(dir))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/node/"+stableUnknownID()+"", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetNode_MalformedIDReturns400(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestServer(t, dir, testConfig(dir))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/node/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListNodes_ReturnsEveryNode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\ntitle: A\n---\n\nbody\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.org"), []byte("#+TITLE: B\n\nbody\n"), 0o644))

	s, _ := newTestServer(t, dir, testConfig(dir))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nodes", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var ids []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ids))
	assert.Len(t, ids, 2)
}

func TestHandleListIndex_UnknownNameReturns404(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestServer(t, dir, testConfig(dir))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/index/nonexistent/nodes", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRootID_ReturnsIDForKnownPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\ntitle: A\n---\n\nbody\n"), 0o644))

	s, _ := newTestServer(t, dir, testConfig(dir))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/root/a.md", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.NotEmpty(t, out["id"])
}

func TestHandleRootID_UnknownPathReturns404(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestServer(t, dir, testConfig(dir))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/root/nope.md", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleInfoEndpoints_ReflectConfiguration(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestServer(t, dir, testConfig(dir))

	cases := map[string]any{
		"/info/tags":            []string{"project"},
		"/info/link-types":      []string{"link"},
		"/info/action-keywords": []string{"TODO", "DONE"},
	}

	for path, want := range cases {
		w := httptest.NewRecorder()
		s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, w.Code, path)

		var got []string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.ElementsMatch(t, want, got, path)
	}

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info/default-link-type", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "link", out["default_link_type"])
}

func TestHandleInfoEndpoints_ReflectHolderUpdateWithoutRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	holder := config.NewHolder(cfg, filepath.Join(dir, ".cartograph.toml"))

	g, err := graphengine.FromDir(context.Background(), dir, pathnode.ParseConfig{
		LinkTypes:       cfg.LinkTypes,
		DefaultLinkType: cfg.DefaultLinkType,
	}, nil, nil)
	require.NoError(t, err)

	s := New(func() *graphengine.Graph { return g }, holder, nil)

	reloaded := testConfig(dir)
	reloaded.Tags = []string{"area"}
	holder.Update(reloaded)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info/tags", nil))

	var got []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"area"}, got)
}

// stableUnknownID returns a syntactically valid uuid unlikely to collide
// with any id synthesized for a test fixture.
func stableUnknownID() string {
	return "00000000-0000-0000-0000-000000000000"
}

package main

import (
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cartograph/internal/config"
	"github.com/tonimelisma/cartograph/internal/graphengine"
	"github.com/tonimelisma/cartograph/internal/pathnode"
	"github.com/tonimelisma/cartograph/internal/queryserver"
)

func newTestQueryServer(t *testing.T, dir string, cfg *config.Config) (*httptest.Server, *graphengine.Graph) {
	t.Helper()

	g, err := graphengine.FromDir(context.Background(), dir, pathnode.ParseConfig{
		LinkTypes:       cfg.LinkTypes,
		DefaultLinkType: cfg.DefaultLinkType,
		ActionKeywords:  cfg.ActionKeywords,
		Tags:            cfg.Tags,
	}, nil, nil)
	require.NoError(t, err)

	holder := config.NewHolder(cfg, filepath.Join(dir, ".cartograph.toml"))
	srv := queryserver.New(func() *graphengine.Graph { return g }, holder, testLogger())

	return httptest.NewServer(srv), g
}

func TestFetchNode_RoundTripsAgainstARunningServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\ntitle: A\n---\n\nbody text\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.WatchDir = dir

	ts, g := newTestQueryServer(t, dir, cfg)
	defer ts.Close()

	id := g.ListNodes()[0]

	node, err := fetchNode(context.Background(), ts.URL+"/node/"+id.String()+"?body=true")
	require.NoError(t, err)
	assert.Equal(t, "A", node.Title)
	require.NotNil(t, node.Body)
	assert.Contains(t, *node.Body, "body text")
}

func TestFetchNode_UnknownIDReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.WatchDir = dir

	ts, _ := newTestQueryServer(t, dir, cfg)
	defer ts.Close()

	_, err := fetchNode(context.Background(), ts.URL+"/node/00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestQueryServerBaseURL_UsesHolderHostAndPort(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 9191

	cc := &CLIContext{Holder: config.NewHolder(cfg, "")}

	assert.Equal(t, "http://127.0.0.1:9191", queryServerBaseURL(cc))
}

func TestRunQuery_PrintsJSONWhenFlagSet(t *testing.T) {
	resetFlags()
	flagJSON = true
	defer resetFlags()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\ntitle: A\n---\n\nbody text\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.WatchDir = dir

	ts, g := newTestQueryServer(t, dir, cfg)
	defer ts.Close()

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg.Host = host
	cfg.Port = port

	cmd := newQueryCmd()
	cmd.SetContext(contextWithCLI(&CLIContext{Holder: config.NewHolder(cfg, ""), Logger: testLogger()}))

	id := g.ListNodes()[0]

	err = runQuery(cmd, []string{id.String()})
	assert.NoError(t, err)
}

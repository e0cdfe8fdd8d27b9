package routes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFileSourceLoadsBothTables(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, UpstreamFile, `[
		{"url": "a.example.com", "route": "localhost:3000"},
		{"url": "b.example.com", "route": "localhost:3001", "healthRoute": true},
		{"url": "c.example.com", "route": "localhost:3002", "healthRoute": true, "healthPath": "/ready"}
	]`)
	writeFile(t, dir, LocalFile, `[{"url": "dev.example.com", "context": "health"}]`)

	src := &FileSource{Dir: dir}
	tbl, err := Load(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Pattern: "a.example.com", Upstream: "localhost:3000"},
		{Pattern: "b.example.com", Upstream: "localhost:3001", HealthPath: "/health"},
		{Pattern: "c.example.com", Upstream: "localhost:3002", HealthPath: "/ready"},
	}, tbl.Upstreams)
	assert.Equal(t, []LocalEntry{{Pattern: "dev.example.com", Handler: "health"}}, tbl.Locals)
	assert.Equal(t, src.Name(), tbl.Source)
}

func TestFileSourceAcceptsBareObject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, UpstreamFile, `{"url": "example.hostname.com", "route": "localhost:3000"}`)
	writeFile(t, dir, LocalFile, `{"url": "exampleapi.hostname.com", "context": "example"}`)

	tbl, err := Load(context.Background(), &FileSource{Dir: dir})
	require.NoError(t, err)
	require.Len(t, tbl.Upstreams, 1)
	require.Len(t, tbl.Locals, 1)
	assert.Equal(t, "example.hostname.com", tbl.Upstreams[0].Pattern)
	assert.Equal(t, "example", tbl.Locals[0].Handler)
}

func TestFileSourceGeneratesMissingFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "routes")
	src := &FileSource{Dir: dir}

	require.NoError(t, Prepare(context.Background(), src))
	tbl, err := Load(context.Background(), src)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, UpstreamFile))
	assert.FileExists(t, filepath.Join(dir, LocalFile))
	assert.NoFileExists(t, filepath.Join(dir, "routes.example.json"))
	assert.NoFileExists(t, filepath.Join(dir, "dev-routes.example.json"))

	require.Len(t, tbl.Upstreams, 1)
	assert.Equal(t, "example.hostname.com", tbl.Upstreams[0].Pattern)
	assert.Equal(t, "localhost:3000", tbl.Upstreams[0].Upstream)
	require.Len(t, tbl.Locals, 1)
	assert.Equal(t, "exampleapi.hostname.com", tbl.Locals[0].Pattern)
}

func TestFileSourcePrefersExistingExampleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "routes.example.json", `[{"url": "custom.example.com", "route": "localhost:9000"}]`)
	writeFile(t, dir, LocalFile, `[]`)
	src := &FileSource{Dir: dir}

	require.NoError(t, Prepare(context.Background(), src))
	tbl, err := Load(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, tbl.Upstreams, 1)
	assert.Equal(t, "custom.example.com", tbl.Upstreams[0].Pattern)
	assert.Empty(t, tbl.Locals)
}

func TestFileSourceLoadLeavesMissingFilesAlone(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, LocalFile, `[]`)

	_, err := Load(context.Background(), &FileSource{Dir: dir})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, filepath.Join(dir, UpstreamFile), cfgErr.Source)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(dir, UpstreamFile))
	assert.NoFileExists(t, filepath.Join(dir, "routes.example.json"))
}

func TestPrepareSkipsSourcesWithoutSetup(t *testing.T) {
	assert.NoError(t, Prepare(context.Background(), &scriptedSource{}))
}

func TestFileSourceRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
		local    string
		wantErr  error
	}{
		{name: "malformed json", upstream: `[{"url": `, local: `[]`},
		{name: "empty document", upstream: ``, local: `[]`},
		{name: "missing url", upstream: `[{"route": "localhost:3000"}]`, local: `[]`, wantErr: errEmptyPattern},
		{name: "missing route", upstream: `[{"url": "a.example.com"}]`, local: `[]`, wantErr: errEmptyUpstream},
		{name: "missing context", upstream: `[]`, local: `[{"url": "dev.example.com"}]`, wantErr: errEmptyHandler},
		{name: "missing local url", upstream: `[]`, local: `[{"context": "health"}]`, wantErr: errEmptyPattern},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, UpstreamFile, tc.upstream)
			writeFile(t, dir, LocalFile, tc.local)

			_, err := Load(context.Background(), &FileSource{Dir: dir})
			require.Error(t, err)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestFileSourceUnreadableDirectory(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	writeFile(t, base, "blocker", "not a directory")

	_, err := Load(context.Background(), &FileSource{Dir: filepath.Join(blocker, "routes")})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestWriteExamples(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteExamples(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	entries, err := parseUpstreams(paths[0], data)
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", entries[0].Upstream)

	assert.NoFileExists(t, filepath.Join(dir, UpstreamFile))
}

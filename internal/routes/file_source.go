package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	UpstreamFile = "routes.json"
	LocalFile    = "dev-routes.json"
)

// FileSource reads routes.json and dev-routes.json from Dir.
type FileSource struct {
	Dir string
}

func (s *FileSource) Name() string { return "file:" + s.Dir }

// Prepare installs example route files in place of missing ones.
func (s *FileSource) Prepare(_ context.Context) error {
	if err := EnsureRouteFiles(s.Dir); err != nil {
		return &ConfigError{Source: s.Name(), Err: err}
	}
	return nil
}

// Load reads both files as they are. A missing file is a ConfigError; it is
// never regenerated here.
func (s *FileSource) Load(_ context.Context) (*Table, error) {
	upstreamPath := filepath.Join(s.Dir, UpstreamFile)
	data, err := os.ReadFile(upstreamPath)
	if err != nil {
		return nil, &ConfigError{Source: upstreamPath, Err: err}
	}
	upstreams, err := parseUpstreams(upstreamPath, data)
	if err != nil {
		return nil, err
	}

	localPath := filepath.Join(s.Dir, LocalFile)
	data, err = os.ReadFile(localPath)
	if err != nil {
		return nil, &ConfigError{Source: localPath, Err: err}
	}
	locals, err := parseLocals(localPath, data)
	if err != nil {
		return nil, err
	}

	return &Table{Upstreams: upstreams, Locals: locals, Source: s.Name()}, nil
}

// ExampleUpstreams is written to routes.example.json when no route file
// exists yet.
var ExampleUpstreams = []upstreamRecord{{URL: "example.hostname.com", Route: "localhost:3000"}}

// ExampleLocals is written to dev-routes.example.json when no local route
// file exists yet.
var ExampleLocals = []localRecord{{URL: "exampleapi.hostname.com", Context: "example"}}

// EnsureRouteFiles makes sure both route files exist in dir. A missing file
// is replaced by its .example.json sibling, which is generated first when it
// is missing too.
func EnsureRouteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := ensureRouteFile(dir, UpstreamFile, ExampleUpstreams); err != nil {
		return err
	}
	return ensureRouteFile(dir, LocalFile, ExampleLocals)
}

// WriteExamples (re)generates both .example.json files without touching the
// live route files.
func WriteExamples(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	up := filepath.Join(dir, examplePath(UpstreamFile))
	if err := writeJSON(up, ExampleUpstreams); err != nil {
		return nil, err
	}
	local := filepath.Join(dir, examplePath(LocalFile))
	if err := writeJSON(local, ExampleLocals); err != nil {
		return nil, err
	}
	return []string{up, local}, nil
}

func ensureRouteFile(dir, name string, example any) error {
	live := filepath.Join(dir, name)
	if _, err := os.Stat(live); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	sample := filepath.Join(dir, examplePath(name))
	if _, err := os.Stat(sample); errors.Is(err, fs.ErrNotExist) {
		if err := writeJSON(sample, example); err != nil {
			return fmt.Errorf("generate %s: %w", sample, err)
		}
	} else if err != nil {
		return err
	}
	if err := os.Rename(sample, live); err != nil {
		return fmt.Errorf("install %s: %w", live, err)
	}
	return nil
}

func examplePath(name string) string {
	return strings.TrimSuffix(name, ".json") + ".example.json"
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

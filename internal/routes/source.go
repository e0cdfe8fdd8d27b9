package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errEmptyPattern  = errors.New("url must not be empty")
	errEmptyUpstream = errors.New("route must not be empty")
	errEmptyHandler  = errors.New("context must not be empty")
)

// Source produces a fresh route table from some backing store.
type Source interface {
	Name() string
	Load(ctx context.Context) (*Table, error)
}

// Preparer is implemented by sources that can create missing backing
// storage. It runs once at startup, never on refresh.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Prepare runs src's Prepare step when it has one.
func Prepare(ctx context.Context, src Source) error {
	p, ok := src.(Preparer)
	if !ok {
		return nil
	}
	if err := p.Prepare(ctx); err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return err
		}
		return &ConfigError{Source: src.Name(), Err: err}
	}
	return nil
}

// ConfigError reports a route table that could not be loaded or parsed.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("route config %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads a table from src. Every failure is returned as a *ConfigError.
func Load(ctx context.Context, src Source) (*Table, error) {
	t, err := src.Load(ctx)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &ConfigError{Source: src.Name(), Err: err}
	}
	if t.Source == "" {
		t.Source = src.Name()
	}
	return t, nil
}

type upstreamRecord struct {
	URL         string `json:"url"`
	Route       string `json:"route"`
	HealthRoute bool   `json:"healthRoute,omitempty"`
	HealthPath  string `json:"healthPath,omitempty"`
}

type localRecord struct {
	URL     string `json:"url"`
	Context string `json:"context"`
}

// decodeRecords accepts either a JSON array of records or a single bare
// record object.
func decodeRecords[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}
	if trimmed[0] == '{' {
		var one T
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		return []T{one}, nil
	}
	var many []T
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func parseUpstreams(name string, data []byte) ([]Entry, error) {
	records, err := decodeRecords[upstreamRecord](data)
	if err != nil {
		return nil, &ConfigError{Source: name, Err: err}
	}
	entries := make([]Entry, 0, len(records))
	for i, rec := range records {
		if rec.URL == "" {
			return nil, &ConfigError{Source: name, Err: fmt.Errorf("record %d: %w", i, errEmptyPattern)}
		}
		if rec.Route == "" {
			return nil, &ConfigError{Source: name, Err: fmt.Errorf("record %d: %w", i, errEmptyUpstream)}
		}
		e := Entry{Pattern: rec.URL, Upstream: rec.Route}
		switch {
		case rec.HealthPath != "":
			e.HealthPath = rec.HealthPath
		case rec.HealthRoute:
			e.HealthPath = DefaultHealthPath
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseLocals(name string, data []byte) ([]LocalEntry, error) {
	records, err := decodeRecords[localRecord](data)
	if err != nil {
		return nil, &ConfigError{Source: name, Err: err}
	}
	entries := make([]LocalEntry, 0, len(records))
	for i, rec := range records {
		if rec.URL == "" {
			return nil, &ConfigError{Source: name, Err: fmt.Errorf("record %d: %w", i, errEmptyPattern)}
		}
		if rec.Context == "" {
			return nil, &ConfigError{Source: name, Err: fmt.Errorf("record %d: %w", i, errEmptyHandler)}
		}
		entries = append(entries, LocalEntry{Pattern: rec.URL, Handler: rec.Context})
	}
	return entries, nil
}

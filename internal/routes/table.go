package routes

import (
	"strings"
	"time"
)

// DefaultHealthPath is the probe path used when an upstream record sets
// healthRoute.
const DefaultHealthPath = "/health"

// Entry maps a hostname pattern to an upstream host[:port].
type Entry struct {
	Pattern  string `json:"url"`
	Upstream string `json:"route"`
	// HealthPath is appended to the upstream when probing. Empty means the
	// upstream root is probed.
	HealthPath string `json:"healthPath,omitempty"`
}

// LocalEntry maps a hostname pattern to a local handler name.
type LocalEntry struct {
	Pattern string `json:"url"`
	Handler string `json:"context"`
}

// Patterned is implemented by anything the matcher can select.
type Patterned interface {
	MatchPattern() string
}

func (e Entry) MatchPattern() string      { return e.Pattern }
func (e LocalEntry) MatchPattern() string { return e.Pattern }

// Target returns the upstream as an absolute http URL string.
func (e Entry) Target() string {
	return httpify(e.Upstream)
}

func httpify(upstream string) string {
	if strings.HasPrefix(upstream, "http://") || strings.HasPrefix(upstream, "https://") {
		return upstream
	}
	return "http://" + upstream
}

// Table is an immutable snapshot of both route tables. Nothing may modify a
// Table after it has been handed to a Store.
type Table struct {
	Upstreams  []Entry
	Locals     []LocalEntry
	Generation uint64
	LoadedAt   time.Time
	Source     string
}

// EmptyTable is what a Store reports before the first table is published.
var EmptyTable = &Table{}

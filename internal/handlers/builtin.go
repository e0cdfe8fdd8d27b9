package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Builtin returns a registry holding the handlers shipped with hostproxy.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("health", HandlerFunc(health))
	r.Register("example", HandlerFunc(example))
	r.Register("echo", HandlerFunc(echo))
	return r
}

func health(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func example(w http.ResponseWriter, r *http.Request) error {
	switch strings.ToLower(strings.Trim(r.URL.Path, "/")) {
	case "":
		w.WriteHeader(http.StatusOK)
		return nil
	case "example":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, err := w.Write([]byte("<h1>An Example Page</h1>"))
		return err
	default:
		http.NotFound(w, r)
		return nil
	}
}

type echoView struct {
	Method string              `json:"method"`
	Host   string              `json:"host"`
	Path   string              `json:"path"`
	Query  map[string][]string `json:"query,omitempty"`
}

func echo(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, echoView{
		Method: r.Method,
		Host:   r.Host,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

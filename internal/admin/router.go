package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"hostproxy/internal/dispatch"
	"hostproxy/internal/handlers"
	"hostproxy/internal/routes"
)

// Refresher reloads the route table on demand.
type Refresher interface {
	RefreshNow(ctx context.Context) (*routes.Table, error)
}

type Options struct {
	Tables    dispatch.TableSource
	Refresher Refresher
	// Locals is consulted by /api/match; nil assumes every handler exists.
	Locals handlers.Resolver
	// Gatherer backs /metrics; nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

type tableView struct {
	Generation uint64              `json:"generation"`
	LoadedAt   *time.Time          `json:"loadedAt,omitempty"`
	Source     string              `json:"source"`
	Upstreams  []routes.Entry      `json:"routes"`
	Locals     []routes.LocalEntry `json:"devRoutes"`
}

func viewOf(t *routes.Table) tableView {
	v := tableView{
		Generation: t.Generation,
		Source:     t.Source,
		Upstreams:  t.Upstreams,
		Locals:     t.Locals,
	}
	if !t.LoadedAt.IsZero() {
		loaded := t.LoadedAt
		v.LoadedAt = &loaded
	}
	if v.Upstreams == nil {
		v.Upstreams = []routes.Entry{}
	}
	if v.Locals == nil {
		v.Locals = []routes.LocalEntry{}
	}
	return v
}

// Router serves the admin API. It is meant for a loopback listener.
func Router(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/routes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(opts.Tables.Current()))
	})

	mux.HandleFunc("/api/match", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		host := r.URL.Query().Get("host")
		if host == "" {
			http.Error(w, "host query parameter required", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, dispatch.Explain(opts.Tables.Current(), opts.Locals, host))
	})

	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if opts.Refresher == nil {
			http.Error(w, "refresh not configured", http.StatusNotImplemented)
			return
		}
		table, err := opts.Refresher.RefreshNow(r.Context())
		if err != nil {
			logger.WithError(err).Error("manual route refresh failed, keeping previous table")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(table))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

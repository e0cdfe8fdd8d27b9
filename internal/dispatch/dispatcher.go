package dispatch

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"hostproxy/internal/forward"
	"hostproxy/internal/handlers"
	"hostproxy/internal/metrics"
	"hostproxy/internal/probe"
	"hostproxy/internal/routes"
)

// Outcome is the terminal state a dispatch ended in.
type Outcome int

const (
	Forwarded Outcome = iota
	LocalDispatched
	BadRequest
	NotFound
	Ambiguous
	Unavailable
	HandlerFailure
)

func (o Outcome) String() string {
	switch o {
	case Forwarded:
		return "forwarded"
	case LocalDispatched:
		return "local"
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case Ambiguous:
		return "ambiguous"
	case Unavailable:
		return "unavailable"
	case HandlerFailure:
		return "handler_failure"
	default:
		return "unknown"
	}
}

// TableSource supplies the route table snapshot for one dispatch.
type TableSource interface {
	Current() *routes.Table
}

// Dispatcher routes a request by its Host header to a local handler or a
// liveness-checked upstream.
type Dispatcher struct {
	tables    TableSource
	locals    handlers.Resolver
	prober    probe.Prober
	forwarder forward.Forwarder
	logger    logrus.FieldLogger
}

func New(tables TableSource, locals handlers.Resolver, prober probe.Prober, forwarder forward.Forwarder, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		tables:    tables,
		locals:    locals,
		prober:    prober,
		forwarder: forwarder,
		logger:    logger,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.Dispatch(w, r)
}

// Dispatch runs one request to completion and reports where it ended.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *http.Request) Outcome {
	outcome := d.dispatch(w, r)
	metrics.DispatchTotal.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request) Outcome {
	host := r.Host
	if host == "" {
		d.logger.WithField("remote", r.RemoteAddr).Warn("request without Host header")
		http.Error(w, "missing host", http.StatusBadRequest)
		return BadRequest
	}

	// One snapshot serves every lookup of this request.
	table := d.tables.Current()
	log := d.logger.WithFields(logrus.Fields{"host": host, "generation": table.Generation})

	local := routes.Match(table.Locals, host)
	switch local.Kind {
	case routes.Resolved:
		entry, _ := local.Entry()
		return d.dispatchLocal(w, r, log, entry)
	case routes.Ambiguous:
		log.WithField("candidates", local.Patterns()).Error("multiple local routes match host")
		http.Error(w, "ambiguous route", http.StatusInternalServerError)
		return Ambiguous
	}

	upstream := routes.Match(table.Upstreams, host)
	switch upstream.Kind {
	case routes.NotFound:
		log.Warn("no route for host")
		http.Error(w, "no route", http.StatusNotFound)
		return NotFound
	case routes.Ambiguous:
		log.WithField("candidates", upstreamCandidates(upstream.Candidates)).Error("multiple routes match host")
		http.Error(w, "ambiguous route", http.StatusInternalServerError)
		return Ambiguous
	}

	entry, _ := upstream.Entry()
	log = log.WithField("upstream", entry.Upstream)
	if !d.prober.Probe(r.Context(), entry.Upstream, entry.HealthPath) {
		log.Error("upstream failed liveness probe")
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
		return Unavailable
	}

	log.Debug("forwarding request")
	d.forwarder.Forward(w, r, entry.Target())
	return Forwarded
}

func (d *Dispatcher) dispatchLocal(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, entry routes.LocalEntry) Outcome {
	log = log.WithField("handler", entry.Handler)
	resolved := d.locals.Resolve(entry.Handler)
	if len(resolved) == 0 {
		log.Error("local handler could not be resolved")
		metrics.HandlerFailures.WithLabelValues(entry.Handler).Inc()
		http.Error(w, "local handler unavailable", http.StatusInternalServerError)
		return HandlerFailure
	}

	log.Debug("dispatching to local handler")
	owner := &responseOwner{}
	for i, h := range resolved {
		cw := &claimWriter{ResponseWriter: w, owner: owner, index: i}
		err := handlers.Invoke(h, cw, r)
		if cw.discarded {
			log.WithField("index", i).Debug("local handler wrote after the response was claimed, output discarded")
		}
		if err != nil {
			metrics.HandlerFailures.WithLabelValues(entry.Handler).Inc()
			log.WithError(err).WithField("index", i).Error("local handler failed")
		}
	}
	return LocalDispatched
}

func upstreamCandidates(entries []routes.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Pattern+" -> "+e.Upstream)
	}
	return out
}

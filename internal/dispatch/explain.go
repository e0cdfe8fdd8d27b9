package dispatch

import (
	"hostproxy/internal/handlers"
	"hostproxy/internal/routes"
)

// Explanation is a dry run of the dispatch decision for one hostname. It
// never probes or forwards.
type Explanation struct {
	Host       string              `json:"host"`
	Generation uint64              `json:"generation"`
	Local      string              `json:"local"`
	Upstream   string              `json:"upstream"`
	Locals     []routes.LocalEntry `json:"localCandidates"`
	Upstreams  []routes.Entry      `json:"upstreamCandidates"`
	// Outcome is where a real request would end, assuming a live upstream.
	Outcome string `json:"outcome"`
	Status  int    `json:"status"`
}

// Explain runs both matchers against table the way Dispatch would. A
// resolved local entry is checked against locals; with a nil locals every
// handler name is assumed to be registered.
func Explain(table *routes.Table, locals handlers.Resolver, host string) Explanation {
	if table == nil {
		table = routes.EmptyTable
	}
	ex := Explanation{Host: host, Generation: table.Generation}
	if host == "" {
		ex.Outcome, ex.Status = BadRequest.String(), 400
		return ex
	}

	local := routes.Match(table.Locals, host)
	upstream := routes.Match(table.Upstreams, host)
	ex.Local, ex.Locals = local.Kind.String(), nonNil(local.Candidates)
	ex.Upstream, ex.Upstreams = upstream.Kind.String(), nonNil(upstream.Candidates)

	switch {
	case local.Kind == routes.Resolved:
		entry, _ := local.Entry()
		if locals != nil && len(locals.Resolve(entry.Handler)) == 0 {
			ex.Outcome, ex.Status = HandlerFailure.String(), 500
			break
		}
		ex.Outcome, ex.Status = LocalDispatched.String(), 200
	case local.Kind == routes.Ambiguous:
		ex.Outcome, ex.Status = Ambiguous.String(), 500
	case upstream.Kind == routes.NotFound:
		ex.Outcome, ex.Status = NotFound.String(), 404
	case upstream.Kind == routes.Ambiguous:
		ex.Outcome, ex.Status = Ambiguous.String(), 500
	default:
		ex.Outcome, ex.Status = Forwarded.String(), 200
	}
	return ex
}

func nonNil[E any](s []E) []E {
	if s == nil {
		return []E{}
	}
	return s
}

package routes

import "strings"

// MatchKind is the reduction of a candidate set.
type MatchKind int

const (
	NotFound MatchKind = iota
	Resolved
	Ambiguous
)

func (k MatchKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Result is the outcome of matching one hostname against one table.
type Result[E Patterned] struct {
	Kind       MatchKind
	Candidates []E
}

// Entry returns the single resolved candidate. ok is false unless Kind is
// Resolved.
func (r Result[E]) Entry() (e E, ok bool) {
	if r.Kind != Resolved {
		return e, false
	}
	return r.Candidates[0], true
}

// Patterns lists the candidate patterns, for diagnostics.
func (r Result[E]) Patterns() []string {
	out := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out = append(out, c.MatchPattern())
	}
	return out
}

// Match returns every entry whose pattern is both a suffix and a prefix of
// hostname. The two filters are computed independently and intersected in
// table order. Hostnames are compared exactly as given.
func Match[E Patterned](entries []E, hostname string) Result[E] {
	suffixed := make(map[int]struct{}, len(entries))
	for i, e := range entries {
		if strings.HasSuffix(hostname, e.MatchPattern()) {
			suffixed[i] = struct{}{}
		}
	}

	var prefixed []int
	for i, e := range entries {
		if strings.HasPrefix(hostname, e.MatchPattern()) {
			prefixed = append(prefixed, i)
		}
	}

	var candidates []E
	for _, i := range prefixed {
		if _, ok := suffixed[i]; ok {
			candidates = append(candidates, entries[i])
		}
	}

	switch len(candidates) {
	case 0:
		return Result[E]{Kind: NotFound}
	case 1:
		return Result[E]{Kind: Resolved, Candidates: candidates}
	default:
		return Result[E]{Kind: Ambiguous, Candidates: candidates}
	}
}

package dispatch

import "net/http"

// responseOwner records which of several local handlers sharing one
// response wrote to it first. Handlers run sequentially, so no locking.
type responseOwner struct {
	claimed bool
	index   int
}

// claimWriter gives each handler its own view of the shared response. The
// first view to write claims the response; writes through any other view
// are dropped. Headers set through a view reach the response only when that
// view claims it.
type claimWriter struct {
	http.ResponseWriter
	owner     *responseOwner
	index     int
	header    http.Header
	discarded bool
}

func (c *claimWriter) Header() http.Header {
	if c.owner.claimed && c.owner.index == c.index {
		return c.ResponseWriter.Header()
	}
	if c.header == nil {
		c.header = make(http.Header)
	}
	return c.header
}

func (c *claimWriter) owns() bool {
	if !c.owner.claimed {
		c.owner.claimed = true
		c.owner.index = c.index
		dst := c.ResponseWriter.Header()
		for k, v := range c.header {
			dst[k] = v
		}
		c.header = nil
	}
	if c.owner.index != c.index {
		c.discarded = true
		return false
	}
	return true
}

func (c *claimWriter) WriteHeader(status int) {
	if c.owns() {
		c.ResponseWriter.WriteHeader(status)
	}
}

func (c *claimWriter) Write(b []byte) (int, error) {
	if c.owns() {
		return c.ResponseWriter.Write(b)
	}
	return len(b), nil
}

func (c *claimWriter) Flush() {
	if !c.owns() {
		return
	}
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *claimWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

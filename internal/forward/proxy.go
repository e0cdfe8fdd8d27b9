package forward

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultCacheMaxEntries = 512
)

// Forwarder hands a request to an upstream and copies the answer back.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, target string)
}

type cachedProxy struct {
	proxy  *httputil.ReverseProxy
	usedAt atomic.Uint64
}

// Proxy is a Forwarder backed by httputil.ReverseProxy. One reverse proxy is
// kept per target, with least-recently-used eviction.
type Proxy struct {
	transport http.RoundTripper
	logger    logrus.FieldLogger

	mu         sync.RWMutex
	cache      map[string]*cachedProxy
	tick       atomic.Uint64
	maxEntries int
}

// NewProxy builds a Proxy whose dial and response-header waits are bounded
// by timeout.
func NewProxy(timeout time.Duration, maxEntries int, logger logrus.FieldLogger) *Proxy {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          1000,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}
	return &Proxy{
		transport:  transport,
		logger:     logger,
		cache:      make(map[string]*cachedProxy),
		maxEntries: maxEntries,
	}
}

// Forward proxies r to target, an absolute http(s) URL. Cancelling the
// inbound request cancels the upstream call.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, target string) {
	rp, err := p.reverseProxy(target)
	if err != nil {
		p.logger.WithError(err).WithField("upstream", target).Error("invalid upstream target")
		http.Error(w, "invalid upstream", http.StatusBadGateway)
		return
	}
	rp.ServeHTTP(w, r)
}

func (p *Proxy) reverseProxy(target string) (*httputil.ReverseProxy, error) {
	tick := p.tick.Add(1)

	p.mu.RLock()
	cached, ok := p.cache[target]
	p.mu.RUnlock()
	if ok {
		cached.usedAt.Store(tick)
		return cached.proxy, nil
	}

	u, err := parseTarget(target)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.cache[target]; ok {
		cached.usedAt.Store(tick)
		return cached.proxy, nil
	}
	if len(p.cache) >= p.maxEntries {
		p.evictLeastRecentlyUsedLocked()
	}
	entry := &cachedProxy{proxy: p.build(u)}
	entry.usedAt.Store(tick)
	p.cache[target] = entry
	return entry.proxy, nil
}

func (p *Proxy) evictLeastRecentlyUsedLocked() {
	var (
		evict     string
		evictTick uint64
		found     bool
	)
	for target, entry := range p.cache {
		tick := entry.usedAt.Load()
		if !found || tick < evictTick {
			evict = target
			evictTick = tick
			found = true
		}
	}
	if found {
		delete(p.cache, evict)
	}
}

func (p *Proxy) cached(target string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.cache[target]
	return ok
}

func (p *Proxy) build(target *url.URL) *httputil.ReverseProxy {
	targetQuery := target.RawQuery
	rewrite := func(pr *httputil.ProxyRequest) {
		req := pr.Out
		inboundHost := pr.In.Host
		_, port := splitHostPortMaybe(inboundHost)

		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path = singleJoiningSlash(target.Path, req.URL.Path)
		req.URL.RawPath = ""
		if targetQuery == "" || req.URL.RawQuery == "" {
			req.URL.RawQuery = targetQuery + req.URL.RawQuery
		} else {
			req.URL.RawQuery = targetQuery + "&" + req.URL.RawQuery
		}
		req.Host = inboundHost
		req.Header.Set("X-Forwarded-Host", inboundHost)

		forwardedProto := "http"
		defaultPort := "80"
		if pr.In.TLS != nil {
			forwardedProto = "https"
			defaultPort = "443"
		}
		if port != "" {
			defaultPort = port
		}
		req.Header.Set("X-Forwarded-Proto", forwardedProto)
		req.Header.Set("X-Forwarded-Port", defaultPort)

		if ip, _, err := net.SplitHostPort(pr.In.RemoteAddr); err == nil && ip != "" {
			appendForwardedFor(req, pr.In.Header.Get("X-Forwarded-For"), ip)
		}
	}
	return &httputil.ReverseProxy{
		Rewrite:       rewrite,
		Transport:     p.transport,
		FlushInterval: 50 * time.Millisecond,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			category := classifyUpstreamError(err)
			p.logger.WithError(err).WithFields(logrus.Fields{
				"host":     r.Host,
				"upstream": target.String(),
				"category": category,
			}).Error("forwarding to upstream failed")
			http.Error(w, category, http.StatusBadGateway)
		},
	}
}

func parseTarget(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("target required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid target: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported target scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("target host is required")
	}
	return u, nil
}

func classifyUpstreamError(err error) string {
	msg := strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", err)))
	switch {
	case strings.Contains(msg, "connection refused"):
		return "Upstream connection refused"
	case strings.Contains(msg, "no route to host"):
		return "Upstream route unavailable"
	case strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout awaiting response headers"):
		return "Upstream timeout"
	default:
		return "Upstream unavailable"
	}
}

func splitHostPortMaybe(host string) (string, string) {
	if strings.Contains(host, ":") {
		hostOnly, port, err := net.SplitHostPort(host)
		if err == nil {
			return hostOnly, port
		}
	}
	return host, ""
}

func appendForwardedFor(req *http.Request, prior, ip string) {
	const header = "X-Forwarded-For"
	if prior != "" {
		req.Header.Set(header, prior+", "+ip)
	} else {
		req.Header.Set(header, ip)
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

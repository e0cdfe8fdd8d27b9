package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"hostproxy/internal/metrics"
)

// DefaultTimeout bounds a single liveness probe.
const DefaultTimeout = 3 * time.Second

// Prober reports whether an upstream is alive. It never returns an error;
// every failure is reported as false.
type Prober interface {
	Probe(ctx context.Context, upstream, healthPath string) bool
}

// HTTPProber probes upstreams with a plain HTTP GET.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
	logger  logrus.FieldLogger
}

func NewHTTPProber(timeout time.Duration, logger logrus.FieldLogger) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	return &HTTPProber{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			// the probe judges the upstream's own answer
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
		logger:  logger,
	}
}

// Probe issues GET <upstream><healthPath>. Without a health path only 200
// counts as alive; with one, anything but 404 does.
func (p *HTTPProber) Probe(ctx context.Context, upstream, healthPath string) bool {
	start := time.Now()
	alive := p.probe(ctx, upstream, healthPath)
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	if alive {
		metrics.ProbeTotal.WithLabelValues("alive").Inc()
	} else {
		metrics.ProbeTotal.WithLabelValues("dead").Inc()
	}
	return alive
}

func (p *HTTPProber) probe(ctx context.Context, upstream, healthPath string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := ProbeURL(upstream, healthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		p.logger.WithError(err).WithField("upstream", upstream).Debug("liveness probe request invalid")
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithError(err).WithField("upstream", upstream).Debug("liveness probe failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if healthPath == "" {
		return resp.StatusCode == http.StatusOK
	}
	return resp.StatusCode != http.StatusNotFound
}

// ProbeURL joins an upstream host[:port] (optionally with scheme) and a
// health path.
func ProbeURL(upstream, healthPath string) string {
	base := upstream
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if healthPath == "" {
		return base
	}
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	return strings.TrimSuffix(base, "/") + healthPath
}

// Func adapts a function to the Prober interface.
type Func func(ctx context.Context, upstream, healthPath string) bool

func (f Func) Probe(ctx context.Context, upstream, healthPath string) bool {
	return f(ctx, upstream, healthPath)
}

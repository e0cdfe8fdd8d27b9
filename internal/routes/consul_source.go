package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
)

// DefaultConsulPrefix is the KV prefix used when none is configured.
const DefaultConsulPrefix = "hostproxy"

var errKeyMissing = errors.New("key not found")

// ConsulSource reads both route documents from Consul KV under Prefix:
// <prefix>/routes and <prefix>/dev-routes.
type ConsulSource struct {
	Client *consulapi.Client
	Prefix string
}

type headerRoundTripper struct {
	rt http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	return h.rt.RoundTrip(req)
}

// NewConsulClient builds a Consul client for addr, which may be host:port or
// a full http(s) URL.
func NewConsulClient(addr string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		if !strings.Contains(addr, "://") {
			addr = "http://" + addr
		}
		cfg.Address = addr
	}
	cfg.HttpClient = &http.Client{
		Transport: &headerRoundTripper{rt: http.DefaultTransport},
	}
	return consulapi.NewClient(cfg)
}

func (s *ConsulSource) Name() string { return "consul:" + s.prefix() }

func (s *ConsulSource) prefix() string {
	p := strings.Trim(s.Prefix, "/")
	if p == "" {
		return DefaultConsulPrefix
	}
	return p
}

func (s *ConsulSource) UpstreamKey() string { return s.prefix() + "/routes" }
func (s *ConsulSource) LocalKey() string    { return s.prefix() + "/dev-routes" }

func (s *ConsulSource) Load(ctx context.Context) (*Table, error) {
	if s.Client == nil {
		return nil, &ConfigError{Source: s.Name(), Err: errors.New("consul client not configured")}
	}

	data, err := s.get(ctx, s.UpstreamKey())
	if err != nil {
		return nil, err
	}
	upstreams, err := parseUpstreams(s.UpstreamKey(), data)
	if err != nil {
		return nil, err
	}

	data, err = s.get(ctx, s.LocalKey())
	if err != nil {
		return nil, err
	}
	locals, err := parseLocals(s.LocalKey(), data)
	if err != nil {
		return nil, err
	}

	return &Table{Upstreams: upstreams, Locals: locals, Source: s.Name()}, nil
}

func (s *ConsulSource) get(ctx context.Context, key string) ([]byte, error) {
	opts := (&consulapi.QueryOptions{}).WithContext(ctx)
	pair, _, err := s.Client.KV().Get(key, opts)
	if err != nil {
		return nil, &ConfigError{Source: key, Err: fmt.Errorf("consul kv get: %w", err)}
	}
	if pair == nil {
		return nil, &ConfigError{Source: key, Err: errKeyMissing}
	}
	return pair.Value, nil
}

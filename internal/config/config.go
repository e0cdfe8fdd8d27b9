package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hostproxy/internal/routes"
)

const (
	SourceFile   = "file"
	SourceConsul = "consul"
)

type Settings struct {
	Listen          string         `yaml:"listen"`
	AdminListen     string         `yaml:"admin_listen"`
	RoutesDir       string         `yaml:"routes_dir"`
	Source          string         `yaml:"source"`
	Consul          ConsulSettings `yaml:"consul"`
	RefreshInterval time.Duration  `yaml:"refresh_interval"`
	ProbeTimeout    time.Duration  `yaml:"probe_timeout"`
	ForwardTimeout  time.Duration  `yaml:"forward_timeout"`
	ProxyCacheSize  int            `yaml:"proxy_cache_size"`
	LogLevel        string         `yaml:"log_level"`
	Server          ServerSettings `yaml:"server"`
}

type ConsulSettings struct {
	Address string `yaml:"address,omitempty"`
	Prefix  string `yaml:"prefix"`
}

// ServerSettings bounds the inbound HTTP server.
type ServerSettings struct {
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
}

// Default returns the settings written on first run. RoutesDir is filled in
// relative to the config dir by LoadOrCreate.
func Default() Settings {
	return Settings{
		Listen:          ":80",
		AdminListen:     "127.0.0.1:2080",
		Source:          SourceFile,
		Consul:          ConsulSettings{Prefix: routes.DefaultConsulPrefix},
		RefreshInterval: routes.DefaultRefreshInterval,
		ProbeTimeout:    3 * time.Second,
		ForwardTimeout:  30 * time.Second,
		ProxyCacheSize:  512,
		LogLevel:        "info",
		Server: ServerSettings{
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func Path(dir string) string { return filepath.Join(dir, "settings.yml") }

// DefaultRoutesDir is where route files live unless routes_dir says otherwise.
func DefaultRoutesDir(configDir string) string { return filepath.Join(configDir, "routes") }

// DefaultDir picks the config dir: $HOSTPROXY_CONFIG_DIR, then
// $XDG_CONFIG_HOME/hostproxy, then ~/.config/hostproxy.
func DefaultDir() (string, error) {
	if d := envOrDefault("HOSTPROXY_CONFIG_DIR", ""); d != "" {
		return d, nil
	}
	if x := envOrDefault("XDG_CONFIG_HOME", ""); x != "" {
		return filepath.Join(x, "hostproxy"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "hostproxy"), nil
}

// LoadOrCreate reads settings.yml from configDir, writing defaults first if
// it does not exist. Environment overrides are applied to the result but
// never written back.
func LoadOrCreate(configDir string) (Settings, error) {
	p := Path(configDir)
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, err
		}
		cfg := Default()
		cfg.RoutesDir = DefaultRoutesDir(configDir)
		if err := Save(configDir, cfg); err != nil {
			return Settings{}, err
		}
		cfg.ApplyEnv()
		return cfg, nil
	}

	var cfg Settings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("invalid settings %s: %w", p, err)
	}
	cfg.ApplyDefaults(configDir)
	cfg.ApplyEnv()
	return cfg, nil
}

func Save(configDir string, cfg Settings) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(configDir), b, 0o644)
}

// ApplyDefaults fills every zero value from Default.
func (s *Settings) ApplyDefaults(configDir string) {
	d := Default()
	s.Listen = defaultIfEmpty(s.Listen, d.Listen)
	s.AdminListen = defaultIfEmpty(s.AdminListen, d.AdminListen)
	s.RoutesDir = defaultIfEmpty(s.RoutesDir, DefaultRoutesDir(configDir))
	s.Source = strings.ToLower(defaultIfEmpty(s.Source, d.Source))
	s.Consul.Prefix = defaultIfEmpty(s.Consul.Prefix, d.Consul.Prefix)
	s.RefreshInterval = durationOrDefault(s.RefreshInterval, d.RefreshInterval)
	s.ProbeTimeout = durationOrDefault(s.ProbeTimeout, d.ProbeTimeout)
	s.ForwardTimeout = durationOrDefault(s.ForwardTimeout, d.ForwardTimeout)
	s.ProxyCacheSize = valueOrDefault(s.ProxyCacheSize, d.ProxyCacheSize)
	s.LogLevel = defaultIfEmpty(s.LogLevel, d.LogLevel)
	s.Server.ReadHeaderTimeout = durationOrDefault(s.Server.ReadHeaderTimeout, d.Server.ReadHeaderTimeout)
	s.Server.IdleTimeout = durationOrDefault(s.Server.IdleTimeout, d.Server.IdleTimeout)
}

// ApplyEnv overlays HOSTPROXY_* environment variables. Unset, blank or
// unparsable values leave the current setting alone.
func (s *Settings) ApplyEnv() {
	s.Listen = envOrDefault("HOSTPROXY_LISTEN", s.Listen)
	s.AdminListen = envOrDefault("HOSTPROXY_ADMIN_LISTEN", s.AdminListen)
	s.RoutesDir = envOrDefault("HOSTPROXY_ROUTES_DIR", s.RoutesDir)
	s.Source = strings.ToLower(envOrDefault("HOSTPROXY_SOURCE", s.Source))
	s.Consul.Address = envOrDefault("HOSTPROXY_CONSUL_ADDRESS", s.Consul.Address)
	s.Consul.Prefix = envOrDefault("HOSTPROXY_CONSUL_PREFIX", s.Consul.Prefix)
	s.RefreshInterval = envDurationOrDefault("HOSTPROXY_REFRESH_INTERVAL", s.RefreshInterval)
	s.ProbeTimeout = envDurationOrDefault("HOSTPROXY_PROBE_TIMEOUT", s.ProbeTimeout)
	s.ForwardTimeout = envDurationOrDefault("HOSTPROXY_FORWARD_TIMEOUT", s.ForwardTimeout)
	s.ProxyCacheSize = envIntOrDefault("HOSTPROXY_PROXY_CACHE_SIZE", s.ProxyCacheSize)
	s.LogLevel = envOrDefault("HOSTPROXY_LOG_LEVEL", s.LogLevel)
}

func (s Settings) Validate() error {
	var errs []error
	switch s.Source {
	case SourceFile:
		if strings.TrimSpace(s.RoutesDir) == "" {
			errs = append(errs, errors.New("routes_dir is required for the file source"))
		}
	case SourceConsul:
		if strings.TrimSpace(s.Consul.Address) == "" {
			errs = append(errs, errors.New("consul.address is required for the consul source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown route source %q", s.Source))
	}
	for name, d := range map[string]time.Duration{
		"refresh_interval":           s.RefreshInterval,
		"probe_timeout":              s.ProbeTimeout,
		"forward_timeout":            s.ForwardTimeout,
		"server.read_header_timeout": s.Server.ReadHeaderTimeout,
		"server.idle_timeout":        s.Server.IdleTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if s.ProxyCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("proxy_cache_size must be positive, got %d", s.ProxyCacheSize))
	}
	if s.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if s.AdminListen != "" && s.AdminListen == s.Listen {
		errs = append(errs, fmt.Errorf("admin_listen and listen are both %q", s.Listen))
	}
	return errors.Join(errs...)
}

// NewSource builds the route source the settings describe.
func (s Settings) NewSource() (routes.Source, error) {
	switch s.Source {
	case SourceFile:
		return &routes.FileSource{Dir: s.RoutesDir}, nil
	case SourceConsul:
		client, err := routes.NewConsulClient(s.Consul.Address)
		if err != nil {
			return nil, err
		}
		return &routes.ConsulSource{Client: client, Prefix: s.Consul.Prefix}, nil
	default:
		return nil, fmt.Errorf("unknown route source %q", s.Source)
	}
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func valueOrDefault(value int, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func durationOrDefault(value, fallback time.Duration) time.Duration {
	if value == 0 {
		return fallback
	}
	return value
}

func envOrDefault(key string, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

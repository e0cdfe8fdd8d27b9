package cli

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hostproxy/internal/config"
)

// isTruthyEnv returns true for truthy environment variable values.
func isTruthyEnv(key string) bool {
	val := strings.TrimSpace(os.Getenv(key))
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func configDirFor(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("config-dir"); strings.TrimSpace(dir) != "" {
		return dir, nil
	}
	return config.DefaultDir()
}

// loadSettings resolves settings.yml, then environment, then flags.
func loadSettings(cmd *cobra.Command) (config.Settings, string, error) {
	dir, err := configDirFor(cmd)
	if err != nil {
		return config.Settings{}, "", err
	}
	cfg, err := config.LoadOrCreate(dir)
	if err != nil {
		return config.Settings{}, "", err
	}
	if level, _ := cmd.Flags().GetString("log-level"); strings.TrimSpace(level) != "" {
		cfg.LogLevel = level
	}
	overrideString(cmd, "listen", &cfg.Listen)
	overrideString(cmd, "admin-listen", &cfg.AdminListen)
	overrideString(cmd, "routes-dir", &cfg.RoutesDir)
	overrideString(cmd, "source", &cfg.Source)
	overrideString(cmd, "consul-address", &cfg.Consul.Address)
	return cfg, dir, nil
}

func overrideString(cmd *cobra.Command, flag string, dst *string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil || !f.Changed {
		return
	}
	*dst = strings.TrimSpace(f.Value.String())
}

// newLogger builds the process logger. Verbose wins over the configured
// level.
func newLogger(cfg config.Settings, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if isTruthyEnv("HOSTPROXY_VERBOSE") {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger, nil
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"hostproxy/internal/config"
	"hostproxy/internal/dispatch"
	"hostproxy/internal/handlers"
	"hostproxy/internal/routes"
)

func TestPrintBanner(t *testing.T) {
	table := &routes.Table{
		Upstreams: []routes.Entry{{Pattern: "example.hostname.com", Upstream: "localhost:3000"}},
		Locals:    []routes.LocalEntry{{Pattern: "exampleapi.hostname.com", Handler: "example"}},
	}
	var buf bytes.Buffer
	printBanner(&buf, table, ":80", "127.0.0.1:2080")
	out := buf.String()

	for _, want := range []string{
		"Web Proxies:",
		"0. From: example.hostname.com, to localhost:3000.",
		"Development Proxies:",
		"0. From: exampleapi.hostname.com, to example.",
		"Listening on :80.",
		"Admin API on 127.0.0.1:2080.",
		"Logs\n" + strings.Repeat("-", 80) + "\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in banner:\n%s", want, out)
		}
	}
	if strings.Index(out, "Web Proxies:") > strings.Index(out, "Development Proxies:") {
		t.Fatalf("expected upstream routes to be listed first")
	}
}

func TestPrintRoutesEmpty(t *testing.T) {
	var buf bytes.Buffer
	printRoutes(&buf, routes.EmptyTable)
	if strings.Count(buf.String(), "(none)") != 2 {
		t.Fatalf("expected both tables to be marked empty:\n%s", buf.String())
	}
}

func TestTerminalWidthFallsBack(t *testing.T) {
	if got := terminalWidth(&bytes.Buffer{}); got != 80 {
		t.Fatalf("expected 80 columns for a non-terminal, got %d", got)
	}
}

func TestWriteExplanation(t *testing.T) {
	table := &routes.Table{
		Upstreams: []routes.Entry{
			{Pattern: "a.com", Upstream: "one:1"},
			{Pattern: "a.com", Upstream: "two:2"},
		},
	}
	var buf bytes.Buffer
	if err := writeExplanation(&buf, dispatch.Explain(table, handlers.Builtin(), "a.com"), false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Upstream:  ambiguous", "a.com -> one:1", "a.com -> two:2", "Outcome:   ambiguous (500)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("HOSTPROXY_VERBOSE", "")
	cfg := config.Default()
	cfg.LogLevel = "warn"
	logger, err := newLogger(cfg, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %v", logger.GetLevel())
	}

	t.Setenv("HOSTPROXY_VERBOSE", "yes")
	logger, err = newLogger(cfg, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected verbose to force debug, got %v", logger.GetLevel())
	}

	cfg.LogLevel = "loud"
	if _, err := newLogger(cfg, io.Discard); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func runRoot(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeRoot(t, args...)
	if err != nil {
		t.Fatalf("hostproxy %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestInitRoutesAndMatchCommands(t *testing.T) {
	dir := t.TempDir()

	out := runRoot(t, "init", "--config-dir", dir, "--install")
	if !strings.Contains(out, "routes.example.json") || !strings.Contains(out, "Route files ready") {
		t.Fatalf("unexpected init output:\n%s", out)
	}
	for _, name := range []string{"settings.yml", "routes/routes.json", "routes/dev-routes.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}

	out = runRoot(t, "routes", "--config-dir", dir)
	if !strings.Contains(out, "0. From: example.hostname.com, to localhost:3000.") {
		t.Fatalf("unexpected routes output:\n%s", out)
	}

	out = runRoot(t, "match", "--config-dir", dir, "exampleapi.hostname.com")
	if !strings.Contains(out, "Outcome:   local (200)") {
		t.Fatalf("unexpected match output:\n%s", out)
	}
}

func TestRoutesAndMatchReportMissingRouteFiles(t *testing.T) {
	for _, args := range [][]string{
		{"routes"},
		{"match", "exampleapi.hostname.com"},
	} {
		t.Run(args[0], func(t *testing.T) {
			dir := t.TempDir()
			out, err := executeRoot(t, append(args, "--config-dir", dir)...)
			var cfgErr *routes.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v\n%s", err, out)
			}
			if !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("expected a missing file error, got %v", err)
			}
			for _, name := range []string{routes.UpstreamFile, routes.LocalFile, "routes.example.json", "dev-routes.example.json"} {
				if _, err := os.Stat(filepath.Join(dir, "routes", name)); !errors.Is(err, os.ErrNotExist) {
					t.Fatalf("expected %s to be left alone, stat: %v", name, err)
				}
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out := runRoot(t, "version")
	if !strings.HasPrefix(out, "hostproxy dev (") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func writeRoutes(t *testing.T, dir, upstreams, locals string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, routes.UpstreamFile), []byte(upstreams), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, routes.LocalFile), []byte(locals), 0o644); err != nil {
		t.Fatal(err)
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func TestProxyServiceEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "upstream saw %s%s", r.Host, r.URL.Path)
	}))
	defer upstream.Close()

	routesDir := filepath.Join(t.TempDir(), "routes")
	writeRoutes(t, routesDir,
		fmt.Sprintf(`[{"url":"app.example.com","route":%q}]`, strings.TrimPrefix(upstream.URL, "http://")),
		`[{"url":"dev.example.com","context":"health"}]`,
	)
	cfg := config.Default()
	cfg.RoutesDir = routesDir
	logger, _ := test.NewNullLogger()

	svc, err := newProxyService(context.Background(), cfg, handlers.Builtin(), logger)
	if err != nil {
		t.Fatalf("newProxyService: %v", err)
	}
	proxyLn, adminLn := listen(t), listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, proxyLn, adminLn) }()

	call := func(addr, host, path string) (int, string) {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, "http://"+addr+path, nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Host = host
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s %s: %v", host, path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	proxyAddr := proxyLn.Addr().String()
	if code, body := call(proxyAddr, "app.example.com", "/hello"); code != http.StatusOK || body != "upstream saw app.example.com/hello" {
		t.Fatalf("forward: %d %q", code, body)
	}
	if code, body := call(proxyAddr, "dev.example.com", "/"); code != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Fatalf("local: %d %q", code, body)
	}
	if code, _ := call(proxyAddr, "nobody.example.com", "/"); code != http.StatusNotFound {
		t.Fatalf("unknown host: %d", code)
	}
	if code, body := call(adminLn.Addr().String(), "localhost", "/api/routes"); code != http.StatusOK || !strings.Contains(body, "app.example.com") {
		t.Fatalf("admin routes: %d %q", code, body)
	}
	if code, body := call(adminLn.Addr().String(), "localhost", "/metrics"); code != http.StatusOK || !strings.Contains(body, `hostproxy_dispatch_total{outcome="forwarded"}`) {
		t.Fatalf("admin metrics: %d %q", code, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestProxyServiceRejectsBadRouteConfig(t *testing.T) {
	routesDir := filepath.Join(t.TempDir(), "routes")
	writeRoutes(t, routesDir, `[{"url":"","route":"x:1"}]`, `[]`)
	cfg := config.Default()
	cfg.RoutesDir = routesDir
	logger, _ := test.NewNullLogger()

	_, err := newProxyService(context.Background(), cfg, handlers.Builtin(), logger)
	var cfgErr *routes.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

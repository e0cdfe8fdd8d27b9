package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hostproxy/internal/admin"
	"hostproxy/internal/config"
	"hostproxy/internal/dispatch"
	"hostproxy/internal/forward"
	"hostproxy/internal/handlers"
	"hostproxy/internal/metrics"
	"hostproxy/internal/probe"
	"hostproxy/internal/routes"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy, the admin API and the route refresher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		svc, err := newProxyService(cmd.Context(), cfg, handlers.Builtin(), logger)
		if err != nil {
			return err
		}

		proxyLn, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return err
		}
		var adminLn net.Listener
		if cfg.AdminListen != "" {
			adminLn, err = net.Listen("tcp", cfg.AdminListen)
			if err != nil {
				_ = proxyLn.Close()
				return err
			}
		}

		printBanner(cmd.OutOrStdout(), svc.store.Current(), cfg.Listen, cfg.AdminListen)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return svc.Run(ctx, proxyLn, adminLn)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Proxy listen address (overrides settings)")
	serveCmd.Flags().String("admin-listen", "", "Admin API listen address (overrides settings)")
	serveCmd.Flags().String("routes-dir", "", "Directory holding routes.json and dev-routes.json")
	serveCmd.Flags().String("source", "", "Route source: file or consul")
	serveCmd.Flags().String("consul-address", "", "Consul agent address for the consul source")
}

// proxyService is everything serve runs.
type proxyService struct {
	settings   config.Settings
	logger     *logrus.Logger
	locals     handlers.Resolver
	store      *routes.Store
	refresher  *routes.Refresher
	dispatcher *dispatch.Dispatcher
	registry   *prometheus.Registry
}

// newProxyService prepares the route source and loads the initial route
// table. A table that cannot be loaded at startup is fatal.
func newProxyService(ctx context.Context, cfg config.Settings, locals handlers.Resolver, logger *logrus.Logger) (*proxyService, error) {
	src, err := cfg.NewSource()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(reg)

	store := routes.NewStore()
	refresher := &routes.Refresher{
		Store:    store,
		Source:   src,
		Interval: cfg.RefreshInterval,
		Logger:   logger.WithField("component", "refresh"),
	}
	if err := routes.Prepare(ctx, src); err != nil {
		return nil, err
	}
	if _, err := refresher.RefreshNow(ctx); err != nil {
		return nil, err
	}

	d := dispatch.New(
		store,
		locals,
		probe.NewHTTPProber(cfg.ProbeTimeout, logger.WithField("component", "probe")),
		forward.NewProxy(cfg.ForwardTimeout, cfg.ProxyCacheSize, logger.WithField("component", "forward")),
		logger.WithField("component", "dispatch"),
	)
	return &proxyService{
		settings:   cfg,
		logger:     logger,
		locals:     locals,
		store:      store,
		refresher:  refresher,
		dispatcher: d,
		registry:   reg,
	}, nil
}

// Run serves until ctx is cancelled, then shuts both servers down. adminLn
// may be nil.
func (s *proxyService) Run(ctx context.Context, proxyLn, adminLn net.Listener) error {
	logWriter := s.logger.WriterLevel(logrus.WarnLevel)
	defer logWriter.Close()
	errorLog := log.New(logWriter, "", 0)
	proxySrv := &http.Server{
		Handler:           s.dispatcher,
		ReadHeaderTimeout: s.settings.Server.ReadHeaderTimeout,
		IdleTimeout:       s.settings.Server.IdleTimeout,
		ErrorLog:          errorLog,
	}
	var adminSrv *http.Server
	if adminLn != nil {
		adminSrv = &http.Server{
			Handler: admin.Router(admin.Options{
				Tables:    s.store,
				Refresher: s.refresher,
				Locals:    s.locals,
				Gatherer:  s.registry,
				Logger:    s.logger.WithField("component", "admin"),
			}),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          errorLog,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.WithField("addr", proxyLn.Addr().String()).Info("proxy listening")
		if err := proxySrv.Serve(proxyLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("proxy server: %w", err)
		}
		return nil
	})
	if adminSrv != nil {
		g.Go(func() error {
			s.logger.WithField("addr", adminLn.Addr().String()).Info("admin API listening")
			if err := adminSrv.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return s.refresher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := proxySrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if adminSrv != nil {
			if err := adminSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classforge/filegate/internal/accesslog"
	"github.com/classforge/filegate/internal/api"
	"github.com/classforge/filegate/internal/audit"
	"github.com/classforge/filegate/internal/auth"
	"github.com/classforge/filegate/internal/config"
	"github.com/classforge/filegate/internal/metrics"
	"github.com/classforge/filegate/internal/middleware"
	"github.com/classforge/filegate/internal/objectstore"
	"github.com/classforge/filegate/internal/ratelimit"
	"github.com/classforge/filegate/internal/store"
)

type Server struct {
	cfg         *config.Config
	store       *store.Store
	handler     *api.Handler
	metrics     *metrics.Collector
	accessLog   *accesslog.Logger
	auditDisp   *audit.Dispatcher
	rateLimiter *ratelimit.Limiter
}

func New(cfg *config.Config) (*Server, error) {
	st, err := store.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	provider := auth.NewProvider(auth.ProviderConfig{
		URL:        cfg.Identity.URL,
		ServiceKey: cfg.Identity.ServiceKey,
		AdminRPC:   cfg.Identity.AdminRPC,
		Timeout:    time.Duration(cfg.Identity.TimeoutSecs) * time.Second,
	})
	detector := auth.NewDetector(provider, st)

	signer := objectstore.NewClient(objectstore.Config{
		URL:        cfg.ObjectStore.URL,
		ServiceKey: cfg.ObjectStore.ServiceKey,
		Timeout:    time.Duration(cfg.ObjectStore.TimeoutSecs) * time.Second,
	})

	mc := metrics.NewCollector()

	handler := api.NewHandler(provider, detector, st, signer, cfg.Identity.SessionCookie)
	handler.SetMetrics(mc)

	srv := &Server{
		cfg:     cfg,
		store:   st,
		handler: handler,
		metrics: mc,
	}

	// Audit dispatcher, only if at least one backend is configured
	disp, err := buildAuditDispatcher(cfg.Audit)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init audit: %w", err)
	}
	if disp != nil {
		disp.Start()
		handler.SetAuditor(disp)
		srv.auditDisp = disp
	}

	if cfg.AccessLog.Enabled {
		al, err := accesslog.New(cfg.AccessLog.FilePath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init access log: %w", err)
		}
		srv.accessLog = al
		slog.Info("access logging enabled", "path", cfg.AccessLog.FilePath)
	}

	if cfg.RateLimit.Enabled {
		srv.rateLimiter = ratelimit.NewLimiter(
			cfg.RateLimit.IPRPS, cfg.RateLimit.IPBurst,
			cfg.RateLimit.PrincipalRPS, cfg.RateLimit.PrincipalBurst,
		)
		slog.Info("rate limiting enabled",
			"ip_rps", cfg.RateLimit.IPRPS,
			"principal_rps", cfg.RateLimit.PrincipalRPS,
		)
	}

	return srv, nil
}

func buildAuditDispatcher(cfg config.AuditConfig) (*audit.Dispatcher, error) {
	var backends []audit.Backend

	if cfg.NATS.Enabled {
		b, err := audit.NewNATSBackend(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, fmt.Errorf("nats backend: %w", err)
		}
		backends = append(backends, b)
	}
	if cfg.Redis.Enabled {
		backends = append(backends, audit.NewRedisBackend(cfg.Redis.Addr, cfg.Redis.Channel, cfg.Redis.ListKey))
	}
	if cfg.Kafka.Enabled {
		backends = append(backends, audit.NewKafkaBackend(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	if cfg.Postgres.Enabled {
		backends = append(backends, audit.NewPostgresBackend(cfg.Postgres.DSN, cfg.Postgres.Table))
	}
	if cfg.Webhook.Enabled {
		backends = append(backends, audit.NewWebhookBackend(cfg.Webhook.URL))
	}

	if len(backends) == 0 {
		return nil, nil
	}

	disp := audit.NewDispatcher(cfg.Workers, cfg.QueueSize, time.Duration(cfg.TimeoutSecs)*time.Second)
	for _, b := range backends {
		disp.AddBackend(b)
	}
	return disp, nil
}

// routes builds the full handler chain.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(s.metrics.StartTime()))
	mux.HandleFunc("/readyz", readyHandler(s.store))
	mux.Handle("/metrics", s.metrics)
	mux.Handle("/", s.withAccessLog(s.handler))

	var h http.Handler = mux
	if s.rateLimiter != nil {
		h = middleware.RateLimit(s.rateLimiter, h)
	}
	h = middleware.SecurityHeaders(h)
	h = middleware.PanicRecovery(h)
	h = middleware.RequestID(h)
	return h
}

// withAccessLog records one JSON line per delivery request.
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RecordRequest()
		if s.accessLog == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &middleware.StatusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.accessLog.Log(accesslog.Entry{
			Time:       start.UTC(),
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.Status,
			ClientIP:   middleware.ClientIP(r),
			DurationMs: time.Since(start).Milliseconds(),
		})
	})
}

// Run starts the HTTP server and blocks until a shutdown signal arrives.
func (s *Server) Run() error {
	httpSrv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		switch {
		case s.cfg.Server.AutoTLS.Enabled:
			tlsCfg, redirect := NewAutoTLS(s.cfg.Server.AutoTLS)
			if redirect != nil {
				go http.ListenAndServe(":80", redirect)
			}
			httpSrv.TLSConfig = tlsCfg
			slog.Info("server listening (auto tls)", "addr", httpSrv.Addr)
			err = httpSrv.ListenAndServeTLS("", "")
		case s.cfg.Server.TLS.Enabled:
			slog.Info("server listening (tls)", "addr", httpSrv.Addr)
			err = httpSrv.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		default:
			slog.Info("server listening", "addr", httpSrv.Addr)
			err = httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// Close releases everything Run does not own.
func (s *Server) Close() {
	if s.auditDisp != nil {
		s.auditDisp.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.accessLog != nil {
		s.accessLog.Close()
	}
	s.store.Close()
}

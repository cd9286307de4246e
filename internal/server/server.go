package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"qrelay/internal/config"
	"qrelay/internal/constants"
	"qrelay/internal/metrics"
	"qrelay/internal/relay"
	"qrelay/internal/security"
	"qrelay/internal/session"
	"qrelay/internal/storage"
	"qrelay/internal/sweeper"
)

type Server struct {
	Config        *config.Config
	Sessions      *session.Manager
	Relay         *relay.Relay
	Disk          *storage.Disk
	Sweeper       *sweeper.Sweeper
	Metrics       *metrics.Metrics
	Limiter       security.Limiter
	UploadLimiter *security.ConnectionLimiter
	Probes        *security.ProbeGuard
	AuditLogger   *security.AuditLogger
	UseTLS        bool
}

func NewServer(cfg *config.Config) (*Server, error) {
	return newServer(cfg, time.Now)
}

func newServer(cfg *config.Config, now func() time.Time) (*Server, error) {
	disk, err := storage.NewDisk(cfg.Storage.UploadDir, cfg.Storage.MinFreeDisk)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload dir: %w", err)
	}

	// nothing on disk can belong to a live session after a restart
	if n, err := disk.Purge(); err != nil {
		log.Warn().Err(err).Str("dir", disk.Dir()).Msg("Failed to purge upload dir")
	} else if n > 0 {
		log.Info().Int("sessions", n).Msg("🗑 Purged leftover session files")
	}

	store := session.NewStore()
	manager := session.NewManager(store, session.Options{
		Policy: session.Policy{
			SessionTimeout: cfg.Session.Timeout,
			Liveness:       cfg.Session.Liveness,
		},
		Reclaimer: disk,
		Now:       now,
	})

	s := &Server{
		Config:   cfg,
		Sessions: manager,
		Relay:    relay.New(manager, disk, cfg.Storage.MaxUploadSize),
		Disk:     disk,
		Sweeper:  sweeper.New(manager, cfg.Session.SweepInterval),
		Metrics:  metrics.NewMetrics(func() float64 { return float64(store.Len()) }),
		Limiter: security.NewLimiter(security.LimiterOptions{
			Limit:         cfg.Limits.CreatePerMinute,
			Window:        constants.RateLimitWindow,
			RedisHost:     cfg.Redis.Host,
			RedisPort:     cfg.Redis.Port,
			RedisUsername: cfg.Redis.Username,
			RedisPassword: cfg.Redis.Password,
		}),
		UploadLimiter: security.NewConnectionLimiter(cfg.Limits.UploadsPerIP),
		Probes:        security.NewProbeGuard(constants.MaxProbeMisses, constants.ProbeBlockDuration),
		AuditLogger:   security.DefaultAuditLogger(),
	}

	manager.OnEvict(func(id string, reason session.EvictReason) {
		s.Metrics.SessionsEvictedTotal.WithLabelValues(string(reason)).Inc()
	})
	s.Sweeper.OnSweep(func(int) {
		s.Metrics.SweepsTotal.Inc()
	})

	return s, nil
}

// Handler builds the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+constants.EndpointSessions, s.HandleCreateSession)
	mux.HandleFunc("GET "+constants.EndpointSessions+"/{id}/qr.png", s.HandleQR)
	mux.HandleFunc("POST "+constants.EndpointSessions+"/{id}/connect", s.HandleConnect)
	mux.HandleFunc("GET "+constants.EndpointSessions+"/{id}/status", s.HandleStatus)
	mux.Handle("POST "+constants.EndpointSessions+"/{id}/images",
		security.MaxBodySize(s.Config.Storage.MaxUploadSize+constants.MultipartOverhead)(http.HandlerFunc(s.HandleUpload)))
	mux.HandleFunc("GET "+constants.EndpointSessions+"/{id}/images/{imageId}", s.HandleFetch)
	mux.HandleFunc("GET "+constants.EndpointHealth, s.HandleHealth)
	mux.Handle("GET "+constants.EndpointMetrics, s.Metrics.Handler())

	var handler http.Handler = mux
	handler = RequestLogger(s.Metrics)(handler)
	handler = RecoveryMiddleware(handler)
	handler = CorsMiddleware(handler)
	handler = security.SecurityHeaders(handler)
	handler = GzipMiddleware(handler)
	return handler
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	certFile := s.Config.Server.CertFile
	keyFile := s.Config.Server.KeyFile

	useTLS := false
	if s.Config.Server.EnableTLS {
		if _, err := os.Stat(certFile); err == nil {
			if _, err := os.Stat(keyFile); err == nil {
				useTLS = true
			}
		}

		if !useTLS {
			log.Warn().Str("cert_file", certFile).Msg("QRELAY_ENABLE_TLS is true but certs not found")
		}
	}
	s.UseTLS = useTLS

	handler := s.Handler()
	if !useTLS {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.Config.Server.Addr(),
		Handler:           handler,
		IdleTimeout:       constants.IdleTimeout,
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	if err := s.Sweeper.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			log.Info().Msg("🔒 HTTPS enabled (HTTP/2)")
			err = server.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Info().Msg("🌐 HTTP mode (HTTP/2 enabled)")
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Str("addr", server.Addr).Msg("🚀 qrelay server starting")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case <-sigChan:
		log.Info().Msg("🛑 Shutting down server...")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("HTTP server error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Server forced to shutdown")
	}

	s.Cleanup()
	log.Info().Msg("✅ Server stopped")
	return serveErr
}

// Cleanup stops background work and removes every session and its files.
func (s *Server) Cleanup() {
	if s.Sweeper.IsRunning() {
		if err := s.Sweeper.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop sweeper")
		}
	}
	if n := s.Sessions.EvictAll(); n > 0 {
		log.Info().Int("sessions", n).Msg("🗑 Sessions closed on shutdown")
	}
	s.Relay.Close()
	s.Probes.Close()
	if err := s.Limiter.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close rate limiter")
	}
}

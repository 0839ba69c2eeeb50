package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/drg911/htb-pro-card/pkg/service"
	"github.com/drg911/htb-pro-card/pkg/source"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Config is everything a request needs beyond its own parameters.
type Config struct {
	Defaults     service.GlobalDefaults
	Labs         source.RemoteAPI
	RelayTimeout time.Duration
	// Relay limits the json_url a fragment request may supply. The
	// configured default relay is always allowed.
	Relay source.RelayPolicy
	// TrustRequests skips the relay policy, for the local CLI.
	TrustRequests bool
	// Username and Password protect /admin; the admin routes are disabled
	// until both are set.
	Username string
	Password string
}

type Server struct {
	svc *service.Service
	cfg Config
	log *logrus.Logger
}

func New(svc *service.Service, cfg Config, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{svc: svc, cfg: cfg, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	for _, kind := range Kinds {
		r.Get("/"+kind, s.handleFragment(kind))
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Post("/test", s.handleTest)
		r.Post("/clear", s.handleClear)
		r.Post("/refresh", s.handleRefresh)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Username == "" || s.cfg.Password == "" {
			http.Error(w, "admin disabled: set server.username and server.password", http.StatusForbidden)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.cfg.Username || pass != s.cfg.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

// Package httpapi is the query surface of the watchdog: service status,
// history, uptime, escalations and the admin commands.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/config"
	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/escalation"
	apimw "github.com/hamed0406/watchdog/internal/httpapi/middleware"
	"github.com/hamed0406/watchdog/internal/scheduler"
	"github.com/hamed0406/watchdog/internal/uptime"
)

const maxHistoryLimit = 500

// Engine is the part of the scheduler the API reads and commands.
type Engine interface {
	Services() []scheduler.ServiceView
	Service(name string) (scheduler.ServiceView, bool)
	History(ctx context.Context, name string, limit int) ([]domain.CheckResult, error)
	Uptime(name string, now time.Time) []uptime.Summary
	Escalations() []escalation.State
	Acknowledge(service string) error
	Reload() (*config.Snapshot, error)
	Counts() map[domain.Status]int
}

type Options struct {
	Keys           apimw.Keys
	AllowedOrigins []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
	Metrics        http.Handler
	WebSocket      http.HandlerFunc
}

type Server struct {
	Logger *zap.Logger
	Engine Engine
	now    func() time.Time
}

func NewServer(l *zap.Logger, e Engine) *Server {
	return &Server{Logger: l, Engine: e, now: time.Now}
}

func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, s.accessLog)
	if len(opts.AllowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.WebSocket != nil {
		r.With(apimw.RateLimit(opts.PublicRPM, opts.PublicBurst), apimw.RequireAny(opts.Keys)).
			Get("/ws", opts.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(opts.PublicRPM, opts.PublicBurst), apimw.RequireAny(opts.Keys))
			r.Get("/summary", s.handleSummary)
			r.Get("/services", s.handleListServices)
			r.Get("/services/{name}", s.handleGetService)
			r.Get("/services/{name}/history", s.handleHistory)
			r.Get("/services/{name}/uptime", s.handleUptime)
			r.Get("/escalations", s.handleEscalations)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(opts.AdminRPM, opts.AdminBurst), apimw.RequireAdmin(opts.Keys))
			r.Post("/services/{name}/ack", s.handleAck)
			r.Post("/reload", s.handleReload)
		})
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	counts := s.Engine.Counts()
	out := make(map[string]int, len(counts))
	total := 0
	for st, n := range counts {
		out[st.String()] = n
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "by_status": out})
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Services())
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	v, ok := s.Engine.Service(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.Engine.Service(name); !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	hist, err := s.Engine.History(r.Context(), name, limit)
	if err != nil {
		s.Logger.Warn("history_query_failed", zap.String("service", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if hist == nil {
		hist = []domain.CheckResult{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.Engine.Service(name); !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": name,
		"periods": s.Engine.Uptime(name, s.now()),
	})
}

func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	out := s.Engine.Escalations()
	if out == nil {
		out = []escalation.State{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.Engine.Service(name); !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}
	if err := s.Engine.Acknowledge(name); err != nil {
		if errors.Is(err, escalation.ErrNoEscalation) {
			writeError(w, http.StatusNotFound, "no escalation for service")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Logger.Info("ack_received", zap.String("service", name), zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, map[string]any{"service": name, "acknowledged": true})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.Reload()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, domain.ErrConfigInvalid) {
			code = http.StatusUnprocessableEntity
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   snap.Version,
		"services":  len(snap.Catalog.Services),
		"loaded_at": snap.LoadedAt,
	})
}

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hamed0406/portwatch/internal/domain"
	apimw "github.com/hamed0406/portwatch/internal/httpapi/middleware"
	"github.com/hamed0406/portwatch/internal/repo"
)

// CycleRunner runs one monitoring cycle on demand.
type CycleRunner interface {
	RunOnce(ctx context.Context) (domain.Report, error)
}

type Server struct {
	Logger    *zap.Logger
	Reports   repo.ReportStore
	Cycles    CycleRunner
	Endpoints []domain.Endpoint
}

func NewServer(l *zap.Logger, reports repo.ReportStore, cycles CycleRunner, endpoints []domain.Endpoint) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Reports: reports, Cycles: cycles, Endpoints: endpoints}
}

type Options struct {
	Keys        apimw.Keys
	CORSOrigins []string // empty allows any origin
	PublicRPM   int
	PublicBurst int
}

func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	if len(opts.CORSOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(opts.PublicRPM, opts.PublicBurst))
		r.Use(apimw.RequireAny(opts.Keys))

		r.Get("/report", s.handleLatestReport)
		r.Get("/endpoints", s.handleEndpoints)
		r.With(apimw.RequireAdmin(opts.Keys)).Post("/cycles", s.handleRunCycle)
	})
	return r
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	if s.Reports == nil {
		apimw.WriteError(w, http.StatusNotFound, "no report yet")
		return
	}
	rep, err := s.Reports.Latest(r.Context())
	if err != nil {
		s.Logger.Warn("latest_report_error", zap.Error(err))
		apimw.WriteError(w, http.StatusInternalServerError, "report unavailable")
		return
	}
	if rep == nil {
		apimw.WriteError(w, http.StatusNotFound, "no report yet")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	eps := s.Endpoints
	if eps == nil {
		eps = []domain.Endpoint{}
	}
	writeJSON(w, http.StatusOK, eps)
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	if s.Cycles == nil {
		apimw.WriteError(w, http.StatusServiceUnavailable, "cycles disabled")
		return
	}
	rep, err := s.Cycles.RunOnce(r.Context())
	if err != nil {
		s.Logger.Warn("manual_cycle_error", zap.Error(err))
		apimw.WriteError(w, http.StatusInternalServerError, "cycle failed")
		return
	}
	s.Logger.Info("manual_cycle",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.Int("down", rep.Count(domain.StatusDown)),
	)
	writeJSON(w, http.StatusOK, rep)
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
			zap.Duration("took", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

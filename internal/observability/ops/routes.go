package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"nightbot/internal/task/engine"
	"nightbot/internal/task/scheduler"
)

// Handler builds the router. /healthz is public; everything else requires
// the token when one is configured.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.cfg.Token))
		r.Get("/readyz", s.handleReady)
		if s.deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
		}
		r.Get("/jobs", s.handleJobs)
		if s.cfg.Pprof {
			r.Route("/debug/pprof", func(r chi.Router) {
				r.Get("/", hpprof.Index)
				r.Get("/cmdline", hpprof.Cmdline)
				r.Get("/profile", hpprof.Profile)
				r.Get("/symbol", hpprof.Symbol)
				r.Post("/symbol", hpprof.Symbol)
				r.Get("/trace", hpprof.Trace)
				r.Get("/{name}", hpprof.Index)
			})
		}
	})
	return r
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	if s.deps.Check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := s.deps.Check(ctx)
		cancel()
		if err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ready"))
}

type jobsResponse struct {
	Jobs   []scheduler.JobInfo `json:"jobs"`
	Engine *engine.Snapshot    `json:"engine,omitempty"`
}

func (s *Service) handleJobs(w http.ResponseWriter, _ *http.Request) {
	resp := jobsResponse{Jobs: []scheduler.JobInfo{}}
	if s.deps.Jobs != nil {
		resp.Jobs = append(resp.Jobs, s.deps.Jobs.Jobs()...)
	}
	if s.deps.Engine != nil {
		snap := s.deps.Engine.Snapshot()
		resp.Engine = &snap
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

// authMiddleware accepts "Authorization: Bearer <token>" or ?token=<token>.
func authMiddleware(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				got, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(tok)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Package httpapi exposes the translation pipeline over HTTP. All
// endpoints speak a JSON envelope: {"success":true,"data":...} on success,
// {"success":false,"error":{"code","message"}} on failure.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/longdoc-translator/internal/service"
)

type Server struct {
	svc        *service.Service
	accessKeys map[string]bool

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithAccessKeys enables X-Access-Key authentication. With no keys
// configured, the API is open.
func WithAccessKeys(keys []string) Option {
	return func(s *Server) {
		for _, key := range keys {
			if key != "" {
				s.accessKeys[key] = true
			}
		}
	}
}

func NewServer(svc *service.Service, opts ...Option) *Server {
	s := &Server{
		svc:        svc,
		accessKeys: make(map[string]bool),
		mux:        http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/translate/background", s.auth(s.handleSubmit))
	s.mux.HandleFunc("/api/tasks", s.auth(s.handleListTasks))
	s.mux.HandleFunc("/api/tasks/stats", s.auth(s.handleStats))
	s.mux.HandleFunc("/api/tasks/", s.auth(s.handleTaskSubroutes))
}

// auth validates the X-Access-Key header when keys are configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.accessKeys) == 0 {
			next(w, r)
			return
		}
		key := r.Header.Get("X-Access-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing access key. Include X-Access-Key header.")
			return
		}
		if !s.accessKeys[key] {
			writeError(w, http.StatusForbidden, "INVALID_ACCESS_KEY", "Invalid access key.")
			return
		}
		next(w, r)
	}
}

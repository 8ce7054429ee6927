package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sstraus/tuicommander/internal/commandsurface"
	"github.com/sstraus/tuicommander/internal/config"
	"github.com/sstraus/tuicommander/internal/db"
	"github.com/sstraus/tuicommander/internal/events"
	"github.com/sstraus/tuicommander/internal/procinspect"
	"github.com/sstraus/tuicommander/internal/ptyengine"
	"github.com/sstraus/tuicommander/internal/streamauth"
)

// timeoutMiddleware applies timeout to all routes except streaming endpoints
func timeoutMiddleware(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip timeout for streaming routes (SSE, WebSocket)
			path := r.URL.Path
			if strings.HasPrefix(path, "/events") || strings.HasPrefix(path, "/ws/") {
				next.ServeHTTP(w, r)
				return
			}
			// Apply timeout to all other routes
			middleware.Timeout(timeout)(next).ServeHTTP(w, r)
		})
	}
}

type Server struct {
	cfg      *config.Config
	db       *db.DB
	router   *chi.Mux
	server   *http.Server
	eventBus *events.Bus

	// ptySessions is the session engine (SPEC_FULL.md §4.1-§4.6), exposed to
	// transports only through commandSurface.
	ptySessions    *ptyengine.Manager
	procInspector  *procinspect.Inspector
	commandSurface *commandsurface.Surface
	streamGate     *streamauth.Gate
	cfgWatcher     *config.Watcher
}

func New(cfg *config.Config, database *db.DB) (*Server, error) {
	eventBus, err := events.NewBus(cfg.Server.NatsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	log, _ := zap.NewProduction()
	if log == nil {
		log = zap.NewNop()
	}

	pollMs := cfg.PtyEngine.InspectorPollMs
	if pollMs <= 0 {
		pollMs = 3000
	}
	inspector := procinspect.New(time.Duration(pollMs)*time.Millisecond, log)
	go inspector.Run()

	ptyMgr := ptyengine.NewManager(inspector, log)

	requireTLS := !streamauth.IsLoopback(cfg.Server.Host)
	gate := streamauth.New(nil, requireTLS)

	cfgWatcher, err := config.WatchDataDirConfig(cfg, 250*time.Millisecond)
	if err != nil {
		log.Warn("ptyengine config watch disabled", zap.Error(err))
	}

	s := &Server{
		cfg:            cfg,
		db:             database,
		router:         chi.NewRouter(),
		eventBus:       eventBus,
		ptySessions:    ptyMgr,
		procInspector:  inspector,
		commandSurface: commandsurface.New(ptyMgr),
		streamGate:     gate,
		cfgWatcher:     cfgWatcher,
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	// Custom timeout middleware that excludes streaming routes
	s.router.Use(timeoutMiddleware(60 * time.Second))

	// Health check
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Session engine streaming transport (SPEC_FULL.md §4.6): WebSocket and
	// SSE share one ptyengine subscription fan-out via commandSurface, gated
	// by streamGate for non-loopback binds.
	s.router.Get("/ws/terminal/v2/{sessionID}", s.streamGate.Middleware(http.HandlerFunc(s.handleSessionWS)).ServeHTTP)
	s.router.Get("/events/sessions/{sessionID}", s.streamGate.Middleware(http.HandlerFunc(s.handleSessionSSE)).ServeHTTP)

	s.router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", s.apiSessionList)
		r.Post("/", s.apiSessionCreate)
		r.Get("/{sessionID}", s.apiSessionSnapshot)
		r.Post("/{sessionID}/write", s.apiSessionWrite)
		r.Post("/{sessionID}/resize", s.apiSessionResize)
		r.Post("/{sessionID}/pause", s.apiSessionPause)
		r.Post("/{sessionID}/resume", s.apiSessionResume)
		r.Delete("/{sessionID}", s.apiSessionClose)
	})
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	fmt.Printf("Server starting on http://%s\n", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfgWatcher != nil {
		s.cfgWatcher.Close()
	}
	if s.ptySessions != nil {
		s.ptySessions.CloseAll()
		s.ptySessions.Stop()
	}
	if s.procInspector != nil {
		s.procInspector.Stop()
	}
	if s.eventBus != nil {
		s.eventBus.Close()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) EventBus() *events.Bus {
	return s.eventBus
}

// ptyEngineConfig returns the live [ptyengine] config, picking up
// debounced data_dir/config.toml reloads when the watcher started
// successfully, and falling back to the config New() was built with
// otherwise.
func (s *Server) ptyEngineConfig() config.PtyEngineConfig {
	if s.cfgWatcher != nil {
		return s.cfgWatcher.Current().PtyEngine
	}
	return s.cfg.PtyEngine
}

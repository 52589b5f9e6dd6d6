package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adpilot/adpilot/internal/experiment"
	"github.com/adpilot/adpilot/internal/optimizer"
	"github.com/adpilot/adpilot/internal/store"
)

type Server struct {
	store     *store.SQLiteStore
	engine    *optimizer.Engine
	evaluator *experiment.Evaluator
	port      int
	apiKey    string
	router    *http.ServeMux
	startTime time.Time
	log       *zap.Logger
}

func New(s *store.SQLiteStore, engine *optimizer.Engine, evaluator *experiment.Evaluator, port int, apiKey string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		store:     s,
		engine:    engine,
		evaluator: evaluator,
		port:      port,
		apiKey:    apiKey,
		router:    http.NewServeMux(),
		startTime: time.Now(),
		log:       log,
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoint
	s.router.HandleFunc("/health", s.handleHealth)

	// API endpoints (protected when an API key is configured)
	s.router.Handle("/api/optimize", s.authMiddleware(http.HandlerFunc(s.handleOptimize)))
	s.router.Handle("/api/presets", s.authMiddleware(http.HandlerFunc(s.handlePresets)))
	s.router.Handle("/api/presets/", s.authMiddleware(http.HandlerFunc(s.handlePreset)))
	s.router.Handle("/api/abtests", s.authMiddleware(http.HandlerFunc(s.handleTests)))
	s.router.Handle("/api/abtests/", s.authMiddleware(http.HandlerFunc(s.handleTest)))
	s.router.Handle("/api/runs", s.authMiddleware(http.HandlerFunc(s.handleRuns)))
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("server listening", zap.Int("port", s.port))
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

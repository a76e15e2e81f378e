package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/engine"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config represents HTTP API configuration
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Templates is the form pre-fill data served to clients
type Templates struct {
	Departments []string            `json:"departments"`
	Patterns    []model.PatternForm `json:"patterns"`
}

// Server exposes the engine's query and command surfaces over HTTP
type Server struct {
	engine    *engine.Engine
	templates Templates
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
	router    *mux.Router
	http      *http.Server
}

// NewServer creates a new API server
func NewServer(cfg Config, eng *engine.Engine, templates Templates, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine:    eng,
		templates: templates,
		gatherer:  gatherer,
		logger:    logger,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()

	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	s.router.HandleFunc("/summary", s.handleSummary).Methods("GET")
	s.router.HandleFunc("/templates", s.handleTemplates).Methods("GET")

	s.router.HandleFunc("/entities", s.handleListEntities).Methods("GET")
	s.router.HandleFunc("/entities", s.handleAddEntity).Methods("POST")
	s.router.HandleFunc("/entities/{id}", s.handleGetEntity).Methods("GET")
	s.router.HandleFunc("/entities/{id}/trends", s.handleGetTrends).Methods("GET")
	s.router.HandleFunc("/entities/{id}/patterns", s.handleAddPattern).Methods("POST")
	s.router.HandleFunc("/entities/{id}/score", s.handleUpdateScore).Methods("POST")

	s.router.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	s.router.HandleFunc("/alerts/{id}/ack", s.handleAcknowledge).Methods("POST")

	s.router.HandleFunc("/rules", s.handleListRules).Methods("GET")
	s.router.HandleFunc("/rules", s.handleAddRule).Methods("POST")
	s.router.HandleFunc("/rules/{id}", s.handleUpdateRule).Methods("PUT")
	s.router.HandleFunc("/rules/{id}", s.handleDeleteRule).Methods("DELETE")
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens in the background until Shutdown is called
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting API server", zap.String("address", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type idResponse struct {
	ID string `json:"id"`
}

type appliedResponse struct {
	Applied bool `json:"applied"`
}

type scoreRequest struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now(),
		"engine_running": s.engine.Running(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.engine.Summary())
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.templates)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.engine.Entities())
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.engine.Entity(mux.Vars(r)["id"])
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "Entity not found")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, entity)
}

func (s *Server) handleGetTrends(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.engine.Trends(mux.Vars(r)["id"]))
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var form model.EntityForm
	if !s.decode(w, r, &form) {
		return
	}

	id, err := s.engine.AddEntity(form)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	var form model.PatternForm
	if !s.decode(w, r, &form) {
		return
	}

	id, err := s.engine.AddPattern(mux.Vars(r)["id"], form)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, idResponse{ID: id})
}

func (s *Server) handleUpdateScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !s.decode(w, r, &req) {
		return
	}

	applied, err := s.engine.UpdateRiskScore(mux.Vars(r)["id"], req.Score, req.Reason)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, appliedResponse{Applied: applied})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.engine.Alerts())
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	applied := s.engine.AcknowledgeAlert(mux.Vars(r)["id"])
	s.writeJSONResponse(w, http.StatusOK, appliedResponse{Applied: applied})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.engine.Rules())
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule model.RiskRule
	if !s.decode(w, r, &rule) {
		return
	}

	id, err := s.engine.AddRule(rule)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule model.RiskRule
	if !s.decode(w, r, &rule) {
		return
	}
	rule.ID = mux.Vars(r)["id"]

	applied, err := s.engine.UpdateRule(rule)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, appliedResponse{Applied: applied})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	applied := s.engine.DeleteRule(mux.Vars(r)["id"])
	s.writeJSONResponse(w, http.StatusOK, appliedResponse{Applied: applied})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON request body")
		return false
	}
	return true
}

func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrValidation) {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("Command failed", zap.Error(err))
	s.writeErrorResponse(w, http.StatusInternalServerError, "Internal error")
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSONResponse(w, status, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now(),
	})
}

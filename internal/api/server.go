package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"alertagent/internal/agent"
	"alertagent/internal/alert"
	"alertagent/internal/config"
	"alertagent/internal/history"
	"alertagent/internal/llm"
	"alertagent/internal/metrics"
	"alertagent/internal/pipeline"
	"alertagent/internal/tools"
)

// Pipeline is the part of *pipeline.Pipeline the API drives.
type Pipeline interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*alert.ProcessingResult, error)
	Health(ctx context.Context) alert.HealthCheck
	History() history.Store
	Running() bool
}

// Scheduler reports the next scheduled run.
type Scheduler interface {
	NextRun() time.Time
	Spec() string
}

// Assistant answers questions with agent profiles.
type Assistant interface {
	Ask(ctx context.Context, profile, question string, approved bool) (*agent.Result, error)
	Profiles() []agent.Profile
}

// Server is the REST API server
type Server struct {
	pipeline     Pipeline
	scheduler    Scheduler      // nil when the scheduler is not running
	toolRouter   *tools.Router  // Unified tool router
	assistant    Assistant      // nil when no LLM is configured
	alertHandler *alert.Handler // nil when alert webhook is not configured
	llmRouter    *llm.Router    // nil when LLM is not configured (e.g. mock-only mode)
	addr         string
	started      time.Time
	log          logr.Logger

	// base outlives single requests and bounds asynchronous runs.
	base context.Context
}

// NewServer creates a new API server
func NewServer(p Pipeline, toolRouter *tools.Router, addr string, log logr.Logger) *Server {
	return &Server{
		pipeline:   p,
		toolRouter: toolRouter,
		addr:       addr,
		started:    time.Now(),
		log:        log.WithName("api"),
		base:       context.Background(),
	}
}

// WithLLMRouter attaches an LLM router to the server, enabling the /api/v1/llm/ping endpoint.
func (s *Server) WithLLMRouter(r *llm.Router) *Server {
	s.llmRouter = r
	return s
}

// WithAlertHandler attaches an alert webhook handler to the server.
// When set, POST /api/v1/alerts/webhook is registered as a route.
func (s *Server) WithAlertHandler(h *alert.Handler) *Server {
	s.alertHandler = h
	return s
}

// WithScheduler adds the next run time to /api/v1/status.
func (s *Server) WithScheduler(sch Scheduler) *Server {
	s.scheduler = sch
	return s
}

// WithAssistant enables the agent endpoints.
func (s *Server) WithAssistant(a Assistant) *Server {
	s.assistant = a
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))

	// Health check
	r.HandleFunc("/healthz", s.healthz).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API Routes
	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/status", s.status).Methods("GET")
	v1.HandleFunc("/runs", s.listRuns).Methods("GET")
	v1.HandleFunc("/runs", s.triggerRun).Methods("POST")

	// Alert webhook
	if s.alertHandler != nil {
		v1.HandleFunc("/alerts/webhook", s.alertHandler.ServeWebhook).Methods("POST")
	}

	v1.HandleFunc("/tools", s.listTools).Methods("GET")
	v1.HandleFunc("/agents", s.listAgents).Methods("GET")
	v1.HandleFunc("/agents/{name}/ask", s.ask).Methods("POST")

	// LLM connectivity test
	v1.HandleFunc("/llm/ping", s.pingLLM).Methods("POST")

	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.base = ctx
	s.log.Info("listening", "address", s.addr)
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// --- Handlers ---

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") != "true" || s.pipeline == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	hc := s.pipeline.Health(r.Context())
	hc.UptimeSeconds = time.Since(s.started).Seconds()
	code := http.StatusOK
	if hc.Status == alert.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, hc)
}

type statusResponse struct {
	Version  string                  `json:"version"`
	Running  bool                    `json:"running"`
	Schedule string                  `json:"schedule,omitempty"`
	NextRun  *time.Time              `json:"next_run,omitempty"`
	LastRun  *alert.ProcessingResult `json:"last_run,omitempty"`
	Health   alert.HealthCheck       `json:"health"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version: config.AppVersion,
		Running: s.pipeline.Running(),
		Health:  s.pipeline.Health(r.Context()),
	}
	if s.scheduler != nil {
		next := s.scheduler.NextRun()
		resp.Schedule = s.scheduler.Spec()
		resp.NextRun = &next
	}

	last, err := s.pipeline.History().Last(r.Context())
	switch {
	case err == nil:
		resp.LastRun = last
	case !errors.Is(err, history.ErrNotFound):
		s.log.Error(err, "failed to read last run")
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.pipeline.History().List(r.Context(), limit)
	if err != nil {
		s.log.Error(err, "failed to list runs")
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []alert.ProcessingResult{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": runs,
		"total": len(runs),
	})
}

type runRequest struct {
	DryRun        bool `json:"dry_run"`
	Force         bool `json:"force"`
	LookbackHours int  `json:"lookback_hours"`
	// Wait blocks until the run finishes and returns its result.
	Wait bool `json:"wait"`
}

// triggerRun starts a digest run.
//
// POST /api/v1/runs {"dry_run": true, "force": false, "lookback_hours": 24, "wait": false}
//
// Without wait the run continues in the background and 202 is returned.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.LookbackHours < 0 || req.LookbackHours > 168 {
		respondError(w, http.StatusBadRequest, "lookback_hours must be between 1 and 168")
		return
	}
	if s.pipeline.Running() {
		respondError(w, http.StatusConflict, pipeline.ErrAlreadyRunning.Error())
		return
	}

	opts := pipeline.RunOptions{DryRun: req.DryRun, Force: req.Force, LookbackHours: req.LookbackHours}

	if !req.Wait {
		go func() {
			if _, err := s.pipeline.Run(s.base, opts); err != nil {
				s.log.Error(err, "triggered run failed")
			}
		}()
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	result, err := s.pipeline.Run(r.Context(), opts)
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	// A failed run still has a result worth returning.
	code := http.StatusOK
	if err != nil {
		code = http.StatusInternalServerError
	}
	respondJSON(w, code, result)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	var available []agent.Tool
	if s.toolRouter != nil {
		var err error
		available, err = s.toolRouter.ListTools(r.Context())
		if err != nil {
			s.log.Error(err, "failed to list tools")
			respondError(w, http.StatusInternalServerError, "failed to list tools")
			return
		}
	}
	infos := tools.Describe(available)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": infos,
		"total": len(infos),
	})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"items": []interface{}{}, "total": 0})
		return
	}
	profiles := s.assistant.Profiles()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": profiles,
		"total": len(profiles),
	})
}

type askRequest struct {
	Question string `json:"question"`
	Approved bool   `json:"approved"`
}

// ask runs one question against a profile. The name "auto" picks the
// profile from the question.
func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		respondError(w, http.StatusServiceUnavailable, "LLM provider not configured")
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		respondError(w, http.StatusBadRequest, "body must be {\"question\": \"...\"}")
		return
	}

	name := mux.Vars(r)["name"]
	if name == "auto" {
		name = ""
	}

	result, err := s.assistant.Ask(r.Context(), name, req.Question, req.Approved)
	var waiting *agent.ErrWaitingForApproval
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, result)
	case errors.Is(err, agent.ErrUnknownProfile):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &waiting):
		respondJSON(w, http.StatusAccepted, map[string]string{
			"status": "waiting_for_approval",
			"tool":   waiting.ToolName,
		})
	default:
		s.log.Error(err, "agent run failed", "profile", name)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// pingLLM tests connectivity to the configured LLM provider.
//
// POST /api/v1/llm/ping
//
// Request body (optional JSON):
//
//	{"provider": "gemini"}   // omit to test the default provider
//
// Response:
//
//	{"provider":"openrouter","status":"ok","latency_ms":342}
//	{"provider":"openrouter","status":"error","error":"401 Unauthorized"}
func (s *Server) pingLLM(w http.ResponseWriter, r *http.Request) {
	if s.llmRouter == nil {
		respondError(w, http.StatusServiceUnavailable, "LLM provider not configured")
		return
	}

	var req struct {
		Provider string `json:"provider"`
	}
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	name := req.Provider
	if name == "" {
		name = s.llmRouter.DefaultProvider()
	}
	provider, ok := s.llmRouter.Provider(name)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown provider "+name)
		return
	}

	// Fixed timeout so the check cannot hang.
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	start := time.Now()
	_, err := provider.Chat(ctx, []agent.Message{
		{
			Type:    agent.MessageTypeUser,
			Content: "Reply with 'pong' only.",
		},
	}, nil)
	latencyMs := time.Since(start).Milliseconds()

	type pingResponse struct {
		Provider  string `json:"provider"`
		Status    string `json:"status"`
		LatencyMs int64  `json:"latency_ms"`
		Error     string `json:"error,omitempty"`
	}

	resp := pingResponse{
		Provider:  name,
		LatencyMs: latencyMs,
	}

	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		respondJSON(w, http.StatusOK, resp) // return 200 with error body, not 5xx
		return
	}

	resp.Status = "ok"
	respondJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func loggingMiddleware(log logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.V(1).Info("request",
				"method", r.Method,
				"uri", r.RequestURI,
				"duration", time.Since(start),
			)
		})
	}
}

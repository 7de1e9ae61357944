package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/config"
	"github.com/jeffnawroth/source-taster/internal/matching"
	"github.com/jeffnawroth/source-taster/internal/model"
	"github.com/jeffnawroth/source-taster/internal/report"
	"github.com/jeffnawroth/source-taster/internal/source"
	"github.com/jeffnawroth/source-taster/internal/verify"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the matching and verification HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		overrides, _ := cmd.Flags().GetStringArray("source")
		env, err := initSources(ctx, cfg, overrides)
		if err != nil {
			return err
		}
		defer env.Close()

		api := newAPIServer(ctx, cfg, env.Providers(cfg.Verify.Sources))
		defer api.cancel()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(api, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Strings("sources", env.Registry.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringArray("source", nil, "fixture source as name=path (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer holds the state behind the HTTP handlers. Each verify request
// gets its own orchestrator so that it can carry its own settings; starting
// one cancels the run before it.
type apiServer struct {
	ctx       context.Context
	base      *config.Config
	providers []source.Provider

	mu        sync.Mutex
	orch      *verify.Orchestrator
	threshold int
}

func newAPIServer(ctx context.Context, c *config.Config, providers []source.Provider) *apiServer {
	return &apiServer{
		ctx:       ctx,
		base:      c,
		providers: providers,
		threshold: c.Verify.EarlyTermination.Threshold,
	}
}

func (s *apiServer) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orch != nil {
		s.orch.Cancel()
	}
}

// buildRouter wires the API routes. origins configures CORS; empty allows
// none.
func buildRouter(s *apiServer, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/settings", s.handleSettings)
		r.Post("/match", s.handleMatch)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/evaluate/batch", s.handleEvaluateBatch)
		r.Post("/verify", s.handleStartVerify)
		r.Get("/verify", s.handleVerifyStatus)
		r.Delete("/verify", s.handleCancelVerify)
	})

	return r
}

// settingsFor fills in anything req leaves out from the server defaults and
// validates the result.
func (s *apiServer) settingsFor(req *matching.Settings) (matching.Settings, error) {
	if req == nil {
		return s.base.Matching, nil
	}
	out := *req
	if len(out.Fields) == 0 {
		out.Fields = s.base.Matching.Fields
	}
	if out.Rules == nil {
		out.Rules = s.base.Matching.Rules
	}
	if out.Locale == "" {
		out.Locale = s.base.Matching.Locale
	}
	if err := config.ValidateSettings(out); err != nil {
		return matching.Settings{}, err
	}
	return out, nil
}

func (s *apiServer) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"matching": s.base.Matching,
		"early_termination": map[string]any{
			"enabled":   s.base.Verify.EarlyTermination.Enabled,
			"threshold": s.base.Verify.EarlyTermination.Threshold,
		},
		"failure_policy": s.base.Verify.FailurePolicy,
		"sources":        providerNames(s.providers),
	})
}

type matchRequest struct {
	Reference model.Reference    `json:"reference"`
	Candidate model.Candidate    `json:"candidate"`
	Settings  *matching.Settings `json:"settings,omitempty"`
}

func (s *apiServer) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	settings, err := s.settingsFor(req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matching.EvaluateSingleCandidate(req.Reference, req.Candidate, settings))
}

type evaluateRequest struct {
	Reference  model.Reference    `json:"reference"`
	Candidates []model.Candidate  `json:"candidates"`
	Settings   *matching.Settings `json:"settings,omitempty"`
}

func (s *apiServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	settings, err := s.settingsFor(req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}
	results := matching.EvaluateAllCandidates(req.Reference, req.Candidates, settings)
	resp := map[string]any{"reference_id": req.Reference.ID, "results": results}
	if best, ok := matching.Best(results); ok {
		resp["best"] = best
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Items    []matching.BatchItem `json:"items"`
	Settings *matching.Settings   `json:"settings,omitempty"`
}

func (s *apiServer) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	settings, err := s.settingsFor(req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := matching.EvaluateBatch(r.Context(), req.Items, settings, s.base.Batch.Concurrency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type verifyRequest struct {
	References       []model.Reference  `json:"references"`
	Settings         *matching.Settings `json:"settings,omitempty"`
	EarlyTermination *struct {
		Enabled   bool `json:"enabled"`
		Threshold *int `json:"threshold,omitempty"`
	} `json:"early_termination,omitempty"`
	FailurePolicy string `json:"failure_policy,omitempty"`
}

func (s *apiServer) handleStartVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.References) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "references are required"})
		return
	}
	if len(s.providers) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no sources configured"})
		return
	}

	settings, err := s.settingsFor(req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}

	c := *s.base
	c.Matching = settings
	if req.EarlyTermination != nil {
		c.Verify.EarlyTermination.Enabled = req.EarlyTermination.Enabled
		if req.EarlyTermination.Threshold != nil {
			c.Verify.EarlyTermination.Threshold = *req.EarlyTermination.Threshold
		}
	}
	if req.FailurePolicy != "" {
		c.Verify.FailurePolicy = req.FailurePolicy
	}
	if err := c.Validate("verify"); err != nil {
		writeError(w, err)
		return
	}
	opts, err := verifyOptions(&c)
	if err != nil {
		writeError(w, err)
		return
	}

	orch := verify.New(s.providers, opts...)

	s.mu.Lock()
	if s.orch != nil {
		s.orch.Cancel()
	}
	s.orch = orch
	s.threshold = c.Verify.EarlyTermination.Threshold
	s.mu.Unlock()

	// The run outlives the request; it stops with the server or the next run.
	runID, done := orch.Start(s.ctx, req.References)
	go func() {
		if err := <-done; err != nil {
			zap.L().Warn("verify run failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		zap.L().Info("verify run finished", zap.String("run_id", runID))
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "accepted",
		"run_id":     runID,
		"references": len(req.References),
	})
}

func (s *apiServer) handleVerifyStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	orch, threshold := s.orch, s.threshold
	s.mu.Unlock()

	if orch == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no verification run"})
		return
	}
	states := orch.States()
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  orch.RunID(),
		"states":  states,
		"summary": report.Summarize(states, threshold),
	})
}

func (s *apiServer) handleCancelVerify(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	orch := s.orch
	s.mu.Unlock()

	if orch == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no verification run"})
		return
	}
	orch.Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "run_id": orch.RunID()})
}

func providerNames(ps []source.Provider) []string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name())
	}
	return names
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps validation problems to 400 and everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid settings", "problems": verr.Problems})
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

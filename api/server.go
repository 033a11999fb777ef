// Package api provides the HTTP server for the Finanzas SD core: taxonomy
// resolution, baseline materialization, baseline-scoped queries and forecast
// grids.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"finanzas-sd/db"
	"finanzas-sd/db/clickhouse"
	"finanzas-sd/internal/forecast"
	"finanzas-sd/internal/materialize"
	"finanzas-sd/internal/project"
	"finanzas-sd/internal/query"
	"finanzas-sd/internal/rubro"
	"finanzas-sd/internal/taxonomy"
	apictl "finanzas-sd/pkg/api"
	finerr "finanzas-sd/pkg/errors"
	"finanzas-sd/pkg/platform"
)

// Config holds server configuration.
type Config struct {
	Port           int
	Environment    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxRequestSize int64
	DefaultMonths  int
	MaxMonths      int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		RequestTimeout: 60 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
		DefaultMonths:  12,
		MaxMonths:      120,
	}
}

// Server is the HTTP API server.
type Server struct {
	httpServer   *http.Server
	store        db.Store
	catalog      *taxonomy.Catalog
	materializer *materialize.Engine
	rubros       *query.Service
	projects     *project.Service
	allocations  *clickhouse.Store // optional; nil leaves actuals at zero
	config       *Config
	log          zerolog.Logger
}

// NewServer wires the core engines behind the HTTP surface.
func NewServer(store db.Store, catalog *taxonomy.Catalog, matCfg materialize.Config, config *Config, log zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		store:        store,
		catalog:      catalog,
		materializer: materialize.NewEngine(store, catalog, matCfg, log),
		rubros:       query.NewService(store, log),
		projects:     project.NewService(store, log),
		config:       config,
		log:          log,
	}
}

// WithAllocations adds the recorded-actuals store used by forecast responses.
func (s *Server) WithAllocations(store *clickhouse.Store) *Server {
	s.allocations = store
	return s
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(platform.RequireRole())
			r.Get("/taxonomy", s.handleTaxonomy)
			r.Get("/taxonomy/resolve", s.handleResolve)
			r.Get("/projects/{projectID}/rubros", s.handleRubros)
			r.Get("/projects/{projectID}/forecast", s.handleForecast)
		})
		r.Group(func(r chi.Router) {
			r.Use(platform.RequireRole(platform.RoleAdmin, platform.RoleFinance, platform.RolePM))
			r.Post("/projects/{projectID}/baselines/{baselineID}/materialize", s.handleMaterialize)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.log.Info().Int("port", s.config.Port).Msg("finanzas API server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains on SIGINT/SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.log.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":           "healthy",
		"taxonomy_version": s.catalog.Version(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.allocations != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.allocations.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "allocations store not ready", finerr.CodeStoreUnavailable, "")
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	entries := s.catalog.Entries()
	resp := apictl.TaxonomyResponse{
		Version:    s.catalog.Version(),
		Categories: s.catalog.Categories(),
		Entries:    make([]apictl.TaxonomyEntryResponse, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = apictl.TaxonomyEntryResponse{
			Code:            e.Code,
			Category:        e.CategoryCode,
			Name:            e.Name,
			Description:     e.Description,
			ExecutionType:   string(e.ExecutionType),
			CostType:        string(e.CostType),
			ReferenceSource: e.ReferenceSource,
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, finerr.NewValidation("query parameter id is required", ""))
		return
	}
	canonical, err := s.catalog.ResolveCanonical(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, apictl.ResolveResponse{Input: id, Canonical: canonical})
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	baselineID := chi.URLParam(r, "baselineID")

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	var req apictl.MaterializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, finerr.NewValidation(fmt.Sprintf("invalid request body: %v", err), projectID))
		return
	}

	lines, err := parseLines(req.Lines)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx := r.Context()
	if _, err := s.projects.Register(ctx, projectID); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.projects.AcceptBaseline(ctx, projectID, baselineID); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.materializer.Materialize(ctx, projectID, materialize.Baseline{
		BaselineID: baselineID,
		ProjectID:  projectID,
		AcceptedAt: time.Now().UTC(),
		Lines:      lines,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := apictl.MaterializeResponse{
		ProjectID:     projectID,
		BaselineID:    baselineID,
		Skipped:       result.Skipped,
		RubroCount:    len(result.Rubros),
		LinesSkipped:  result.LinesSkipped,
		FallbackCount: result.FallbackCount,
		Rubros:        rubroResponses(result.Rubros),
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleRubros(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	baselineID := r.URL.Query().Get("baseline")

	rubros, err := s.rubros.ProjectRubros(r.Context(), projectID, baselineID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, apictl.RubrosResponse{
		ProjectID:  projectID,
		BaselineID: baselineID,
		Rubros:     rubroResponses(rubros),
	})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	baselineID := r.URL.Query().Get("baseline")

	months := s.config.DefaultMonths
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := parsePositiveInt(raw)
		if err != nil || n > s.config.MaxMonths {
			s.writeError(w, finerr.NewValidation(
				fmt.Sprintf("months must be an integer in [1,%d]", s.config.MaxMonths), projectID))
			return
		}
		months = n
	}

	ctx := r.Context()
	if baselineID == "" {
		head, err := s.projects.Get(ctx, projectID)
		if err != nil && !finerr.IsNotFound(err) {
			s.writeError(w, err)
			return
		}
		if err == nil {
			baselineID = head.ActiveBaselineID
		}
	}

	rubros, err := s.rubros.ProjectRubros(ctx, projectID, baselineID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	cells := forecast.Grid(rubros, months)
	if s.allocations != nil && baselineID != "" {
		allocations, err := s.allocations.ActualsFor(ctx, projectID, baselineID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		actuals := make([]forecast.Actual, len(allocations))
		for i, a := range allocations {
			actuals[i] = forecast.Actual{
				LineItemID: a.LineItemID,
				Month:      int(a.Month),
				Amount:     a.Amount,
			}
		}
		cells = forecast.MergeActuals(cells, actuals)
	}

	resp := apictl.ForecastResponse{
		ProjectID:  projectID,
		BaselineID: baselineID,
		Months:     months,
		Cells:      make([]apictl.ForecastCellResponse, len(cells)),
	}
	for i, c := range cells {
		resp.Cells[i] = apictl.ForecastCellResponse{
			LineItemID: c.LineItemID,
			Month:      c.Month,
			Planned:    c.Planned.StringFixed(2),
			Forecast:   c.Forecast.StringFixed(2),
			Actual:     c.Actual.StringFixed(2),
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func parseLines(reqs []apictl.EstimateLineRequest) ([]materialize.EstimateLine, error) {
	lines := make([]materialize.EstimateLine, len(reqs))
	for i, lr := range reqs {
		qty, err := decimal.NewFromString(lr.Quantity)
		if err != nil {
			return nil, finerr.NewValidation(fmt.Sprintf("line %d: malformed quantity", i), lr.RawID)
		}
		cost, err := decimal.NewFromString(lr.UnitCost)
		if err != nil {
			return nil, finerr.NewValidation(fmt.Sprintf("line %d: malformed unit cost", i), lr.RawID)
		}
		lines[i] = materialize.EstimateLine{
			RawID:       lr.RawID,
			Description: lr.Description,
			Quantity:    qty,
			UnitCost:    cost,
			Currency:    lr.Currency,
			Recurring:   lr.Recurring,
			StartMonth:  lr.StartMonth,
			EndMonth:    lr.EndMonth,
		}
	}
	return lines, nil
}

func rubroResponses(rubros []rubro.Rubro) []apictl.RubroResponse {
	out := make([]apictl.RubroResponse, len(rubros))
	for i, r := range rubros {
		out[i] = apictl.RubroResponse{
			RubroID:       r.RubroID,
			CanonicalCode: r.CanonicalCode,
			ProjectID:     r.ProjectID,
			BaselineID:    r.BaselineID,
			Description:   r.Description,
			Quantity:      r.Quantity.String(),
			UnitCost:      r.UnitCost.StringFixed(2),
			TotalCost:     r.TotalCost.StringFixed(2),
			Currency:      r.Currency,
			Recurring:     r.Recurring,
			StartMonth:    r.StartMonth,
			EndMonth:      r.EndMonth,
		}
	}
	return out
}

func parsePositiveInt(raw string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("not positive")
	}
	return n, nil
}

// writeError maps core failures to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch finerr.CodeOf(err) {
	case finerr.CodeNotFound:
		s.jsonError(w, http.StatusNotFound, err.Error(), finerr.CodeNotFound, "")
	case finerr.CodeValidation:
		s.jsonError(w, http.StatusBadRequest, err.Error(), finerr.CodeValidation, "")
	case finerr.CodeCollision:
		s.jsonError(w, http.StatusConflict, err.Error(), finerr.CodeCollision,
			"a concurrent materialization wrote this baseline first; re-query the baseline or retry with a new baseline identifier")
	case finerr.CodeStoreUnavailable:
		s.jsonError(w, http.StatusServiceUnavailable, "backing store unavailable, retry later", finerr.CodeStoreUnavailable, "")
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			s.jsonError(w, http.StatusGatewayTimeout, "request timed out", "", "")
			return
		}
		s.jsonError(w, http.StatusInternalServerError, err.Error(), "", "")
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message, code, remediation string) {
	s.jsonResponse(w, status, apictl.ErrorResponse{
		Error:       message,
		Code:        code,
		Remediation: remediation,
	})
}

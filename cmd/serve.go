package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/income"
	"github.com/sells-group/lmi-check/internal/lmi"
	"github.com/sells-group/lmi-check/internal/model"
	"github.com/sells-group/lmi-check/internal/monitoring"
	"github.com/sells-group/lmi-check/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the LMI eligibility HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve", prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(env.Monitor, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(env, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// checkRequest is the POST /api/lmi/check body.
type checkRequest struct {
	Address                string `json:"address"`
	Place                  string `json:"place"`
	SearchType             string `json:"searchType"`
	Level                  string `json:"level"`
	UseAlternateDataSource bool   `json:"useAlternateDataSource"`
}

// query returns the text to resolve and the resolver options for the request.
func (req checkRequest) query() (string, lmi.Options, error) {
	st, err := parseSearchType(req.SearchType)
	if err != nil {
		return "", lmi.Options{}, err
	}
	lvl, err := parseLevel(req.Level)
	if err != nil {
		return "", lmi.Options{}, err
	}

	q := strings.TrimSpace(req.Address)
	if place := strings.TrimSpace(req.Place); place != "" && (st == model.SearchPlace || q == "") {
		q = place
		if req.SearchType == "" {
			st = model.SearchPlace
		}
	}

	return q, lmi.Options{
		UseAlternateDataSource: req.UseAlternateDataSource,
		SearchType:             st,
		Level:                  lvl,
	}, nil
}

// buildRouter wires the HTTP API onto a chi router.
func buildRouter(env *appEnv, corsOrigins []string) http.Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(env.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", env.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/lmi/check", env.handleCheck)
		r.Get("/lmi/checks", env.handleListChecks)
		r.Get("/lmi/feature", env.handleFeature)
		r.Get("/tracts/{geoid}/income", env.handleTractIncome)
		r.Get("/tracts/{geoid}/feature", env.handleTractFeature)
		r.Get("/cache/stats", env.handleCacheStats)
		r.Get("/monitoring/snapshot", env.handleSnapshot)
	})

	return r
}

func (e *appEnv) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q, opts, err := req.query()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := e.Resolver.Resolve(r.Context(), q, opts)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	rec := &model.CheckRecord{
		ID:        uuid.NewString(),
		Query:     res.Query(),
		Result:    *res,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.Store.SaveCheck(r.Context(), rec); err != nil {
		zap.L().Warn("serve: save check failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, res)
}

func (e *appEnv) handleListChecks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CheckFilter{TractID: q.Get("tract_id")}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	checks, err := e.Store.ListChecks(r.Context(), filter)
	if err != nil {
		zap.L().Error("serve: list checks failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list checks failed")
		return
	}
	if checks == nil {
		checks = []model.CheckRecord{}
	}
	writeJSON(w, http.StatusOK, checks)
}

func (e *appEnv) handleFeature(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	alt, _ := strconv.ParseBool(q.Get("alt"))
	req := checkRequest{
		Address:                q.Get("q"),
		SearchType:             q.Get("searchType"),
		Level:                  q.Get("level"),
		UseAlternateDataSource: alt,
	}
	query, opts, err := req.query()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := e.Resolver.Resolve(r.Context(), query, opts)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	writeJSON(w, http.StatusOK, lmi.Feature(res))
}

func (e *appEnv) handleTractIncome(w http.ResponseWriter, r *http.Request) {
	cl, ok := e.classify(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cl)
}

func (e *appEnv) handleTractFeature(w http.ResponseWriter, r *http.Request) {
	if e.Tracts == nil {
		writeError(w, http.StatusNotFound, "no tract boundaries loaded")
		return
	}
	cl, ok := e.classify(w, r)
	if !ok {
		return
	}
	f, err := lmi.TractFeature(e.Tracts, cl)
	if err != nil {
		if errors.Is(err, lmi.ErrTractNotFound) {
			writeError(w, http.StatusNotFound, "tract boundary not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "render tract failed")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	writeJSON(w, http.StatusOK, f)
}

// classify answers the {geoid} path parameter, writing the error response
// itself when it fails.
func (e *appEnv) classify(w http.ResponseWriter, r *http.Request) (*income.Classification, bool) {
	cl, err := e.Classifier.Classify(r.Context(), chi.URLParam(r, "geoid"))
	if err != nil {
		if errors.Is(err, income.ErrInvalidTract) {
			writeError(w, http.StatusBadRequest, "geoid must be an 11-digit tract id")
			return nil, false
		}
		zap.L().Error("serve: classify failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "classification failed")
		return nil, false
	}
	return cl, true
}

func (e *appEnv) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	tracts, err := e.Store.TractStats(r.Context())
	if err != nil {
		zap.L().Error("serve: tract stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "tract stats failed")
		return
	}

	breakers := make(map[string]string)
	for name, state := range e.Breakers.States() {
		breakers[name] = state.String()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"responses": e.Geocoder.CacheStats(),
		"tracts":    tracts,
		"breakers":  breakers,
	})
}

func (e *appEnv) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	hours := cfg.Monitoring.LookbackWindowHours
	if v, err := strconv.Atoi(r.URL.Query().Get("hours")); err == nil && v > 0 {
		hours = v
	}
	if hours <= 0 {
		hours = 24
	}

	snap, err := e.Monitor.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("serve: collect snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lmi.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "address or place is required")
	case errors.Is(err, lmi.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "eligibility data unavailable")
	default:
		zap.L().Error("serve: resolve failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "resolve failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

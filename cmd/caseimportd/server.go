package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ruslano69/caseimport/pkg/core/schema"
	"github.com/ruslano69/caseimport/pkg/deploy"
	"github.com/ruslano69/caseimport/pkg/pipeline"
	"github.com/ruslano69/caseimport/pkg/progress"
	"github.com/ruslano69/caseimport/pkg/sink"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caseimport_runs_started_total",
		Help: "Import runs created",
	})
	validationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caseimport_validation_seconds",
		Help:    "Wall-clock validation duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	rowsDeployed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caseimport_rows_deployed_total",
		Help: "Rows committed to the sink",
	})
	deploysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseimport_deploys_total",
		Help: "Deployment outcomes by status",
	}, []string{"status"})
)

// run — один прогон импорта на сервере
type run struct {
	id       string
	pipeline *pipeline.Pipeline

	// mu охраняет estimate и lastErr: их пишет запрос валидации,
	// читает запрос прогресса
	mu       sync.Mutex
	estimate time.Duration
	lastErr  string
}

type server struct {
	cfg *DaemonConfig
	log zerolog.Logger

	mu     sync.Mutex
	nextID int
	runs   map[string]*run
}

func newServer(cfg *DaemonConfig, log zerolog.Logger) *server {
	return &server{cfg: cfg, log: log, runs: make(map[string]*run)}
}

func (s *server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/progress", s.handleProgress)
			r.Post("/validate", s.handleValidate)
			r.Post("/deploy", s.handleDeploy)
		})
	})
	return r
}

func runServer(cfg *DaemonConfig, log zerolog.Logger) error {
	s := newServer(cfg, log)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("listening")
	return http.ListenAndServe(addr, s.router())
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "name": s.cfg.Server.Name})
}

type createRunRequest struct {
	// File — имя файла внутри upload_dir
	File string `json:"file"`
}

func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.File == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"file\": \"<name>\"}")
		return
	}
	// Путь ограничен каталогом загрузок
	if strings.Contains(req.File, "..") || filepath.IsAbs(req.File) {
		writeError(w, http.StatusBadRequest, "file must be a name inside the upload directory")
		return
	}

	registry, err := schema.NewRegistry(s.cfg.Schema...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snk, err := sink.New(r.Context(), s.cfg.Sink)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("sink unavailable: %v", err))
		return
	}

	p, err := pipeline.New(registry, snk, s.log)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := p.Upload(filepath.Join(s.cfg.UploadDir, req.File)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := p.Profile(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	mappings, err := p.AutoMap()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("%d", s.nextID)
	rn := &run{id: id, pipeline: p}
	s.runs[id] = rn
	s.mu.Unlock()

	runsStarted.Inc()
	s.log.Info().Str("run", id).Str("file", req.File).Msg("run created")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       id,
		"stage":    p.Stage(),
		"rows":     p.Source().TotalRows(),
		"profiles": p.Profiles(),
		"mappings": mappings,
	})
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(s.runs))
	for _, rn := range s.runs {
		out = append(out, map[string]interface{}{
			"id":    rn.id,
			"stage": rn.pipeline.Stage(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getRun(w http.ResponseWriter, r *http.Request) *run {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	rn := s.runs[id]
	s.mu.Unlock()
	if rn == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
	}
	return rn
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rn := s.getRun(w, r)
	if rn == nil {
		return
	}

	rn.mu.Lock()
	lastErr := rn.lastErr
	rn.mu.Unlock()

	resp := map[string]interface{}{
		"id":    rn.id,
		"stage": rn.pipeline.Stage(),
	}
	if lastErr != "" {
		resp["error"] = lastErr
	}
	if vr := rn.pipeline.Report(); vr != nil {
		resp["validation"] = map[string]interface{}{
			"rows_examined":   vr.RowsExamined,
			"blocking_errors": vr.BlockingErrors(),
			"sampled":         vr.Sampled,
			"cutoff":          vr.Cutoff,
			"results":         vr.Results,
		}
	}
	if o := rn.pipeline.Outcome(); o != nil {
		resp["outcome"] = o
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	rn := s.getRun(w, r)
	if rn == nil {
		return
	}
	rn.mu.Lock()
	estimate := rn.estimate
	rn.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"progress":    rn.pipeline.Progress(),
		"estimate_ms": estimate.Milliseconds(),
	})
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	rn := s.getRun(w, r)
	if rn == nil {
		return
	}

	settings := s.cfg.Validation
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid settings: %v", err))
			return
		}
	}

	estimate := progress.Estimate(rn.pipeline.Source().TotalRows(), settings)
	rn.mu.Lock()
	rn.estimate = estimate
	rn.mu.Unlock()

	// Валидация идет в фоне; оркестратор опрашивает /progress
	go func() {
		start := time.Now()
		_, err := rn.pipeline.Validate(context.Background(), settings)
		validationSeconds.Observe(time.Since(start).Seconds())

		rn.mu.Lock()
		if err != nil {
			rn.lastErr = err.Error()
		} else {
			rn.lastErr = ""
		}
		rn.mu.Unlock()

		if err != nil && !errors.Is(err, pipeline.ErrBusy) {
			s.log.Error().Str("run", rn.id).Err(err).Msg("validation failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":      "validating",
		"estimate_ms": estimate.Milliseconds(),
	})
}

type deployRequest struct {
	Settings      *deploy.Settings     `json:"settings,omitempty"`
	Confirmations deploy.Confirmations `json:"confirmations"`
}

func (s *server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	rn := s.getRun(w, r)
	if rn == nil {
		return
	}

	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	settings := s.cfg.Deploy
	if req.Settings != nil {
		settings = *req.Settings
	}

	outcome, err := rn.pipeline.Deploy(r.Context(), settings, req.Confirmations)
	if err != nil {
		var abort *deploy.AbortError
		switch {
		case errors.As(err, &abort):
			deploysTotal.WithLabelValues("aborted").Inc()
			writeJSON(w, http.StatusConflict, map[string]interface{}{"aborted": true, "reasons": abort.Reasons})
		case errors.Is(err, deploy.ErrRunInProgress), errors.Is(err, pipeline.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		default:
			deploysTotal.WithLabelValues("error").Inc()
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	rowsDeployed.Add(float64(outcome.RecordsDeployed))
	switch {
	case outcome.Success:
		deploysTotal.WithLabelValues("success").Inc()
	case outcome.RollbackTriggered:
		deploysTotal.WithLabelValues("rolled_back").Inc()
	default:
		deploysTotal.WithLabelValues("partial").Inc()
	}

	writeJSON(w, http.StatusOK, outcome)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

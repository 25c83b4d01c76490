package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/model"
	"github.com/matna449/annual-report-analyzer/internal/store"
)

// maxBodyBytes caps submitted report text.
const maxBodyBytes = 20 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis job server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initAnalysis(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		jobs := newJobServer(ctx, env.Analyzer, env.Store, cfg.Server.MaxConcurrent, env.Gateway.Available)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           jobs.routes(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		jobs.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// documentAnalyzer is the part of pipeline.Analyzer the server needs.
type documentAnalyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) *model.AnalysisResult
}

// jobServer accepts analysis requests, runs them in the background with
// bounded concurrency and records each one as a run.
type jobServer struct {
	ctx      context.Context
	analyzer documentAnalyzer
	store    store.Store
	remote   func() bool
	sem      chan struct{}
	wg       sync.WaitGroup
}

func newJobServer(ctx context.Context, a documentAnalyzer, st store.Store, maxConcurrent int, remote func() bool) *jobServer {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if remote == nil {
		remote = func() bool { return false }
	}
	return &jobServer{
		ctx:      ctx,
		analyzer: a,
		store:    st,
		remote:   remote,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

func (s *jobServer) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Location", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1/analyses", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
	})
	return r
}

// wait blocks until every accepted job has finished.
func (s *jobServer) wait() {
	s.wg.Wait()
}

type submitRequest struct {
	Text        string            `json:"text"`
	Source      string            `json:"source"`
	MetricsHint map[string]string `json:"metrics_hint"`
}

func (s *jobServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"remote": s.remote(),
	})
}

func (s *jobServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	run, err := s.store.CreateRun(r.Context(), req.Source)
	if err != nil {
		zap.L().Error("create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create run")
		return
	}

	s.wg.Add(1)
	go s.process(run.ID, model.AnalysisRequest{
		Text:        req.Text,
		Source:      req.Source,
		MetricsHint: req.MetricsHint,
	})

	w.Header().Set("Location", "/v1/analyses/"+run.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID,
		"status": string(model.RunQueued),
	})
}

// process runs one job. Store writes use a context that survives shutdown so
// that an interrupted run is still marked failed.
func (s *jobServer) process(runID string, req model.AnalysisRequest) {
	defer s.wg.Done()
	writeCtx := context.WithoutCancel(s.ctx)
	log := zap.L().With(zap.String("run_id", runID), zap.String("source", req.Source))

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-s.ctx.Done():
		if err := s.store.FailRun(writeCtx, runID, "server shutting down"); err != nil {
			log.Error("fail run", zap.Error(err))
		}
		return
	}

	if err := s.store.UpdateRunStatus(writeCtx, runID, model.RunRunning); err != nil {
		log.Error("update run status", zap.Error(err))
	}

	res := s.analyzer.Analyze(s.ctx, req)
	if res == nil {
		if err := s.store.FailRun(writeCtx, runID, "analysis produced no result"); err != nil {
			log.Error("fail run", zap.Error(err))
		}
		return
	}

	if err := s.store.CompleteRun(writeCtx, runID, res); err != nil {
		log.Error("complete run", zap.Error(err))
		return
	}
	log.Info("analysis complete",
		zap.String("status", string(res.Status)),
		zap.Int("chunks", res.ChunkCount),
		zap.Int64("elapsed_ms", res.ElapsedMS),
	)
}

func (s *jobServer) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *jobServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RunFilter{Status: model.RunStatus(q.Get("status"))}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// requestID tags each request with an X-Request-ID, generating one when the
// client did not send it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

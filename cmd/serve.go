package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
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

	"github.com/sells-group/persona-cli/internal/export"
	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/pipeline"
	"github.com/sells-group/persona-cli/internal/review"
	"github.com/sells-group/persona-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for runs, reviews and exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		api := newAPIServer(ctx, st, newOrchestrator(st))
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(api, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		api.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer holds the handlers' dependencies and the runs still in flight.
type apiServer struct {
	base   context.Context
	repo   store.Repository
	orch   *pipeline.Orchestrator
	ledger *review.Ledger

	mu     sync.Mutex
	active map[string]*pipeline.Execution
	wg     sync.WaitGroup
}

// newAPIServer returns a server whose background runs live as long as base.
func newAPIServer(base context.Context, repo store.Repository, orch *pipeline.Orchestrator) *apiServer {
	return &apiServer{
		base:   base,
		repo:   repo,
		orch:   orch,
		ledger: review.New(repo),
		active: make(map[string]*pipeline.Execution),
	}
}

func (s *apiServer) wait() { s.wg.Wait() }

func newRouter(s *apiServer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Location"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Post("/", s.startRun)
		r.Get("/latest", s.latestRun)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Post("/reset", s.resetRun)
			r.Get("/audit", s.auditLog)
			r.Post("/approve", s.approve)
			r.Post("/request-changes", s.requestChanges)
			r.Post("/comments", s.comment)
			r.Get("/export/{file}", s.exportFile)
		})
	})
	return r
}

func (s *apiServer) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Subject: r.URL.Query().Get("subject")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, &model.ValidationError{Field: "limit", Reason: "must be an integer"})
			return
		}
		filter.Limit = n
	}
	runs, err := s.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *apiServer) latestRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.repo.GetLatest(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, store.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// startRun validates the request, then runs it in the background.
func (s *apiServer) startRun(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &model.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	exec, err := s.orch.Prepare(withDefaults(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := exec.ID()
	reqID := requestIDFrom(r.Context())

	s.mu.Lock()
	s.active[id] = exec
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, id)
			s.mu.Unlock()
		}()
		log := zap.L().With(zap.String("run_id", id), zap.String("request_id", reqID))
		rec, err := exec.Run(s.base)
		switch {
		case errors.Is(err, pipeline.ErrReset):
			log.Info("api: run reset")
		case err != nil:
			log.Error("api: run failed", zap.Error(err))
		default:
			log.Info("api: run finished", zap.String("status", string(rec.Status())))
		}
	}()

	w.Header().Set("Location", "/runs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "accepted"})
}

// lookup returns an in-flight snapshot, or the stored record.
func (s *apiServer) lookup(ctx context.Context, id string) (*model.RunRecord, error) {
	s.mu.Lock()
	exec, ok := s.active[id]
	s.mu.Unlock()
	if ok {
		snap := exec.Snapshot()
		return &snap, nil
	}
	return s.repo.Get(ctx, id)
}

func (s *apiServer) getRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) resetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	exec, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "run is not in progress"})
		return
	}
	exec.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "reset"})
}

func (s *apiServer) auditLog(w http.ResponseWriter, r *http.Request) {
	rec, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": review.Entries(*rec)})
}

type reviewBody struct {
	Actor   model.Actor `json:"actor"`
	Comment string      `json:"comment"`
}

func decodeReview(r *http.Request) (reviewBody, error) {
	var body reviewBody
	if r.ContentLength == 0 {
		return body, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, &model.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return body, nil
}

func (s *apiServer) approve(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, func(ctx context.Context, id string, body reviewBody) (*model.RunRecord, error) {
		return s.ledger.Approve(ctx, id, body.Comment)
	})
}

func (s *apiServer) requestChanges(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, func(ctx context.Context, id string, body reviewBody) (*model.RunRecord, error) {
		return s.ledger.RequestChanges(ctx, id, body.Comment)
	})
}

func (s *apiServer) comment(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, func(ctx context.Context, id string, body reviewBody) (*model.RunRecord, error) {
		if body.Actor == "" {
			body.Actor = model.ActorOwner
		}
		return s.ledger.Comment(ctx, id, body.Actor, body.Comment)
	})
}

func (s *apiServer) review(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, reviewBody) (*model.RunRecord, error)) {
	body, err := decodeReview(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := fn(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": rec.ID, "entries": review.Entries(*rec)})
}

func (s *apiServer) exportFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !rec.Complete() || rec.Persona == nil || rec.Stats == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "run has not completed"})
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch file := chi.URLParam(r, "file"); file {
	case "quotes.csv":
		data, err = export.EncodeQuotesCSV(rec.Persona.Quotes)
		contentType = "text/csv; charset=utf-8"
	case "stats.json":
		data, err = export.EncodeStatsJSON(rec.Stats)
		contentType = "application/json"
	case "trace.json":
		data, err = export.EncodeTraceJSON(rec.Stages)
		contentType = "application/json"
	case "evidence.xlsx":
		data, err = export.EncodeWorkbookBytes(rec)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown export " + file})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID+"_"+chi.URLParam(r, "file")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// -- middleware and helpers --

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestID propagates the caller's X-Request-ID or assigns a new UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", requestIDFrom(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "request_id": requestIDFrom(r.Context())})
}

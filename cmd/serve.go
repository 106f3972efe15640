package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/billscan/internal/content"
	"github.com/sells-group/billscan/internal/job"
	"github.com/sells-group/billscan/internal/orchestrator"
)

const maxUploadBytes = 50 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		api := newAPIServer(ctx, e, cfg.Batch.MaxConcurrentJobs)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.routes(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// apiServer exposes the submission and status surfaces. Submissions are
// fire-and-forget: results flow back only through the job registry. Work
// runs on a bounded worker group so a burst of uploads cannot spawn
// unbounded goroutines.
type apiServer struct {
	ctx     context.Context
	env     *env
	workers *errgroup.Group
}

func newAPIServer(ctx context.Context, e *env, maxWorkers int) *apiServer {
	g := new(errgroup.Group)
	if maxWorkers > 0 {
		g.SetLimit(maxWorkers)
	}
	return &apiServer{ctx: ctx, env: e, workers: g}
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/api/v1/extract", s.handleExtract)
	r.Post("/api/v1/batch-extract", s.handleBatchExtract)
	r.Get("/api/v1/status/{jobID}", s.handleStatus)

	return r
}

func (s *apiServer) wait() {
	_ = s.workers.Wait()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "file is required"})
		return
	}
	defer file.Close()

	bj, err := s.prepareJob(file, header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	ok := s.workers.TryGo(func() error {
		s.env.Orchestrator.Process(s.ctx, bj.ID, bj.Content, bj.Name)
		s.env.persistResult(s.ctx, bj.ID, bj.Name)
		return nil
	})
	if !ok {
		s.rejectBusy(w, bj.ID)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     bj.ID,
		"status_url": "/api/v1/status/" + bj.ID,
	})
}

func (s *apiServer) handleBatchExtract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid multipart form"})
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "files are required"})
		return
	}

	var jobs []orchestrator.BatchJob
	var results []map[string]string
	for _, fh := range headers {
		if fh.Filename == "" {
			continue
		}
		file, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unreadable file in upload"})
			return
		}
		bj, err := s.prepareJob(file, fh.Filename)
		file.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}

		jobs = append(jobs, bj)
		results = append(results, map[string]string{
			"filename":   bj.Name,
			"job_id":     bj.ID,
			"status_url": "/api/v1/status/" + bj.ID,
		})
	}

	// One worker slot per batch: the orchestrator serializes the jobs itself.
	ok := s.workers.TryGo(func() error {
		s.env.Orchestrator.RunBatch(s.ctx, jobs)
		for _, bj := range jobs {
			s.env.persistResult(s.ctx, bj.ID, bj.Name)
		}
		return nil
	})
	if !ok {
		for _, bj := range jobs {
			s.rejectBusy(nil, bj.ID)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "server at capacity"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"batch_results": results})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.env.Registry.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Job not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// prepareJob reads an upload, extracts its content, and registers a queued job.
func (s *apiServer) prepareJob(file multipart.File, filename string) (orchestrator.BatchJob, error) {
	if filename == "" {
		return orchestrator.BatchJob{}, eris.New("no filename")
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return orchestrator.BatchJob{}, eris.New("unreadable upload")
	}

	c, err := content.FromBytes(data, filename)
	if err != nil {
		return orchestrator.BatchJob{}, eris.Wrap(err, "content extraction failed")
	}

	id := uuid.New().String()
	s.env.Registry.Create(id)

	return orchestrator.BatchJob{ID: id, Content: c, Name: filename}, nil
}

// rejectBusy marks a job failed because no worker slot was available.
// w may be nil when the caller writes its own response.
func (s *apiServer) rejectBusy(w http.ResponseWriter, id string) {
	s.env.Registry.Update(id, job.Record{
		Status: job.StatusFailed,
		Error:  "server at capacity, submission rejected",
	})
	if w != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "server at capacity"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("encoding response", zap.Error(err))
	}
}

// Package server exposes a sampling session, the saved history and the
// calibration reference over HTTP.
//
// All session operations are serialized behind one mutex. The remote
// analysis call runs outside the lock; the session's busy flag rejects a
// second analysis while one is pending.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/maax3v3/colormix/internal/analysis"
	"github.com/maax3v3/colormix/internal/imaging"
	"github.com/maax3v3/colormix/internal/session"
	"github.com/maax3v3/colormix/internal/store"
)

// MaxImageBytes bounds uploaded image bodies.
const MaxImageBytes = 25 << 20

var errBadRequest = errors.New("bad request")

// Analyzer runs one color analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) ([]analysis.Result, error)
}

// Options configures a Server. History and Calibrations default to
// in-memory stores.
type Options struct {
	Analyzer       Analyzer
	History        *store.History
	Calibrations   *store.Calibrations
	ContainerWidth int
	Logger         *slog.Logger
}

// Server is the HTTP front end of one sampling session.
type Server struct {
	mu      sync.Mutex
	session *session.Session

	analyzer     Analyzer
	history      *store.History
	calibrations *store.Calibrations
	width        int
	logger       *slog.Logger
	router       chi.Router
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	width := opts.ContainerWidth
	if width <= 0 {
		width = imaging.DefaultContainerWidth
	}
	history, calibrations := opts.History, opts.Calibrations
	if history == nil || calibrations == nil {
		kv := &store.MemKV{}
		if history == nil {
			history = store.NewHistory(kv)
		}
		if calibrations == nil {
			calibrations = store.NewCalibrations(kv)
		}
	}
	s := &Server{
		session:      session.New(logger.With("component", "session")),
		analyzer:     opts.Analyzer,
		history:      history,
		calibrations: calibrations,
		width:        width,
		logger:       logger,
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Delete("/", s.resetSession)
		r.Post("/image", s.loadImage)
		r.Post("/resize", s.resize)
		r.Post("/analyze", s.analyzeImage)
		r.Post("/picking", s.startPicking)
		r.Delete("/picking", s.cancelPicking)
		r.Post("/pointer", s.movePointer)
		r.Delete("/pointer", s.leavePointer)
		r.Post("/click", s.click)
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", s.listHistory)
		r.Post("/", s.saveHistory)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getHistory)
			r.Delete("/", s.deleteHistory)
			r.Post("/select", s.selectHistory)
			r.Get("/swatch.png", s.swatchCard)
		})
	})

	r.Route("/calibration", func(r chi.Router) {
		r.Get("/", s.getCalibration)
		r.Put("/", s.setCalibration)
		r.Delete("/", s.clearCalibration)
	})

	s.router = r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, imaging.ErrDecode), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrAnalysis):
		return http.StatusBadGateway
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusBadGateway:
		msg = session.AnalysisFailedMessage
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

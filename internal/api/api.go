// Package api serves deployment status and triggers over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/engine"
	"github.com/waabox/pakdeck/internal/pipeline"
)

// Service is the engine surface the API exposes.
type Service interface {
	Deploy(ctx context.Context, req engine.Request) (domain.Session, error)
	Status(pkg string) (domain.Session, error)
	Session(id string) (domain.Session, error)
	Logs(pkg string) ([]engine.LogEntry, error)
	Sessions(pkg string) ([]domain.Session, error)
	Pipelines() []domain.PipelineDefinition
	Platforms() []string
}

type handler struct {
	svc    Service
	logger *slog.Logger
}

// NewRouter returns the API routes:
//
//	GET  /healthz
//	GET  /pipelines
//	GET  /platforms
//	GET  /sessions/{id}
//	GET  /packages/{package}/status
//	GET  /packages/{package}/logs
//	GET  /packages/{package}/sessions
//	POST /deployments
//
// Package names containing "/" must be path-escaped.
func NewRouter(svc Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Get("/pipelines", h.pipelines)
	r.Get("/platforms", h.platforms)
	r.Get("/sessions/{id}", h.session)
	r.Route("/packages/{package}", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/logs", h.logs)
		r.Get("/sessions", h.sessions)
	})
	r.Post("/deployments", h.deploy)
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) pipelines(w http.ResponseWriter, _ *http.Request) {
	defs := h.svc.Pipelines()
	files := make([]pipeline.File, 0, len(defs))
	for _, def := range defs {
		files = append(files, pipeline.FileFrom(def))
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *handler) platforms(w http.ResponseWriter, _ *http.Request) {
	platforms := h.svc.Platforms()
	if platforms == nil {
		platforms = []string{}
	}
	writeJSON(w, http.StatusOK, platforms)
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	pkg, ok := packageParam(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.Status(pkg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	pkg, ok := packageParam(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.Logs(pkg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) sessions(w http.ResponseWriter, r *http.Request) {
	pkg, ok := packageParam(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Sessions(pkg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) deploy(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}

	sess, err := h.svc.Deploy(r.Context(), req)
	if errors.Is(err, domain.ErrSessionFailed) {
		writeJSON(w, http.StatusUnprocessableEntity, sess)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func packageParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	pkg, err := url.PathUnescape(chi.URLParam(r, "package"))
	if err != nil || pkg == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid package name"})
		return "", false
	}
	return pkg, true
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidRequest), errors.Is(err, domain.ErrNoPlatforms):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPipelineNotFound), errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	default:
		h.logger.Error("request failed", "error", err)
	}
	body := errorBody{Error: err.Error()}
	if kind := domain.KindOf(err); kind != "Error" {
		body.Kind = kind
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package httpapi exposes the scheduler's control surface over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
	"github.com/AlexanderKara/orgportal-sub002/internal/scheduler"
)

const maxBodySize = 1 << 16

// Lifecycle controls the poll loop; *scheduler.Service implements it.
type Lifecycle interface {
	Start(interval time.Duration) (scheduler.Status, error)
	Stop() scheduler.Status
	Status() scheduler.Status
	ProcessNow(ctx context.Context) (scheduler.TickReport, error)
}

// Trigger sends one notification on demand; *scheduler.Scheduler implements it.
type Trigger interface {
	FireNow(ctx context.Context, id int64) (scheduler.FireResult, error)
}

// Handler serves the admin API.
type Handler struct {
	svc             Lifecycle
	trigger         Trigger
	log             *zap.Logger
	defaultInterval time.Duration
}

func NewHandler(svc Lifecycle, trigger Trigger, log *zap.Logger, defaultInterval time.Duration) *Handler {
	return &Handler{svc: svc, trigger: trigger, log: log, defaultInterval: defaultInterval}
}

// Routes builds the chi router with all endpoints mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api", func(r chi.Router) {
		r.Route("/notifier", func(r chi.Router) {
			r.Get("/status", h.status)
			r.Post("/start", h.start)
			r.Post("/stop", h.stop)
			r.Post("/process-now", h.processNow)
		})
		r.Post("/notifications/{id}/send", h.send)
	})
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("requestID", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatus(h.svc.Status()))
}

type startRequest struct {
	PollIntervalSeconds *int64 `json:"poll_interval_seconds"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	interval := h.defaultInterval
	if req.PollIntervalSeconds != nil {
		interval = time.Duration(*req.PollIntervalSeconds) * time.Second
	}
	st, err := h.svc.Start(interval)
	if errors.Is(err, scheduler.ErrBadInterval) {
		writeError(w, http.StatusBadRequest, "invalid_interval", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toStatus(st))
}

func (h *Handler) stop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatus(h.svc.Stop()))
}

func (h *Handler) processNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.ProcessNow(r.Context())
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReport(report))
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "notification id must be a positive integer")
		return
	}
	res, err := h.trigger.FireNow(r.Context(), id)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res))
}

func (h *Handler) writeSchedulerError(w http.ResponseWriter, err error) {
	var serr *scheduler.StoreError
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidRule):
		writeError(w, http.StatusUnprocessableEntity, "invalid_rule", err.Error())
	case errors.Is(err, scheduler.ErrTickInProgress):
		writeError(w, http.StatusConflict, "tick_in_progress", err.Error())
	case errors.As(err, &serr):
		h.log.Error("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// Package ipc provides the HTTP API for the triad kernel.
package ipc

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Rogers-F/triad-kernel/internal/bridge"
	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
	"github.com/Rogers-F/triad-kernel/internal/store"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Kernel       *kernel.Kernel
	Bridge       *bridge.Bridge
	DB           *sql.DB
	EventRepo    *store.EventRepo
	ProcessRepo  *store.ProcessRepo
	ResponseRepo *store.ResponseRepo
	SnapshotRepo *store.SnapshotRepo

	// PollInterval is how often the event stream checks the journal.
	PollInterval time.Duration
}

// NewHandler creates a Handler with store repositories attached.
func NewHandler(k *kernel.Kernel, b *bridge.Bridge, db *sql.DB) *Handler {
	return &Handler{
		Kernel:       k,
		Bridge:       b,
		DB:           db,
		EventRepo:    &store.EventRepo{},
		ProcessRepo:  &store.ProcessRepo{},
		ResponseRepo: &store.ResponseRepo{},
		SnapshotRepo: &store.SnapshotRepo{},
		PollInterval: 2 * time.Second,
	}
}

// SubmitRequest is the body for POST /api/v1/messages. A non-empty
// parent_id handles the message as a child of that live process.
type SubmitRequest struct {
	domain.Message
	ParentID string `json:"parent_id,omitempty"`
}

// TerminateRequest is the body for POST /api/v1/processes/{id}/terminate.
type TerminateRequest struct {
	Reason string `json:"reason"`
}

// StimulateRequest is the body for POST /api/v1/processes/{id}/stimulate.
type StimulateRequest struct {
	Amount float64 `json:"amount"`
}

// HealthStatus is the response for GET /api/v1/health.
type HealthStatus struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Running bool   `json:"running"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.Kernel.Status()
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:  "ok",
		Name:    st.Name,
		Version: st.Version,
		Running: st.Running,
	})
}

// SubmitMessage handles POST /api/v1/messages.
func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	p, err := h.Bridge.AcceptChild(r.Context(), req.ParentID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

// GetKernel handles GET /api/v1/kernel.
func (h *Handler) GetKernel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Kernel.Status())
}

// ListProcesses handles GET /api/v1/processes.
func (h *Handler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Kernel.List())
}

// GetProcess handles GET /api/v1/processes/{id}. Retired processes are
// served from the archive.
func (h *Handler) GetProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := h.Kernel.Get(id)
	if errors.Is(err, domain.ErrUnknownProcess) && h.DB != nil {
		p, err = h.ProcessRepo.Get(r.Context(), h.DB, id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SuspendProcess handles POST /api/v1/processes/{id}/suspend.
func (h *Handler) SuspendProcess(w http.ResponseWriter, r *http.Request) {
	h.applyAndReturn(w, r.PathValue("id"), h.Kernel.Suspend)
}

// ResumeProcess handles POST /api/v1/processes/{id}/resume.
func (h *Handler) ResumeProcess(w http.ResponseWriter, r *http.Request) {
	h.applyAndReturn(w, r.PathValue("id"), h.Kernel.Resume)
}

func (h *Handler) applyAndReturn(w http.ResponseWriter, id string, op func(string) error) {
	if err := op(id); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.Kernel.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// TerminateProcess handles POST /api/v1/processes/{id}/terminate. The body
// is optional.
func (h *Handler) TerminateProcess(w http.ResponseWriter, r *http.Request) {
	req := TerminateRequest{Reason: "operator"}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
			return
		}
		if req.Reason == "" {
			req.Reason = "operator"
		}
	}
	if err := h.Kernel.Terminate(r.PathValue("id"), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StimulateProcess handles POST /api/v1/processes/{id}/stimulate.
func (h *Handler) StimulateProcess(w http.ResponseWriter, r *http.Request) {
	var req StimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	p, err := h.Kernel.Stimulate(r.PathValue("id"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListEvents handles GET /api/v1/events?since_seq=N&limit=M.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	sinceSeq := queryInt(r, "since_seq")
	events, err := h.EventRepo.ListSince(r.Context(), h.DB, sinceSeq, int(queryInt(r, "limit")))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]json.RawMessage, 0, len(events))
	for _, ev := range events {
		out = append(out, json.RawMessage(ev.PayloadJSON))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListResponses handles GET /api/v1/responses?since_id=N&limit=M.
func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ResponseRepo.ListSince(r.Context(), h.DB, queryInt(r, "since_id"), int(queryInt(r, "limit")))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.OutboxEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// LatestSnapshot handles GET /api/v1/snapshots/latest.
func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.SnapshotRepo.LoadLatest(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StreamEvents handles GET /api/v1/events/stream?since_seq=N (SSE).
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	lastSeq := queryInt(r, "since_seq")
	send := func() error {
		events, err := h.EventRepo.ListSince(ctx, h.DB, lastSeq, 0)
		if err != nil {
			return err
		}
		for _, ev := range events {
			writeSSEEvent(w, flusher, ev)
			lastSeq = ev.Seq
		}
		return nil
	}

	// Send initial batch of events.
	if err := send(); err != nil {
		writeSSEError(w, flusher, err)
		return
	}

	interval := h.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				return
			}
		}
	}
}

func queryInt(r *http.Request, key string) int64 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrUnknownProcess.Code, domain.ErrSnapshotNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrDuplicateOrigin.Code:
			status = http.StatusConflict
		case domain.ErrAdmissionRejected.Code, domain.ErrRateLimitExceeded.Code:
			status = http.StatusTooManyRequests
		case domain.ErrInvalidTransition.Code:
			status = http.StatusUnprocessableEntity
		case domain.ErrInvalidMessage.Code:
			status = http.StatusBadRequest
		case domain.ErrKernelStopped.Code:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev domain.StoredEvent) {
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, ev.PayloadJSON)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}

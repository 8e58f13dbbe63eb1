package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-compass/internal/reaction"
	"github.com/p-n-ai/pai-compass/internal/service"
	"github.com/p-n-ai/pai-compass/internal/store"
)

const (
	readyTimeout = 2 * time.Second
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ReadinessCheck is a dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the HTTP endpoints.
type Handler struct {
	svc    *service.Service
	feed   http.Handler
	checks []ReadinessCheck
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithFeed mounts a live history stream at /ws/history.
func WithFeed(feed http.Handler) HandlerOption {
	return func(h *Handler) {
		h.feed = feed
	}
}

// WithReadinessCheck adds a dependency to /readyz.
func WithReadinessCheck(name string, check func(ctx context.Context) error) HandlerOption {
	return func(h *Handler) {
		h.checks = append(h.checks, ReadinessCheck{Name: name, Check: check})
	}
}

// NewHandler creates a handler over svc.
func NewHandler(svc *service.Service, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Backend is live!",
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	var failed []string
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			slog.Warn("readiness check failed", "check", c.Name, "error", err)
			failed = append(failed, c.Name)
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) submitKC(w http.ResponseWriter, r *http.Request) {
	var kc store.KnowledgeComponent
	if err := decode(w, r, submitKCValidator, &kc); err != nil {
		h.fail(w, "submit_kc", err)
		return
	}

	stored, err := h.svc.SubmitKC(r.Context(), kc)
	if err != nil {
		h.fail(w, "submit_kc", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Knowledge component %s received", stored.KCID),
		"kc":      stored,
	})
}

func (h *Handler) getKC(w http.ResponseWriter, r *http.Request) {
	kc, err := h.svc.GetKC(r.Context(), r.URL.Query().Get("kc_id"))
	if err != nil {
		h.fail(w, "get_kc", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kc_id":             kc.KCID,
		"title":             kc.Title,
		"target_SOLO_level": kc.TargetSOLOLevel,
	})
}

func (h *Handler) listKCs(w http.ResponseWriter, r *http.Request) {
	kcs, err := h.svc.ListKCs(r.Context())
	if err != nil {
		h.fail(w, "list_kcs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kcs": kcs})
}

func historyQuery(r *http.Request) service.HistoryQuery {
	q := r.URL.Query()
	return service.HistoryQuery{
		StudentID:  q.Get("student_id"),
		KCID:       q.Get("kc_id"),
		LatestOnly: strings.EqualFold(q.Get("latest"), "true"),
	}
}

func (h *Handler) studentHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.StudentHistory(r.Context(), historyQuery(r))
	if err != nil {
		h.fail(w, "get-student-history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) exportHistory(w http.ResponseWriter, r *http.Request) {
	q := historyQuery(r)
	var buf bytes.Buffer
	if err := h.svc.ExportHistory(r.Context(), q, &buf); err != nil {
		h.fail(w, "export-history", err)
		return
	}

	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="history-%s.xlsx"`, safeFilename(q.StudentID)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) analyzeResponse(w http.ResponseWriter, r *http.Request) {
	var in service.AnalyzeInput
	if err := decode(w, r, analyzeValidator, &in); err != nil {
		h.fail(w, "analyze-response", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.AnalyzeResponse(r.Context(), in))
}

func (h *Handler) storeHistory(w http.ResponseWriter, r *http.Request) {
	var in service.StoreHistoryInput
	if err := decode(w, r, storeHistoryValidator, &in); err != nil {
		h.fail(w, "store-history", err)
		return
	}

	stored, err := h.svc.StoreHistory(r.Context(), in)
	if err != nil {
		h.fail(w, "store-history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stored": stored,
	})
}

func (h *Handler) generateReaction(w http.ResponseWriter, r *http.Request) {
	var req reaction.Request
	if err := decode(w, r, reactionValidator, &req); err != nil {
		h.fail(w, "generate-reaction", err)
		return
	}

	resp, err := h.svc.GenerateReaction(r.Context(), req)
	if err != nil {
		h.fail(w, "generate-reaction", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode validates the body against schema and unmarshals it into out.
func decode(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, out any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &service.ValidationError{Message: "request body format is invalid", Details: []string{err.Error()}}
	}
	return nil
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
	Hint    string   `json:"hint,omitempty"`
}

// fail maps service errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		slog.Info("bad request", "op", op, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Details: verr.Details, Hint: verr.Hint})
	case errors.Is(err, service.ErrNotFound):
		slog.Info("not found", "op", op, "error", err)
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "op", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

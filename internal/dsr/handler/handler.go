package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"consentry/internal/disclosure"
	"consentry/internal/dsr/models"
	"consentry/internal/dsr/service"
	"consentry/internal/platform/metrics"
	"consentry/internal/platform/middleware"
	respond "consentry/internal/transport/http/json"
	"consentry/internal/transport/http/shared"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// Service defines the data subject request operations the handler exposes.
type Service interface {
	Submit(ctx context.Context, in service.SubmitInput) (*models.Request, error)
	Withdraw(ctx context.Context, requestID id.RequestID, actor id.ActorID) (*models.Request, error)
	Get(ctx context.Context, requestID id.RequestID, actor id.ActorID) (*models.Request, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) ([]*models.Request, error)
	Disclosures(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) ([]disclosure.Record, error)
	Download(ctx context.Context, token string) ([]byte, string, error)
}

// Handler handles data subject request endpoints.
type Handler struct {
	logger  *slog.Logger
	dsr     Service
	metrics *metrics.Metrics
}

// New creates a new DSR Handler.
func New(dsr Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		dsr:     dsr,
		metrics: metrics,
	}
}

// Register registers the DSR routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/dsr", h.handleSubmit)
	r.Get("/dsr", h.handleList)
	r.Get("/dsr/{requestID}", h.handleGet)
	r.Post("/dsr/{requestID}/withdraw", h.handleWithdraw)
	r.Get("/disclosures", h.handleDisclosures)
	r.Get("/exports/{token}", h.handleDownload)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("dsr_submit", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnDecode(ctx, "submit dsr", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	created, err := h.dsr.Submit(ctx, service.SubmitInput{
		Type:        models.RequestType(req.Type),
		SubjectID:   id.SubjectID(req.SubjectID),
		RequesterID: actor,
		Notes:       req.Notes,
		Corrections: req.Corrections,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("dsr_withdraw", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	requestID := id.RequestID(chi.URLParam(r, "requestID"))

	updated, err := h.dsr.Withdraw(ctx, requestID, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, toRequestResponse(updated))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("dsr_get", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	requestID := id.RequestID(chi.URLParam(r, "requestID"))

	req, err := h.dsr.Get(ctx, requestID, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("dsr_list", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	subjectID := strings.TrimSpace(r.URL.Query().Get("subject_id"))
	if subjectID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject_id is required"))
		return
	}

	reqs, err := h.dsr.ListBySubject(ctx, id.SubjectID(subjectID), actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ListResponse{Requests: toRequestResponses(reqs)})
}

func (h *Handler) handleDisclosures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("dsr_disclosures", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	subjectID := strings.TrimSpace(r.URL.Query().Get("subject_id"))
	if subjectID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject_id is required"))
		return
	}

	recs, err := h.dsr.Disclosures(ctx, id.SubjectID(subjectID), actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, DisclosureListResponse{Disclosures: toDisclosureResponses(recs)})
}

// handleDownload streams a decrypted portability export. The token in the
// path is the signed single-use reference from the portability result.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("dsr_download", time.Now())

	token := chi.URLParam(r, "token")
	payload, contentType, err := h.dsr.Download(ctx, token)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="export.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		h.logger.WarnContext(ctx, "failed to write export payload",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	}
}

func (h *Handler) requireActor(ctx context.Context, w http.ResponseWriter) (id.ActorID, bool) {
	actor := middleware.GetActor(ctx)
	if actor.IsEmpty() {
		h.logger.WarnContext(ctx, "request rejected without actor identity",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "actor identity is required"))
		return "", false
	}
	return actor, true
}

func (h *Handler) warnDecode(ctx context.Context, what string, err error) {
	h.logger.WarnContext(ctx, "failed to decode request",
		"endpoint", what,
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	)
}

func (h *Handler) observe(endpoint string, start time.Time) {
	if h.metrics != nil {
		h.metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

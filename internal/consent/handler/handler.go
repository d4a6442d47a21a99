package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consentry/internal/consent/models"
	"consentry/internal/consent/service"
	"consentry/internal/consent/verify"
	"consentry/internal/platform/metrics"
	"consentry/internal/platform/middleware"
	respond "consentry/internal/transport/http/json"
	"consentry/internal/transport/http/shared"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// Workflow defines the consent lifecycle operations the handler exposes.
type Workflow interface {
	RequestConsent(ctx context.Context, req service.ConsentRequest) (service.RequestOutcome, error)
	Revoke(ctx context.Context, consentID id.ConsentID, revokedBy id.ActorID, reason string) (service.RevocationResult, error)
	List(ctx context.Context, subjectID id.SubjectID, actor id.ActorID, filter *models.RecordFilter) ([]*models.Record, error)
	History(ctx context.Context, subjectID id.SubjectID, actor id.ActorID, t models.Type) ([]*models.Record, error)
	Get(ctx context.Context, consentID id.ConsentID, actor id.ActorID) (*models.Record, error)
}

// Verifier defines the guardian verification operations the handler exposes.
type Verifier interface {
	Verify(ctx context.Context, consentID id.ConsentID, actor id.ActorID, method models.VerificationMethod, evidence verify.Evidence, reqCtx verify.RequestContext) (verify.Result, error)
	Deny(ctx context.Context, consentID id.ConsentID, actor id.ActorID, reason string) (*models.Record, error)
}

// Handler handles consent lifecycle endpoints.
type Handler struct {
	logger   *slog.Logger
	consents Workflow
	verifier Verifier
	metrics  *metrics.Metrics
}

// New creates a new consent Handler.
func New(consents Workflow, verifier Verifier, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		consents: consents,
		verifier: verifier,
		metrics:  metrics,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consents", h.handleCreate)
	r.Get("/consents", h.handleList)
	r.Get("/consents/history", h.handleHistory)
	r.Get("/consents/{consentID}", h.handleGet)
	r.Post("/consents/{consentID}/verify", h.handleVerify)
	r.Post("/consents/{consentID}/deny", h.handleDeny)
	r.Post("/consents/{consentID}/revoke", h.handleRevoke)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_create", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnDecode(ctx, "create consent", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	outcome, err := h.consents.RequestConsent(ctx, service.ConsentRequest{
		SubjectID:   id.SubjectID(req.SubjectID),
		Type:        models.Type(req.Type),
		Purposes:    req.ToPurposes(),
		RequestedBy: actor,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusCreated, CreateResponse{
		Record:    toRecordResponse(outcome.Record),
		Challenge: toChallengeResponse(outcome.Challenge),
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_verify", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	consentID := id.ConsentID(chi.URLParam(r, "consentID"))

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnDecode(ctx, "verify consent", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.verifier.Verify(ctx, consentID, actor, models.VerificationMethod(req.Method), req.ToEvidence(), verify.RequestContext{
		IPAddress: remoteIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if !result.Success {
		// Non-fatal: the record stays pending and the caller may retry.
		shared.WriteError(w, dErrors.New(dErrors.CodeVerificationFailed, result.Message))
		return
	}
	respond.WriteJSON(w, http.StatusOK, VerifyResponse{Success: true, Message: result.Message})
}

func (h *Handler) handleDeny(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_deny", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	consentID := id.ConsentID(chi.URLParam(r, "consentID"))

	var req ReasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnDecode(ctx, "deny consent", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := h.verifier.Deny(ctx, consentID, actor, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_revoke", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	consentID := id.ConsentID(chi.URLParam(r, "consentID"))

	var req ReasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnDecode(ctx, "revoke consent", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.consents.Revoke(ctx, consentID, actor, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, RevokeResponse{
		Record:      toRecordResponse(result.Record),
		DataDeleted: result.DataDeleted,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_list", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	subjectID, err := parseSubjectID(r.URL.Query().Get("subject_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	filter, err := parseRecordFilter(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	recs, err := h.consents.List(ctx, subjectID, actor, filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ListResponse{Records: toRecordResponses(recs)})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_history", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	subjectID, err := parseSubjectID(r.URL.Query().Get("subject_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	t := models.Type(r.URL.Query().Get("type"))
	if !t.IsValid() {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "valid type is required"))
		return
	}

	recs, err := h.consents.History(ctx, subjectID, actor, t)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ListResponse{Records: toRecordResponses(recs)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_get", time.Now())

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	consentID := id.ConsentID(chi.URLParam(r, "consentID"))

	rec, err := h.consents.Get(ctx, consentID, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
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

func parseRecordFilter(r *http.Request) (*models.RecordFilter, error) {
	var filter models.RecordFilter
	set := false
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := models.Type(raw)
		if !t.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown consent type filter")
		}
		filter.Type = &t
		set = true
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := models.Status(raw)
		if !st.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status filter")
		}
		filter.Status = &st
		set = true
	}
	if !set {
		return nil, nil
	}
	return &filter, nil
}

// remoteIP strips the port from the peer address for audit fingerprinting.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package service implements the data subject request orchestrator: the
// state machine that accepts rights requests, authorizes the requester,
// tracks the statutory deadline, and dispatches to per-type handlers.
//
// Handlers are pure functions of (request, collaborators). The HTTP layer
// calls Process directly in tests and small deployments; production hands
// the same call off through the queue adapter.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"consentry/internal/audit"
	consentstore "consentry/internal/consent/store"
	"consentry/internal/datacat"
	"consentry/internal/disclosure"
	"consentry/internal/dsr/export"
	"consentry/internal/dsr/models"
	"consentry/internal/dsr/store"
	identitymodels "consentry/internal/identity/models"
	"consentry/internal/notify"
	"consentry/internal/platform/crypto"
	"consentry/internal/platform/metrics"
	"consentry/internal/queue"
	"consentry/internal/retention"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
	psync "consentry/pkg/platform/sync"
)

// The consent ledger is not a datacat category (it must survive erasure as
// the proof of consent history), but access responses include it.
const categoryConsentLedger = datacat.Category("consent_records")

// IdentityResolver is the slice of the identity service the orchestrator
// needs: authorization facts and the rectification allow-list.
type IdentityResolver interface {
	IsGuardian(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) (bool, error)
	Get(ctx context.Context, subjectID id.SubjectID) (*identitymodels.Subject, error)
	ApplyCorrections(ctx context.Context, subjectID id.SubjectID, corrections map[string]string) ([]string, error)
}

// FlagRecorder persists processing restriction and objection flags that
// downstream processing pipelines must consult.
type FlagRecorder interface {
	Record(ctx context.Context, subjectID id.SubjectID, kind, note string, at time.Time) error
}

// Deps bundles the orchestrator's collaborators. Everything here is
// required except where noted on the matching option.
type Deps struct {
	Requests    store.Store
	Identity    IdentityResolver
	Consents    consentstore.Store
	Registry    *datacat.Registry
	Retention   *retention.Resolver
	Crypto      crypto.Service
	Exports     export.Store
	Tokens      *export.TokenCodec
	Disclosures disclosure.Store
	Flags       FlagRecorder
	Auditor     *audit.Publisher
	Logger      *slog.Logger
}

// Service is the DSR orchestrator.
type Service struct {
	deps Deps

	notifier notify.Sender
	enqueuer queue.Enqueuer
	metrics  *metrics.Metrics
	locks    *psync.ShardedMutex

	now           func() time.Time
	sla           time.Duration
	warningWindow time.Duration
	exportTTL     time.Duration
	notifyTimeout time.Duration
}

type Option func(*Service)

// WithClock overrides the time source; tests pin it to fixed instants.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSLA overrides the statutory response window (default 30 days).
func WithSLA(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sla = d
		}
	}
}

// WithWarningWindow overrides how close to the deadline warnings start.
func WithWarningWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.warningWindow = d
		}
	}
}

// WithExportTTL overrides the portability download window (default 7 days).
func WithExportTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.exportTTL = d
		}
	}
}

// WithNotifier sets the privacy team notification sender.
func WithNotifier(sender notify.Sender) Option {
	return func(s *Service) { s.notifier = sender }
}

// WithEnqueuer enables asynchronous hand-off of processing after submission.
// Without it, requests wait for the next scheduler sweep.
func WithEnqueuer(e queue.Enqueuer) Option {
	return func(s *Service) { s.enqueuer = e }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLocks shares a per-subject lock set with the consent service so
// erasure and cascading revocation serialize against each other.
func WithLocks(locks *psync.ShardedMutex) Option {
	return func(s *Service) {
		if locks != nil {
			s.locks = locks
		}
	}
}

func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		deps:          deps,
		locks:         psync.NewShardedMutex(),
		now:           time.Now,
		sla:           30 * 24 * time.Hour,
		warningWindow: 7 * 24 * time.Hour,
		exportTTL:     7 * 24 * time.Hour,
		notifyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput carries a new request.
type SubmitInput struct {
	Type        models.RequestType
	SubjectID   id.SubjectID
	RequesterID id.ActorID
	Notes       string
	// Corrections is required for rectification and ignored otherwise.
	Corrections map[string]string
}

// ProcessPayload is the queue message for asynchronous processing.
type ProcessPayload struct {
	RequestID id.RequestID `json:"request_id"`
}

// Submit registers a new data subject request. The requester must be the
// subject themself or a recorded guardian; the due date is fixed here and
// never moves.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Request, error) {
	if !in.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown request type")
	}
	if in.SubjectID.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject ID required")
	}
	if in.Type == models.TypeRectification && len(in.Corrections) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rectification requires corrections")
	}
	if err := s.authorize(ctx, in.SubjectID, in.RequesterID); err != nil {
		return nil, err
	}

	now := s.now()
	req := &models.Request{
		ID:          id.NewRequestID(),
		Type:        in.Type,
		SubjectID:   in.SubjectID,
		RequesterID: in.RequesterID,
		Status:      models.StatusPending,
		Notes:       in.Notes,
		Corrections: in.Corrections,
		SubmittedAt: now,
		DueDate:     now.Add(s.sla),
	}
	if err := s.deps.Requests.Save(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register request")
	}

	if s.metrics != nil {
		s.metrics.DSRSubmitted.WithLabelValues(string(in.Type)).Inc()
		s.metrics.DSROpenGauge.Inc()
	}
	s.emit(ctx, in.RequesterID, in.SubjectID, audit.ActionDSRSubmitted, string(req.ID), audit.OutcomeSuccess, string(in.Type), nil)
	s.enqueueProcess(ctx, req.ID)
	return req, nil
}

// enqueueProcess hands the request to the worker queue. A dispatch failure
// is non-fatal: the scheduler sweep picks up anything the queue dropped.
func (s *Service) enqueueProcess(ctx context.Context, requestID id.RequestID) {
	if s.enqueuer == nil {
		return
	}
	payload, err := json.Marshal(ProcessPayload{RequestID: requestID})
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "could not encode process payload", "request_id", requestID, "error", err)
		return
	}
	if err := s.enqueuer.Enqueue(ctx, queue.JobProcessDSR, payload); err != nil {
		s.deps.Logger.WarnContext(ctx, "queue dispatch failed, sweep will retry",
			"request_id", requestID, "error", err)
	}
}

// Withdraw lets the requester pull back a request that has not started
// processing. Withdrawing an already-withdrawn request is idempotent.
func (s *Service) Withdraw(ctx context.Context, requestID id.RequestID, actor id.ActorID) (*models.Request, error) {
	req, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, req.SubjectID, actor); err != nil {
		return nil, err
	}

	const withdrawnReason = "withdrawn by requester"
	if req.Status == models.StatusRejected && req.RejectionReason == withdrawnReason {
		return req, nil
	}
	if req.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeInvalidState, "only a pending request can be withdrawn")
	}

	req.Status = models.StatusRejected
	req.RejectionReason = withdrawnReason
	if err := s.deps.Requests.UpdateFrom(ctx, req, models.StatusPending); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "only a pending request can be withdrawn")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to withdraw request")
	}
	if s.metrics != nil {
		s.metrics.DSRRejected.WithLabelValues(string(req.Type)).Inc()
		s.metrics.DSROpenGauge.Dec()
	}
	s.emit(ctx, actor, req.SubjectID, audit.ActionDSRRejected, string(req.ID), audit.OutcomeSuccess, withdrawnReason, nil)
	return req, nil
}

// Get returns one request, restricted to the subject and their guardians.
func (s *Service) Get(ctx context.Context, requestID id.RequestID, actor id.ActorID) (*models.Request, error) {
	req, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, req.SubjectID, actor); err != nil {
		return nil, err
	}
	return req, nil
}

// ListBySubject returns the subject's requests, oldest first.
func (s *Service) ListBySubject(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) ([]*models.Request, error) {
	if err := s.authorize(ctx, subjectID, actor); err != nil {
		return nil, err
	}
	reqs, err := s.deps.Requests.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return reqs, nil
}

// Disclosures returns the subject's disclosure log.
func (s *Service) Disclosures(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) ([]disclosure.Record, error) {
	if err := s.authorize(ctx, subjectID, actor); err != nil {
		return nil, err
	}
	recs, err := s.deps.Disclosures.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read disclosure log")
	}
	return recs, nil
}

// Process runs one pending request to a terminal or retry-eligible state.
//
// A handler failure never strands the request in processing: permanent
// input failures reject it, anything else returns it to pending so the
// scheduler retries, and the privacy team is told either way.
func (s *Service) Process(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	req, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeInvalidState, "request is not awaiting processing")
	}

	// The claim is conditional on the stored status so the queue consumer
	// and the sweeper can never both take the same request.
	req.Status = models.StatusProcessing
	req.Attempts++
	if err := s.deps.Requests.UpdateFrom(ctx, req, models.StatusPending); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "request is not awaiting processing")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start processing")
	}
	s.emit(ctx, req.RequesterID, req.SubjectID, audit.ActionDSRProcessing, string(req.ID), audit.OutcomeSuccess, "", nil)

	if req.Type.Mutating() {
		key := string(req.SubjectID)
		s.locks.Lock(key)
		defer s.locks.Unlock(key)
	}

	started := s.now()
	result, err := s.dispatch(ctx, req)
	if err != nil {
		return s.failProcessing(ctx, req, err)
	}

	now := s.now()
	req.Status = models.StatusCompleted
	req.CompletedAt = &now
	req.Result = result
	if err := s.deps.Requests.Update(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete request")
	}
	if s.metrics != nil {
		s.metrics.DSRCompleted.WithLabelValues(string(req.Type)).Inc()
		s.metrics.DSRProcessTime.WithLabelValues(string(req.Type)).Observe(now.Sub(started).Seconds())
		s.metrics.DSROpenGauge.Dec()
	}
	s.emit(ctx, req.RequesterID, req.SubjectID, audit.ActionDSRCompleted, string(req.ID), audit.OutcomeSuccess, string(req.Type), nil)
	return req, nil
}

func (s *Service) dispatch(ctx context.Context, req *models.Request) (*models.Result, error) {
	switch req.Type {
	case models.TypeAccess:
		return s.handleAccess(ctx, req)
	case models.TypeErasure:
		return s.handleErasure(ctx, req)
	case models.TypePortability:
		return s.handlePortability(ctx, req)
	case models.TypeRectification:
		return s.handleRectification(ctx, req)
	case models.TypeRestriction, models.TypeObjection:
		return s.handleFlag(ctx, req)
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown request type")
	}
}

// failProcessing moves a failed request out of processing. Malformed input
// can never succeed on retry and rejects the request; anything else goes
// back to pending for the next sweep.
func (s *Service) failProcessing(ctx context.Context, req *models.Request, cause error) (*models.Request, error) {
	permanent := dErrors.HasCode(cause, dErrors.CodeInvalidField) ||
		dErrors.HasCode(cause, dErrors.CodeInvalidInput)

	if permanent {
		req.Status = models.StatusRejected
		req.RejectionReason = "request could not be fulfilled"
		if s.metrics != nil {
			s.metrics.DSRRejected.WithLabelValues(string(req.Type)).Inc()
			s.metrics.DSROpenGauge.Dec()
		}
		s.emit(ctx, req.RequesterID, req.SubjectID, audit.ActionDSRRejected, string(req.ID), audit.OutcomeFailure, cause.Error(), nil)
	} else {
		req.Status = models.StatusPending
		if s.metrics != nil {
			s.metrics.DSRRetried.Inc()
		}
		s.emit(ctx, req.RequesterID, req.SubjectID, audit.ActionDSRRetryScheduled, string(req.ID), audit.OutcomeFailure, cause.Error(), nil)
	}

	if err := s.deps.Requests.Update(ctx, req); err != nil {
		// Both writes failing leaves the request in processing; the sweep
		// report and this log line are the externally observable alarm.
		s.deps.Logger.ErrorContext(ctx, "could not record processing failure",
			"request_id", req.ID, "cause", cause, "error", err)
	}

	notify.SendBounded(ctx, s.notifier, notify.Notification{
		Recipient: "privacy-team",
		Channel:   notify.ChannelPrivacyTeam,
		Subject:   "Data subject request needs attention",
		Body:      fmt.Sprintf("Request %s (%s) failed processing on attempt %d.", req.ID, req.Type, req.Attempts),
		Metadata:  map[string]string{"request_id": string(req.ID), "type": string(req.Type)},
	}, s.notifyTimeout, s.deps.Logger)

	return nil, dErrors.Wrap(cause, dErrors.CodeInternal, "request processing failed")
}

// handleAccess gathers everything held about the subject, organized by
// category. Category handlers already exclude internal-only fields.
// Collection fans out across categories; the consent ledger is appended as
// its own section.
func (s *Service) handleAccess(ctx context.Context, req *models.Request) (*models.Result, error) {
	categories := s.deps.Registry.Categories()
	accessData := make(map[datacat.Category][]map[string]any, len(categories)+1)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range categories {
		c := c
		handler := s.deps.Registry.Handler(c)
		g.Go(func() error {
			rows, err := handler.Collect(gctx, string(req.SubjectID))
			if err != nil {
				return fmt.Errorf("collect %s: %w", c, err)
			}
			mu.Lock()
			accessData[c] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	consents, err := s.deps.Consents.ListBySubject(ctx, req.SubjectID, nil)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("collect consent ledger: %w", err)
	}
	now := s.now()
	ledger := make([]map[string]any, 0, len(consents))
	for _, rec := range consents {
		ledger = append(ledger, map[string]any{
			"consent_id": string(rec.ID),
			"type":       string(rec.Type),
			"status":     string(rec.ComputeStatus(now)),
			"purposes":   rec.Purposes,
			"version":    rec.Version,
			"granted_at": rec.GrantedAt,
			"expires_at": rec.ExpiresAt,
		})
	}
	accessData[categoryConsentLedger] = ledger

	s.recordDisclosure(ctx, req, "dsr_access", append(categories, categoryConsentLedger))
	return &models.Result{Access: accessData}, nil
}

// handleErasure deletes every deletable category and anonymizes the ones
// retention law keeps, atomically.
func (s *Service) handleErasure(ctx context.Context, req *models.Request) (*models.Result, error) {
	decision := s.deps.Retention.Resolve(s.deps.Registry.Categories())
	cascadeRes, err := s.deps.Registry.Cascade(ctx, string(req.SubjectID), datacat.Plan{
		Delete:    decision.CanDelete,
		Anonymize: decision.RetainedCategories(),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.CascadeRollbacks.Inc()
		}
		s.emit(ctx, req.RequesterID, req.SubjectID, audit.ActionCascadeRolledBack, string(req.ID), audit.OutcomeFailure, err.Error(), nil)
		return nil, fmt.Errorf("erasure cascade: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CascadeDeletions.Inc()
	}
	s.emit(ctx, req.RequesterID, req.SubjectID, audit.ActionCascadeDeleted, string(req.ID), audit.OutcomeSuccess, "", nil)

	retained := make([]models.RetainedCategory, 0, len(decision.MustRetain))
	for _, rule := range decision.MustRetain {
		retained = append(retained, models.RetainedCategory{
			Category:        rule.Category,
			LegalBasis:      rule.LegalBasis,
			MinDurationDays: rule.MinDurationDays,
		})
	}
	return &models.Result{Deleted: cascadeRes.Deleted, Retained: retained}, nil
}

// handlePortability exports the subject-provided categories as an encrypted
// artifact reachable through a signed, single-use, time-limited token.
func (s *Service) handlePortability(ctx context.Context, req *models.Request) (*models.Result, error) {
	categories := s.deps.Registry.SubjectProvidedCategories()
	data := make(map[datacat.Category][]map[string]any, len(categories))
	for _, c := range categories {
		rows, err := s.deps.Registry.Handler(c).Collect(ctx, string(req.SubjectID))
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", c, err)
		}
		data[c] = rows
	}

	now := s.now()
	payload, err := json.Marshal(map[string]any{
		"subject_id":   string(req.SubjectID),
		"generated_at": now,
		"data":         data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	ciphertext, err := s.deps.Crypto.Encrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("encrypt export: %w", err)
	}
	ref, err := s.deps.Crypto.GenerateSecureToken(24)
	if err != nil {
		return nil, fmt.Errorf("issue export ref: %w", err)
	}

	expiresAt := now.Add(s.exportTTL)
	if err := s.deps.Exports.Put(ctx, export.Artifact{
		Ref:         ref,
		SubjectID:   req.SubjectID,
		Ciphertext:  ciphertext,
		ContentType: "application/json",
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}
	token, err := s.deps.Tokens.Sign(ref, expiresAt)
	if err != nil {
		return nil, err
	}

	s.recordDisclosure(ctx, req, "dsr_portability", categories)
	return &models.Result{ExportRef: token}, nil
}

func (s *Service) handleRectification(ctx context.Context, req *models.Request) (*models.Result, error) {
	updated, err := s.deps.Identity.ApplyCorrections(ctx, req.SubjectID, req.Corrections)
	if err != nil {
		return nil, err
	}
	return &models.Result{UpdatedFields: updated}, nil
}

// handleFlag records a processing restriction or objection and routes it to
// the privacy team for manual review.
func (s *Service) handleFlag(ctx context.Context, req *models.Request) (*models.Result, error) {
	if err := s.deps.Flags.Record(ctx, req.SubjectID, string(req.Type), req.Notes, s.now()); err != nil {
		return nil, fmt.Errorf("record processing flag: %w", err)
	}
	notify.SendBounded(ctx, s.notifier, notify.Notification{
		Recipient: "privacy-team",
		Channel:   notify.ChannelPrivacyTeam,
		Subject:   "Processing " + string(req.Type) + " recorded",
		Body:      fmt.Sprintf("Subject %s filed a processing %s; review dependent pipelines.", req.SubjectID, req.Type),
		Metadata:  map[string]string{"request_id": string(req.ID)},
	}, s.notifyTimeout, s.deps.Logger)
	return &models.Result{RestrictionKind: string(req.Type)}, nil
}

// Download redeems a portability token. The artifact is removed on first
// redemption; expired, replayed, and forged tokens are all plain not-found.
func (s *Service) Download(ctx context.Context, token string) ([]byte, string, error) {
	ref, err := s.deps.Tokens.Verify(token)
	if err != nil {
		return nil, "", err
	}
	artifact, err := s.deps.Exports.Take(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", dErrors.New(dErrors.CodeNotFound, "export not found")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read export")
	}
	plaintext, err := s.deps.Crypto.Decrypt(artifact.Ciphertext)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to open export")
	}
	return plaintext, artifact.ContentType, nil
}

// CheckSLACompliance sweeps open requests and warns the privacy team about
// any close to or past its deadline, at most once per request per day.
// It returns how many warnings went out.
func (s *Service) CheckSLACompliance(ctx context.Context) (int, error) {
	open, err := s.deps.Requests.ListOpen(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan open requests")
	}

	now := s.now()
	warned := 0
	for _, req := range open {
		if !req.InWarningWindow(now, s.warningWindow) || req.WarnedToday(now) {
			continue
		}
		urgency := "approaching"
		if req.Overdue(now) {
			urgency = "past"
		}
		notify.SendBounded(ctx, s.notifier, notify.Notification{
			Recipient: "privacy-team",
			Channel:   notify.ChannelPrivacyTeam,
			Subject:   "Data subject request deadline " + urgency,
			Body:      fmt.Sprintf("Request %s (%s) is due %s and still %s.", req.ID, req.Type, req.DueDate.Format(time.RFC3339), req.Status),
			Metadata:  map[string]string{"request_id": string(req.ID), "due_date": req.DueDate.Format(time.RFC3339)},
		}, s.notifyTimeout, s.deps.Logger)

		// Guarded on the scanned status so a stale snapshot can never undo
		// a claim made since the scan.
		req.LastWarnedAt = &now
		if err := s.deps.Requests.UpdateFrom(ctx, req, req.Status); err != nil {
			s.deps.Logger.WarnContext(ctx, "could not record SLA warning", "request_id", req.ID, "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.SLAWarnings.Inc()
		}
		warned++
	}
	return warned, nil
}

// ProcessPending drains up to limit pending requests through Process. One
// request failing does not stop the batch; failures are already recorded on
// the request itself.
func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.deps.Requests.ListPending(ctx, limit)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan pending requests")
	}
	processed := 0
	for _, req := range pending {
		if _, err := s.Process(ctx, req.ID); err != nil {
			s.deps.Logger.WarnContext(ctx, "sweep processing failed",
				"request_id", req.ID, "type", req.Type, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *Service) recordDisclosure(ctx context.Context, req *models.Request, purpose string, categories []datacat.Category) {
	rec := disclosure.Record{
		ID:          id.NewDisclosureID(),
		SubjectID:   req.SubjectID,
		Recipient:   req.RequesterID,
		Purpose:     purpose,
		Categories:  categories,
		DisclosedAt: s.now(),
	}
	if err := s.deps.Disclosures.Append(ctx, rec); err != nil {
		s.deps.Logger.WarnContext(ctx, "could not record disclosure", "request_id", req.ID, "error", err)
		return
	}
	s.emit(ctx, req.RequesterID, req.SubjectID, audit.ActionDataDisclosed, string(req.ID), audit.OutcomeSuccess, purpose, nil)
}

func (s *Service) findRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	if requestID.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "request ID required")
	}
	req, err := s.deps.Requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read request")
	}
	return req, nil
}

// authorize admits the subject themself or a recorded guardian, for every
// request type. The rejection carries no detail; the audit trail does.
func (s *Service) authorize(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) error {
	if actor.IsEmpty() {
		return dErrors.New(dErrors.CodeUnauthorized, "request not authorized")
	}
	if actor == subjectID.Actor() {
		return nil
	}
	isGuardian, err := s.deps.Identity.IsGuardian(ctx, subjectID, actor)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeUnauthorized, "request not authorized")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check authorization")
	}
	if !isGuardian {
		return dErrors.New(dErrors.CodeUnauthorized, "request not authorized")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, actor id.ActorID, subject id.SubjectID, action, resourceID, outcome, reason string, detail map[string]string) {
	if s.deps.Auditor == nil {
		return
	}
	if err := s.deps.Auditor.Emit(ctx, audit.Event{
		ActorID:    actor,
		SubjectID:  subject,
		Action:     action,
		Resource:   audit.ResourceDSR,
		ResourceID: resourceID,
		Outcome:    outcome,
		Reason:     reason,
		Detail:     detail,
	}); err != nil {
		s.deps.Logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

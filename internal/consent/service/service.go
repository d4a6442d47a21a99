// Package service orchestrates the consent lifecycle: request creation with
// age-based guardian escalation, direct grants for adults, and revocation
// with cascading deletion for minors' core-processing consents.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"consentry/internal/audit"
	"consentry/internal/consent/models"
	"consentry/internal/consent/store"
	"consentry/internal/datacat"
	identitymodels "consentry/internal/identity/models"
	"consentry/internal/notify"
	"consentry/internal/platform/crypto"
	"consentry/internal/platform/metrics"
	"consentry/internal/retention"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
	psync "consentry/pkg/platform/sync"
)

// IdentityResolver is the single source of age and guardianship facts. The
// service branches on its output and never recomputes age itself.
type IdentityResolver interface {
	ResolveAge(ctx context.Context, subjectID id.SubjectID) (identitymodels.AgeProfile, error)
	IsGuardian(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) (bool, error)
	Guardians(ctx context.Context, subjectID id.SubjectID) ([]id.ActorID, error)
	Get(ctx context.Context, subjectID id.SubjectID) (*identitymodels.Subject, error)
}

const (
	challengeTTL        = 48 * time.Hour
	challengeCodeLength = 6
	challengeRefLength  = 16
)

// Service coordinates consent operations across the ledger, the identity
// resolver, and the deletion machinery.
type Service struct {
	store      store.Store
	challenges store.ChallengeStore
	identity   IdentityResolver
	retention  *retention.Resolver
	registry   *datacat.Registry
	crypto     crypto.Service

	auditor  *audit.Publisher
	notifier notify.Sender
	metrics  *metrics.Metrics
	locks    *psync.ShardedMutex
	logger   *slog.Logger

	now           func() time.Time
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

// WithNotifier sets the guardian notification sender.
func WithNotifier(sender notify.Sender) Option {
	return func(s *Service) { s.notifier = sender }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifyTimeout bounds each notification dispatch.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithLocks shares a per-subject lock set with the DSR orchestrator so
// cascading deletion and erasure serialize against each other.
func WithLocks(locks *psync.ShardedMutex) Option {
	return func(s *Service) {
		if locks != nil {
			s.locks = locks
		}
	}
}

func NewService(
	consents store.Store,
	challenges store.ChallengeStore,
	identity IdentityResolver,
	retentionResolver *retention.Resolver,
	registry *datacat.Registry,
	cryptoSvc crypto.Service,
	auditor *audit.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:         consents,
		challenges:    challenges,
		identity:      identity,
		retention:     retentionResolver,
		registry:      registry,
		crypto:        cryptoSvc,
		auditor:       auditor,
		logger:        logger,
		locks:         psync.NewShardedMutex(),
		now:           time.Now,
		notifyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConsentRequest carries the inputs for a new consent record.
type ConsentRequest struct {
	SubjectID   id.SubjectID
	Type        models.Type
	Purposes    []models.Purpose
	RequestedBy id.ActorID
}

// RequestOutcome is what the workflow hands back: the record in its initial
// state and, when verification is required, the challenge reference the
// caller relays to the verifying party. The challenge code itself travels
// out of band (guardian notification), never in the API response.
type RequestOutcome struct {
	Record    *models.Record
	Challenge *models.Challenge
}

// RequestConsent creates a new consent record.
//
// Minors always land in pending with guardian verification required. Adults
// are granted directly for self-grantable types; the parental type is never
// self-granted and goes through verification regardless of age.
func (s *Service) RequestConsent(ctx context.Context, req ConsentRequest) (RequestOutcome, error) {
	if err := s.validateRequest(req); err != nil {
		return RequestOutcome{}, err
	}
	requestedBy := req.RequestedBy
	if requestedBy.IsEmpty() {
		requestedBy = req.SubjectID.Actor()
	}
	if err := s.authorizeSubjectOrGuardian(ctx, req.SubjectID, requestedBy); err != nil {
		return RequestOutcome{}, err
	}

	profile, err := s.identity.ResolveAge(ctx, req.SubjectID)
	if err != nil {
		return RequestOutcome{}, err
	}

	if err := s.rejectDuplicatePending(ctx, req.SubjectID, req.Type); err != nil {
		return RequestOutcome{}, err
	}

	now := s.now()
	rec := &models.Record{
		ID:               id.NewConsentID(),
		SubjectID:        req.SubjectID,
		Type:             req.Type,
		Purposes:         append([]models.Purpose{}, req.Purposes...),
		GuardianRequired: profile.IsMinor,
		CreatedAt:        now,
	}

	needsVerification := profile.IsMinor || !req.Type.SelfGrantable()
	if !needsVerification {
		rec.Status = models.StatusGranted
		rec.GrantedBy = requestedBy
		rec.GrantedAt = &now
		if ttl := models.TTLFor(req.Type); ttl > 0 {
			expires := now.Add(ttl)
			rec.ExpiresAt = &expires
		}
		if err := s.store.Append(ctx, rec); err != nil {
			return RequestOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record consent")
		}
		s.countRequested(req.Type)
		s.countGranted(req.Type)
		s.emit(ctx, requestedBy, req.SubjectID, audit.ActionConsentGranted, string(rec.ID), audit.OutcomeSuccess, "self-granted", nil)
		return RequestOutcome{Record: rec}, nil
	}

	rec.Status = models.StatusPending
	if err := s.store.Append(ctx, rec); err != nil {
		return RequestOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record consent")
	}

	ch, err := s.issueChallenge(ctx, rec.ID, now)
	if err != nil {
		return RequestOutcome{}, err
	}

	if profile.IsMinor {
		s.notifyGuardians(ctx, req.SubjectID, rec, ch)
	}

	s.countRequested(req.Type)
	s.emit(ctx, requestedBy, req.SubjectID, audit.ActionConsentRequested, string(rec.ID), audit.OutcomeSuccess, "", map[string]string{
		"guardian_required": fmt.Sprintf("%t", rec.GuardianRequired),
		"challenge":         ch.Reference,
	})
	return RequestOutcome{Record: rec, Challenge: &ch}, nil
}

func (s *Service) validateRequest(req ConsentRequest) error {
	if req.SubjectID.IsEmpty() {
		return dErrors.New(dErrors.CodeInvalidInput, "subject ID required")
	}
	if !req.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown consent type")
	}
	if len(req.Purposes) == 0 {
		return dErrors.New(dErrors.CodeInvalidPurpose, "at least one purpose required")
	}
	for _, p := range req.Purposes {
		if !p.IsValid() {
			return dErrors.New(dErrors.CodeInvalidPurpose, "unknown purpose: "+string(p))
		}
	}
	return nil
}

// rejectDuplicatePending keeps a single live request per subject and type.
// Re-requesting after denial, revocation, or expiry is always allowed and
// appends the next version to the ledger.
func (s *Service) rejectDuplicatePending(ctx context.Context, subjectID id.SubjectID, t models.Type) error {
	latest, err := s.store.FindLatest(ctx, subjectID, t)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent ledger")
	}
	if latest.ComputeStatus(s.now()) == models.StatusPending {
		return dErrors.New(dErrors.CodeConflict, "a consent request for this type is already pending")
	}
	return nil
}

func (s *Service) issueChallenge(ctx context.Context, consentID id.ConsentID, now time.Time) (models.Challenge, error) {
	code, err := s.crypto.GenerateSecureToken(challengeCodeLength)
	if err != nil {
		return models.Challenge{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue verification challenge")
	}
	ref, err := s.crypto.GenerateSecureToken(challengeRefLength)
	if err != nil {
		return models.Challenge{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue verification challenge")
	}
	ch := models.Challenge{
		ConsentID: consentID,
		Reference: "chal_" + ref,
		Code:      code,
		Methods: []models.VerificationMethod{
			models.MethodEmailPlus,
			models.MethodKnowledgeBased,
			models.MethodDocumentUpload,
			models.MethodPaymentCard,
		},
		ExpiresAt: now.Add(challengeTTL),
	}
	if err := s.challenges.Save(ctx, ch); err != nil {
		return models.Challenge{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue verification challenge")
	}
	return ch, nil
}

func (s *Service) notifyGuardians(ctx context.Context, subjectID id.SubjectID, rec *models.Record, ch models.Challenge) {
	guardians, err := s.identity.Guardians(ctx, subjectID)
	if err != nil {
		s.logger.WarnContext(ctx, "could not resolve guardians for notification",
			"subject_id", subjectID, "consent_id", rec.ID, "error", err)
		return
	}
	if len(guardians) == 0 {
		s.logger.WarnContext(ctx, "minor has no recorded guardian to notify",
			"subject_id", subjectID, "consent_id", rec.ID)
		return
	}
	for _, g := range guardians {
		notify.SendBounded(ctx, s.notifier, notify.Notification{
			Recipient: string(g),
			Channel:   notify.ChannelGuardian,
			Subject:   "Consent approval needed",
			Body:      "A consent request for a child in your care is waiting for your verification. Use code " + ch.Code + " to approve or deny it.",
			Metadata: map[string]string{
				"consent_id":   string(rec.ID),
				"consent_type": string(rec.Type),
				"challenge":    ch.Reference,
			},
		}, s.notifyTimeout, s.logger)
	}
}

// RevocationResult reports what a revocation actually did. DataDeleted is
// true only when at least one data category was deleted or anonymized.
type RevocationResult struct {
	Record      *models.Record
	DataDeleted bool
}

// Revoke withdraws a consent on behalf of the subject or a recorded
// guardian. For a minor's core-processing consent, the dependent data
// categories are deleted (or anonymized where retention law forbids
// deletion) before the revocation is written; a deletion failure rolls back
// fully and fails the whole revocation.
//
// Revoking an already-revoked consent is idempotent and reports the stored
// record unchanged.
func (s *Service) Revoke(ctx context.Context, consentID id.ConsentID, revokedBy id.ActorID, reason string) (RevocationResult, error) {
	rec, err := s.findRecord(ctx, consentID)
	if err != nil {
		return RevocationResult{}, err
	}
	if err := s.authorizeSubjectOrGuardian(ctx, rec.SubjectID, revokedBy); err != nil {
		return RevocationResult{}, err
	}

	// Serialize against erasure processing for the same subject.
	key := string(rec.SubjectID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Re-read under the lock so a concurrent writer's version is visible.
	rec, err = s.findRecord(ctx, consentID)
	if err != nil {
		return RevocationResult{}, err
	}

	now := s.now()
	switch rec.ComputeStatus(now) {
	case models.StatusRevoked:
		return RevocationResult{Record: rec}, nil
	case models.StatusPending, models.StatusGranted:
		// revocable
	default:
		return RevocationResult{}, dErrors.New(dErrors.CodeInvalidState, "consent is not in a revocable state")
	}

	dataDeleted := false
	if s.cascadeRequired(rec, now) {
		deleted, err := s.cascade(ctx, rec, revokedBy)
		if err != nil {
			return RevocationResult{}, err
		}
		dataDeleted = deleted
	}

	next := rec.NextVersion()
	next.Status = models.StatusRevoked
	next.RevokedAt = &now
	next.RevokedBy = revokedBy
	next.RevocationReason = reason
	if err := s.store.AppendVersion(ctx, &next, rec.Version); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return RevocationResult{}, dErrors.New(dErrors.CodeConflict, "consent was modified concurrently")
		}
		return RevocationResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record revocation")
	}

	if s.metrics != nil {
		s.metrics.ConsentsRevoked.WithLabelValues(string(rec.Type)).Inc()
	}
	s.emit(ctx, revokedBy, rec.SubjectID, audit.ActionConsentRevoked, string(rec.ID), audit.OutcomeSuccess, reason, map[string]string{
		"data_deleted": fmt.Sprintf("%t", dataDeleted),
	})
	return RevocationResult{Record: &next, DataDeleted: dataDeleted}, nil
}

// cascadeRequired: consent belongs to a minor, covers core processing, and
// was actually in force. Revoking a still-pending request deletes nothing
// because no processing ever ran under it.
func (s *Service) cascadeRequired(rec *models.Record, now time.Time) bool {
	return rec.GuardianRequired &&
		rec.Type.CoversCoreProcessing() &&
		rec.ComputeStatus(now) == models.StatusGranted
}

func (s *Service) cascade(ctx context.Context, rec *models.Record, actor id.ActorID) (bool, error) {
	decision := s.retention.Resolve(s.registry.Categories())
	result, err := s.registry.Cascade(ctx, string(rec.SubjectID), datacat.Plan{
		Delete:    decision.CanDelete,
		Anonymize: decision.RetainedCategories(),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.CascadeRollbacks.Inc()
		}
		s.emit(ctx, actor, rec.SubjectID, audit.ActionCascadeRolledBack, string(rec.ID), audit.OutcomeFailure, err.Error(), nil)
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "cascading deletion failed; no data was removed")
	}
	if s.metrics != nil {
		s.metrics.CascadeDeletions.Inc()
	}
	s.emit(ctx, actor, rec.SubjectID, audit.ActionCascadeDeleted, string(rec.ID), audit.OutcomeSuccess, "", map[string]string{
		"deleted":    fmt.Sprintf("%v", result.Deleted),
		"anonymized": fmt.Sprintf("%v", result.Anonymized),
	})
	return result.Touched(), nil
}

// List returns the subject's latest consent records with lifecycle status
// evaluated at the current time. Only the subject or a recorded guardian
// may list.
func (s *Service) List(ctx context.Context, subjectID id.SubjectID, actor id.ActorID, filter *models.RecordFilter) ([]*models.Record, error) {
	if subjectID.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject ID required")
	}
	if err := s.authorizeSubjectOrGuardian(ctx, subjectID, actor); err != nil {
		return nil, err
	}
	records, err := s.store.ListBySubject(ctx, subjectID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	now := s.now()
	for _, rec := range records {
		rec.Status = rec.ComputeStatus(now)
	}
	return records, nil
}

// History returns the full append-only version trail for one subject and type.
func (s *Service) History(ctx context.Context, subjectID id.SubjectID, actor id.ActorID, t models.Type) ([]*models.Record, error) {
	if err := s.authorizeSubjectOrGuardian(ctx, subjectID, actor); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, subjectID, t)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no consent history for subject")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent history")
	}
	return versions, nil
}

// Get returns the latest version of one consent record, restricted to the
// subject and their guardians.
func (s *Service) Get(ctx context.Context, consentID id.ConsentID, actor id.ActorID) (*models.Record, error) {
	rec, err := s.findRecord(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeSubjectOrGuardian(ctx, rec.SubjectID, actor); err != nil {
		return nil, err
	}
	rec.Status = rec.ComputeStatus(s.now())
	return rec, nil
}

func (s *Service) findRecord(ctx context.Context, consentID id.ConsentID) (*models.Record, error) {
	if consentID.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "consent ID required")
	}
	rec, err := s.store.FindByID(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent")
	}
	return rec, nil
}

// authorizeSubjectOrGuardian admits the subject acting for themselves or a
// recorded guardian. The rejection message is deliberately generic; the
// audit trail keeps the detail.
func (s *Service) authorizeSubjectOrGuardian(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) error {
	if actor.IsEmpty() {
		return dErrors.New(dErrors.CodeUnauthorized, "request not authorized")
	}
	if actor == subjectID.Actor() {
		return nil
	}
	isGuardian, err := s.identity.IsGuardian(ctx, subjectID, actor)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check authorization")
	}
	if !isGuardian {
		return dErrors.New(dErrors.CodeUnauthorized, "request not authorized")
	}
	return nil
}

func (s *Service) countRequested(t models.Type) {
	if s.metrics != nil {
		s.metrics.ConsentsRequested.WithLabelValues(string(t)).Inc()
	}
}

func (s *Service) countGranted(t models.Type) {
	if s.metrics != nil {
		s.metrics.ConsentsGranted.WithLabelValues(string(t)).Inc()
	}
}

func (s *Service) emit(ctx context.Context, actor id.ActorID, subject id.SubjectID, action, resourceID, outcome, reason string, detail map[string]string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		ActorID:    actor,
		SubjectID:  subject,
		Action:     action,
		Resource:   audit.ResourceConsent,
		ResourceID: resourceID,
		Outcome:    outcome,
		Reason:     reason,
		Detail:     detail,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

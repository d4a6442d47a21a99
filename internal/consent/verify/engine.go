// Package verify transitions pending consent records through pluggable
// verification strategies. The engine owns the state machine; strategies
// only judge evidence.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/mssola/useragent"

	"consentry/internal/audit"
	"consentry/internal/consent/models"
	"consentry/internal/consent/store"
	"consentry/internal/platform/metrics"
	"consentry/internal/platform/privacy"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// GuardianChecker answers whether an actor has recorded guardian authority.
type GuardianChecker interface {
	IsGuardian(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) (bool, error)
}

// RequestContext carries the caller's network context. It feeds the audit
// trail (anonymized) so an external rate limiter can act on repeated
// failures; the engine itself never locks anyone out.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// Result is the verification outcome. A failed strategy is a negative
// result, not an error: the consent stays pending and the caller may retry.
type Result struct {
	Success bool
	Message string
}

// Engine dispatches verification attempts to strategies and applies the
// pending-to-granted transition under optimistic concurrency.
type Engine struct {
	store      store.Store
	challenges store.ChallengeStore
	guardians  GuardianChecker
	strategies map[models.VerificationMethod]Strategy

	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	now     func() time.Time
	timeout time.Duration
}

type EngineOption func(*Engine)

// WithClock overrides the time source; tests pin it to fixed instants.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTimeout bounds each strategy call. A strategy that does not answer in
// time counts as a failed attempt, never a hang.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithStrategy registers or replaces a single strategy.
func WithStrategy(s Strategy) EngineOption {
	return func(e *Engine) { e.strategies[s.Method()] = s }
}

func NewEngine(
	consents store.Store,
	challenges store.ChallengeStore,
	guardians GuardianChecker,
	auditor *audit.Publisher,
	logger *slog.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:      consents,
		challenges: challenges,
		guardians:  guardians,
		strategies: make(map[models.VerificationMethod]Strategy),
		auditor:    auditor,
		logger:     logger,
		now:        time.Now,
		timeout:    5 * time.Second,
	}
	for _, s := range DefaultStrategies(challenges) {
		e.strategies[s.Method()] = s
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify runs one verification attempt against a pending consent.
//
// On strategy success the record transitions to granted in a single
// compare-and-set append; when two attempts race, exactly one wins and the
// loser gets a conflict. On strategy failure the record stays pending and
// the attempt is logged with enough anonymized context for rate limiting.
func (e *Engine) Verify(ctx context.Context, consentID id.ConsentID, actor id.ActorID, method models.VerificationMethod, evidence Evidence, reqCtx RequestContext) (Result, error) {
	rec, err := e.pendingRecord(ctx, consentID)
	if err != nil {
		return Result{}, err
	}
	if err := e.authorizeVerifier(ctx, rec, actor); err != nil {
		return Result{}, err
	}

	strategy, ok := e.strategies[method]
	if !ok {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "unknown verification method")
	}

	passed, why := e.runStrategy(ctx, strategy, consentID, evidence)
	if !passed {
		e.recordFailure(ctx, rec, actor, method, why, reqCtx)
		return Result{Success: false, Message: "verification failed"}, nil
	}

	now := e.now()
	next := rec.NextVersion()
	next.Status = models.StatusGranted
	next.GrantedBy = actor
	next.GrantedAt = &now
	next.VerifiedAt = &now
	next.VerificationMethod = method
	if rec.GuardianRequired {
		next.ParentGuardianID = actor
	}
	if next.ExpiresAt == nil {
		if ttl := models.TTLFor(rec.Type); ttl > 0 {
			expires := now.Add(ttl)
			next.ExpiresAt = &expires
		}
	}

	if err := e.store.AppendVersion(ctx, &next, rec.Version); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Result{}, dErrors.New(dErrors.CodeConflict, "consent was modified concurrently")
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
	}

	if err := e.challenges.Delete(ctx, consentID); err != nil {
		e.logger.WarnContext(ctx, "could not clear verification challenge", "consent_id", consentID, "error", err)
	}

	e.count(method, "success")
	if e.metrics != nil {
		e.metrics.ConsentsGranted.WithLabelValues(string(rec.Type)).Inc()
	}
	e.emit(ctx, actor, rec.SubjectID, audit.ActionConsentVerified, string(rec.ID), audit.OutcomeSuccess, why, e.fingerprint(method, reqCtx))
	return Result{Success: true, Message: "consent verified"}, nil
}

// Deny records a guardian's refusal of a pending consent. Denial is
// terminal for this version; the subject may request again later.
func (e *Engine) Deny(ctx context.Context, consentID id.ConsentID, actor id.ActorID, reason string) (*models.Record, error) {
	rec, err := e.pendingRecord(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeVerifier(ctx, rec, actor); err != nil {
		return nil, err
	}

	next := rec.NextVersion()
	next.Status = models.StatusDenied
	next.DenialReason = reason
	if err := e.store.AppendVersion(ctx, &next, rec.Version); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "consent was modified concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record denial")
	}
	if err := e.challenges.Delete(ctx, consentID); err != nil {
		e.logger.WarnContext(ctx, "could not clear verification challenge", "consent_id", consentID, "error", err)
	}
	if e.metrics != nil {
		e.metrics.ConsentsDenied.WithLabelValues(string(rec.Type)).Inc()
	}
	e.emit(ctx, actor, rec.SubjectID, audit.ActionConsentDenied, string(rec.ID), audit.OutcomeDenied, reason, nil)
	return &next, nil
}

func (e *Engine) pendingRecord(ctx context.Context, consentID id.ConsentID) (*models.Record, error) {
	if consentID.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "consent ID required")
	}
	rec, err := e.store.FindByID(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent")
	}
	if rec.ComputeStatus(e.now()) != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeNotPending, "consent is not awaiting verification")
	}
	return rec, nil
}

// authorizeVerifier: guardian-required consents accept only a recorded
// guardian; everything else accepts only the subject themself.
func (e *Engine) authorizeVerifier(ctx context.Context, rec *models.Record, actor id.ActorID) error {
	if actor.IsEmpty() {
		return dErrors.New(dErrors.CodeUnauthorized, "request not authorized")
	}
	if rec.GuardianRequired {
		ok, err := e.guardians.IsGuardian(ctx, rec.SubjectID, actor)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check authorization")
		}
		if !ok {
			return dErrors.New(dErrors.CodeUnauthorized, "request not authorized")
		}
		return nil
	}
	if actor != rec.SubjectID.Actor() {
		return dErrors.New(dErrors.CodeUnauthorized, "request not authorized")
	}
	return nil
}

// runStrategy executes the strategy under the engine's deadline. The
// engine-owned consent_id key is forced so callers cannot spoof it.
func (e *Engine) runStrategy(ctx context.Context, strategy Strategy, consentID id.ConsentID, evidence Evidence) (bool, string) {
	scoped := make(Evidence, len(evidence)+1)
	for k, v := range evidence {
		scoped[k] = v
	}
	scoped[EvidenceKeyConsentID] = string(consentID)

	strategyCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		passed bool
		why    string
	}
	done := make(chan outcome, 1)
	go func() {
		passed, why := strategy.Verify(strategyCtx, scoped)
		done <- outcome{passed, why}
	}()
	select {
	case o := <-done:
		return o.passed, o.why
	case <-strategyCtx.Done():
		return false, "verification timed out"
	}
}

func (e *Engine) recordFailure(ctx context.Context, rec *models.Record, actor id.ActorID, method models.VerificationMethod, why string, reqCtx RequestContext) {
	e.count(method, "failure")
	e.emit(ctx, actor, rec.SubjectID, audit.ActionVerifyFailed, string(rec.ID), audit.OutcomeFailure, why, e.fingerprint(method, reqCtx))
}

// fingerprint builds the anonymized attempt context the audit trail keeps
// for downstream rate limiting. The raw IP never leaves this function.
func (e *Engine) fingerprint(method models.VerificationMethod, reqCtx RequestContext) map[string]string {
	detail := map[string]string{
		"method":     string(method),
		"ip_network": privacy.AnonymizeIP(reqCtx.IPAddress),
	}
	if reqCtx.UserAgent != "" {
		ua := useragent.New(reqCtx.UserAgent)
		name, version := ua.Browser()
		detail["browser"] = name + "/" + version
		detail["os"] = ua.OS()
		detail["mobile"] = strconv.FormatBool(ua.Mobile())
		detail["bot"] = strconv.FormatBool(ua.Bot())
	}
	return detail
}

func (e *Engine) count(method models.VerificationMethod, outcome string) {
	if e.metrics != nil {
		e.metrics.VerificationResults.WithLabelValues(string(method), outcome).Inc()
	}
}

func (e *Engine) emit(ctx context.Context, actor id.ActorID, subject id.SubjectID, action, resourceID, outcome, reason string, detail map[string]string) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Emit(ctx, audit.Event{
		ActorID:    actor,
		SubjectID:  subject,
		Action:     action,
		Resource:   audit.ResourceConsent,
		ResourceID: resourceID,
		Outcome:    outcome,
		Reason:     reason,
		Detail:     detail,
	}); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

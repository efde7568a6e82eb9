package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/ids"
	"github.com/spec-kit/credential-service/internal/observability"
	"github.com/spec-kit/credential-service/internal/repository"
	"github.com/spec-kit/credential-service/internal/vc"
)

// Check-in reasons for failures that happen before any credential is looked at.
const (
	ReasonTokenNotFound = "check-in code not recognised"
	ReasonTokenExpired  = "check-in code has expired, refresh and try again"
	ReasonTimeout       = "check-in timed out, please try again"
	ReasonUnavailable   = "check-in is temporarily unavailable"

	defaultCheckInTimeout = 3 * time.Second
)

// VerificationConfig bounds verification latency and selects the bundle policy.
type VerificationConfig struct {
	CheckInTimeout time.Duration
	StoreTimeout   time.Duration
	BundlePolicy   domain.BundlePolicy
}

// VerificationDependencies bundles collaborators for verification.
type VerificationDependencies struct {
	Credentials repository.CredentialStore
	Usage       repository.UsageLog
	Tokens      *TokenBroker
	Codec       *vc.Codec
	Dispatcher  events.Dispatcher
	Clock       clockwork.Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Config      VerificationConfig
}

// VerificationService runs the ordered decision pipeline for every verification call site.
type VerificationService struct {
	credentials repository.CredentialStore
	usage       repository.UsageLog
	tokens      *TokenBroker
	codec       *vc.Codec
	dispatcher  events.Dispatcher
	clock       clockwork.Clock
	logger      *zap.Logger
	metrics     *observability.Metrics
	cfg         VerificationConfig
}

// CredentialVerification is the outcome of verifying a single credential by id.
type CredentialVerification struct {
	CredentialID  string
	Decision      domain.Decision
	Credential    *domain.Credential
	UsedThisMonth int
	// UsesRemaining is nil when the benefit is uncapped.
	UsesRemaining *int
}

// Valid reports whether the decision admits the credential.
func (v *CredentialVerification) Valid() bool {
	return v.Decision == domain.DecisionValid
}

// CheckInCredential describes one admitted credential on the display payload.
type CheckInCredential struct {
	ID            string
	BenefitID     string
	BenefitName   string
	BenefitType   domain.BenefitType
	ValidUntil    time.Time
	UsesRemaining *int
}

// CheckInResult is what the scanning device shows.
type CheckInResult struct {
	Success       bool
	Decision      domain.Decision
	Reason        string
	Credentials   []CheckInCredential
	BenefitName   string
	UserName      string
	ExpiryDate    *time.Time
	UsesRemaining *int
	Denied        []*CredentialVerification
}

// NewVerificationService creates the service.
func NewVerificationService(deps VerificationDependencies) *VerificationService {
	cfg := deps.Config
	if cfg.CheckInTimeout <= 0 {
		cfg.CheckInTimeout = defaultCheckInTimeout
	}
	if !cfg.BundlePolicy.Valid() {
		cfg.BundlePolicy = domain.BundleAllOrNothing
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &VerificationService{
		credentials: deps.Credentials,
		usage:       deps.Usage,
		tokens:      deps.Tokens,
		codec:       deps.Codec,
		dispatcher:  deps.Dispatcher,
		clock:       clock,
		logger:      loggerOrNop(deps.Logger),
		metrics:     deps.Metrics,
		cfg:         cfg,
	}
}

// VerifySignature checks a bare signed credential with the issuer public key and its
// validity window only. No store is consulted.
func (s *VerificationService) VerifySignature(token string) (*vc.Verified, error) {
	return s.codec.VerifyAt(token, s.clock.Now())
}

// VerifyCredential looks a credential up and decides, in order: not found, signature,
// revoked, validity window, monthly cap. Store failures are returned as errors.
func (s *VerificationService) VerifyCredential(ctx context.Context, id string) (res *CredentialVerification, err error) {
	ctx, span := observability.StartSpan(ctx, "VerificationService.VerifyCredential",
		attribute.String("credential.id", id))
	defer func() {
		if res != nil {
			span.SetAttributes(attribute.String("decision", string(res.Decision)))
		}
		observability.EndSpan(span, err)
	}()

	res, err = s.verify(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDecision(string(res.Decision))
	return res, nil
}

func (s *VerificationService) verify(ctx context.Context, id string) (*CredentialVerification, error) {
	res := &CredentialVerification{CredentialID: id}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	cred, err := s.credentials.Get(storeCtx, id)
	cancel()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		res.Decision = domain.DecisionNotFound
		return res, nil
	case err != nil:
		return nil, storeUnavailable(err)
	}
	res.Credential = cred

	verified, err := s.codec.Verify(cred.SignedToken)
	if err != nil || verified.CredentialID() != cred.ID {
		s.logger.Warn("credential signature check failed",
			zap.String("credential_id", cred.ID),
			zap.Error(err),
		)
		res.Decision = domain.DecisionSignatureInvalid
		return res, nil
	}

	now := s.clock.Now()
	if cred.Status == domain.CredentialStatusRevoked {
		res.Decision = domain.DecisionRevoked
		return res, nil
	}
	if !cred.WithinValidity(now) {
		res.Decision = domain.DecisionExpired
		return res, nil
	}

	benefit := cred.Subject.Benefit
	if benefit.Capped() {
		storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
		used, err := s.usage.CountThisMonth(storeCtx, benefit.ID, cred.HolderDID(), domain.UsagePeriod(now))
		cancel()
		if err != nil {
			return nil, storeUnavailable(err)
		}
		res.UsedThisMonth = used
		remaining := benefit.MaxUsesPerMonth - used
		if remaining <= 0 {
			remaining = 0
			res.UsesRemaining = &remaining
			res.Decision = domain.DecisionUsageExceeded
			return res, nil
		}
		res.UsesRemaining = &remaining
	}

	res.Decision = domain.DecisionValid
	return res, nil
}

// CheckIn resolves a scanned token, verifies every credential behind it and records usage.
// The returned error is only set for timeouts and store failures; every other outcome is a
// denied result carrying a user-facing reason.
func (s *VerificationService) CheckIn(ctx context.Context, token string) (res *CheckInResult, err error) {
	start := s.clock.Now()
	ctx, span := observability.StartSpan(ctx, "VerificationService.CheckIn",
		attribute.String("bundle.policy", string(s.cfg.BundlePolicy)))
	defer func() {
		outcome := "error"
		if res != nil {
			outcome = "accepted"
			if !res.Success {
				outcome = string(res.Decision)
			}
			span.SetAttributes(attribute.Bool("checkin.success", res.Success))
		}
		s.metrics.RecordCheckIn(outcome, s.clock.Since(start))
		observability.EndSpan(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckInTimeout)
	defer cancel()

	tok, err := s.tokens.ResolveKind(ctx, token, domain.TokenKindCheckIn)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.deny(ctx, nil, domain.DecisionNotFound, ReasonTokenNotFound, nil), nil
	case errors.Is(err, domain.ErrExpired):
		return s.deny(ctx, nil, domain.DecisionExpired, ReasonTokenExpired, nil), nil
	case err != nil:
		return nil, s.checkInError(ctx, err)
	}

	credIDs := tok.CredentialIDs
	verifications, err := s.verifyAll(ctx, credIDs)
	if err != nil {
		return nil, s.checkInError(ctx, err)
	}

	admitted, denied := partition(verifications)
	if len(admitted) == 0 || (s.cfg.BundlePolicy == domain.BundleAllOrNothing && len(denied) > 0) {
		first := denied[0].Decision
		return s.deny(ctx, credIDs, first, first.Reason(), denied), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, s.checkInError(ctx, err)
	}
	admitted, denied, err = s.recordUsage(ctx, admitted, denied)
	if err != nil {
		return nil, s.checkInError(ctx, err)
	}
	if len(admitted) == 0 {
		return s.deny(ctx, credIDs, domain.DecisionUsageExceeded, domain.DecisionUsageExceeded.Reason(), denied), nil
	}

	res = buildCheckInResult(admitted, denied)
	s.publishCheckIn(ctx, events.EventCheckInAccepted, credIDs, res)
	s.logger.Info("check-in accepted",
		zap.Int("admitted", len(admitted)),
		zap.Int("denied", len(denied)),
	)
	return res, nil
}

// verifyAll runs VerifyCredential for each id concurrently. Results keep the input order.
func (s *VerificationService) verifyAll(ctx context.Context, credIDs []string) ([]*CredentialVerification, error) {
	results := make([]*CredentialVerification, len(credIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range credIDs {
		i, id := i, id
		g.Go(func() error {
			res, err := s.VerifyCredential(gctx, id)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// recordUsage is the last step of a check-in. All-or-nothing bundles commit in one batch;
// best-effort bundles commit each credential on its own and drop the ones that hit the cap.
func (s *VerificationService) recordUsage(ctx context.Context, admitted, denied []*CredentialVerification) ([]*CredentialVerification, []*CredentialVerification, error) {
	now := s.clock.Now().UTC()
	records := make([]domain.UsageRecord, len(admitted))
	for i, v := range admitted {
		cred := v.Credential
		records[i] = domain.UsageRecord{
			Event: domain.CheckInEvent{
				ID:           ids.NewEventID(now),
				CredentialID: cred.ID,
				BenefitID:    cred.BenefitID(),
				HolderDID:    cred.HolderDID(),
				Period:       domain.UsagePeriod(now),
				OccurredAt:   now,
			},
			Cap: cred.Subject.Benefit.MaxUsesPerMonth,
		}
	}

	if s.cfg.BundlePolicy == domain.BundleAllOrNothing {
		storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
		counts, err := s.usage.RecordCheckIns(storeCtx, records)
		cancel()
		if errors.Is(err, domain.ErrUsageExceeded) {
			for _, v := range admitted {
				v.Decision = domain.DecisionUsageExceeded
			}
			return nil, append(denied, admitted...), nil
		}
		if err != nil {
			return nil, nil, storeUnavailable(err)
		}
		for i, v := range admitted {
			applyCount(v, counts[i])
		}
		return admitted, denied, nil
	}

	kept := admitted[:0:0]
	for i, v := range admitted {
		storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
		count, err := s.usage.Record(storeCtx, records[i])
		cancel()
		if errors.Is(err, domain.ErrUsageExceeded) {
			v.Decision = domain.DecisionUsageExceeded
			denied = append(denied, v)
			continue
		}
		if err != nil {
			return nil, nil, storeUnavailable(err)
		}
		applyCount(v, count)
		kept = append(kept, v)
	}
	return kept, denied, nil
}

func applyCount(v *CredentialVerification, count int) {
	v.UsedThisMonth = count
	if limit := v.Credential.Subject.Benefit.MaxUsesPerMonth; limit > 0 {
		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		v.UsesRemaining = &remaining
	}
}

func partition(all []*CredentialVerification) (admitted, denied []*CredentialVerification) {
	for _, v := range all {
		if v.Valid() {
			admitted = append(admitted, v)
		} else {
			denied = append(denied, v)
		}
	}
	return admitted, denied
}

func buildCheckInResult(admitted, denied []*CredentialVerification) *CheckInResult {
	res := &CheckInResult{
		Success:     true,
		Decision:    domain.DecisionValid,
		Credentials: make([]CheckInCredential, 0, len(admitted)),
		Denied:      denied,
	}
	names := make([]string, 0, len(admitted))
	for _, v := range admitted {
		cred := v.Credential
		benefit := cred.Subject.Benefit
		res.Credentials = append(res.Credentials, CheckInCredential{
			ID:            cred.ID,
			BenefitID:     benefit.ID,
			BenefitName:   benefit.Name,
			BenefitType:   benefit.Type,
			ValidUntil:    cred.ValidUntil,
			UsesRemaining: v.UsesRemaining,
		})
		names = append(names, benefit.Name)
		if res.UserName == "" {
			res.UserName = cred.Subject.HolderName
		}
		if res.ExpiryDate == nil || cred.ValidUntil.Before(*res.ExpiryDate) {
			until := cred.ValidUntil
			res.ExpiryDate = &until
		}
		if v.UsesRemaining != nil && (res.UsesRemaining == nil || *v.UsesRemaining < *res.UsesRemaining) {
			remaining := *v.UsesRemaining
			res.UsesRemaining = &remaining
		}
	}
	res.BenefitName = strings.Join(names, ", ")
	return res
}

func (s *VerificationService) deny(ctx context.Context, credIDs []string, decision domain.Decision, reason string, denied []*CredentialVerification) *CheckInResult {
	res := &CheckInResult{Decision: decision, Reason: reason, Denied: denied}
	for _, v := range denied {
		if v.Decision == domain.DecisionSignatureInvalid {
			s.logger.Error("check-in denied: credential failed signature verification",
				zap.String("credential_id", v.CredentialID))
		}
	}
	s.logger.Info("check-in denied", zap.String("decision", string(decision)))
	s.publishCheckIn(ctx, events.EventCheckInDenied, credIDs, res)
	return res
}

func (s *VerificationService) checkInError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("check-in deadline exceeded", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrCheckInTimeout, err)
	}
	s.logger.Error("check-in failed", zap.Error(err))
	return storeUnavailable(err)
}

func (s *VerificationService) publishCheckIn(ctx context.Context, typ events.EventType, credIDs []string, res *CheckInResult) {
	if s.dispatcher == nil {
		return
	}
	admitted := make([]string, 0, len(res.Credentials))
	for _, c := range res.Credentials {
		admitted = append(admitted, c.ID)
	}
	subject := ""
	if len(credIDs) > 0 {
		subject = credIDs[0]
	}
	now := s.clock.Now().UTC()
	err := s.dispatcher.Publish(context.WithoutCancel(ctx), events.Event{
		ID:        ids.NewEventID(now),
		Type:      typ,
		Subject:   subject,
		Timestamp: now,
		Payload: events.CheckInPayload{
			CredentialIDs: credIDs,
			Admitted:      admitted,
			Decision:      res.Decision,
			Reason:        res.Reason,
		},
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(typ)), zap.Error(err))
	}
}

func storeUnavailable(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

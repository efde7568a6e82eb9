package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/ids"
	"github.com/spec-kit/credential-service/internal/repository"
	"github.com/spec-kit/credential-service/internal/vc"
)

// IssuerService builds, signs and persists credentials and handles revocation.
type IssuerService struct {
	credentials  repository.CredentialStore
	tokens       *TokenBroker
	codec        *vc.Codec
	dispatcher   events.Dispatcher
	clock        clockwork.Clock
	logger       *zap.Logger
	storeTimeout time.Duration
}

// IssuerDependencies bundles collaborators for the issuer service.
type IssuerDependencies struct {
	Credentials  repository.CredentialStore
	Tokens       *TokenBroker
	Codec        *vc.Codec
	Dispatcher   events.Dispatcher
	Clock        clockwork.Clock
	Logger       *zap.Logger
	StoreTimeout time.Duration
}

// IssueInput describes one credential to issue. A zero ValidFrom means now.
type IssueInput struct {
	Subject    domain.SubjectClaims
	ValidFrom  time.Time
	ValidUntil time.Time
}

// MembershipInput issues one credential per benefit of a membership.
type MembershipInput struct {
	HolderDID    string
	HolderName   string
	MembershipID string
	Gym          domain.GymInfo
	Benefits     []domain.BenefitClaims
	Extensions   map[string]string
	ValidFrom    time.Time
	ValidUntil   time.Time
}

// MembershipIssuance is the result of IssueMembership.
type MembershipIssuance struct {
	Credentials []*domain.Credential
	Token       *domain.ReferenceToken
}

// ReissueInput overrides fields of the credential being reissued. Nil fields are carried over.
type ReissueInput struct {
	HolderName *string
	Benefit    *domain.BenefitClaims
	Gym        *domain.GymInfo
	Extensions map[string]string
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// NewIssuerService creates the service.
func NewIssuerService(deps IssuerDependencies) *IssuerService {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IssuerService{
		credentials:  deps.Credentials,
		tokens:       deps.Tokens,
		codec:        deps.Codec,
		dispatcher:   deps.Dispatcher,
		clock:        clock,
		logger:       loggerOrNop(deps.Logger),
		storeTimeout: deps.StoreTimeout,
	}
}

// Issue validates, signs and stores a single credential.
func (s *IssuerService) Issue(ctx context.Context, in IssueInput) (*domain.Credential, error) {
	return s.issue(ctx, in, "")
}

func (s *IssuerService) issue(ctx context.Context, in IssueInput, reissuedFrom string) (*domain.Credential, error) {
	now := s.clock.Now().UTC().Truncate(time.Second)
	validFrom := in.ValidFrom.UTC().Truncate(time.Second)
	if in.ValidFrom.IsZero() {
		validFrom = now
	}
	validUntil := in.ValidUntil.UTC().Truncate(time.Second)
	if !validFrom.Before(validUntil) {
		return nil, fmt.Errorf("%w: validFrom must be before validUntil", domain.ErrInvalidInput)
	}
	if err := in.Subject.Validate(); err != nil {
		return nil, err
	}

	cred := &domain.Credential{
		ID:         ids.NewCredentialID(),
		Issuer:     s.codec.Issuer(),
		Types:      vc.Types(in.Subject.Benefit.Type),
		Subject:    in.Subject,
		Status:     domain.CredentialStatusActive,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		IssuedAt:   now,
	}

	signed, err := s.codec.Sign(cred)
	if err != nil {
		return nil, err
	}
	cred.SignedToken = signed

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.credentials.Save(storeCtx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	s.logger.Info("credential issued",
		zap.String("credential_id", cred.ID),
		zap.String("benefit_id", cred.BenefitID()),
		zap.Time("valid_until", cred.ValidUntil),
	)
	s.publish(ctx, events.EventCredentialIssued, cred.ID, events.CredentialIssuedPayload{
		CredentialID: cred.ID,
		HolderDID:    cred.HolderDID(),
		BenefitID:    cred.BenefitID(),
		BenefitType:  cred.Subject.Benefit.Type,
		ValidUntil:   cred.ValidUntil,
		ReissuedFrom: reissuedFrom,
	})
	return cred, nil
}

// IssueMembership issues one credential per benefit and a check-in token bundling all of them.
// Validation runs for every benefit before anything is signed.
func (s *IssuerService) IssueMembership(ctx context.Context, in MembershipInput) (*MembershipIssuance, error) {
	if len(in.Benefits) == 0 {
		return nil, fmt.Errorf("%w: at least one benefit is required", domain.ErrInvalidInput)
	}
	if len(in.Benefits) > MaxBundleSize {
		return nil, fmt.Errorf("%w: at most %d benefits per membership", domain.ErrInvalidInput, MaxBundleSize)
	}

	inputs := make([]IssueInput, 0, len(in.Benefits))
	seen := make(map[string]struct{}, len(in.Benefits))
	for _, benefit := range in.Benefits {
		if _, dup := seen[benefit.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate benefit %s", domain.ErrInvalidInput, benefit.ID)
		}
		seen[benefit.ID] = struct{}{}
		subject := domain.SubjectClaims{
			ID:           in.HolderDID,
			HolderName:   in.HolderName,
			MembershipID: in.MembershipID,
			Benefit:      benefit,
			Gym:          in.Gym,
			Extensions:   in.Extensions,
		}
		if err := subject.Validate(); err != nil {
			return nil, fmt.Errorf("benefit %s: %w", benefit.ID, err)
		}
		inputs = append(inputs, IssueInput{Subject: subject, ValidFrom: in.ValidFrom, ValidUntil: in.ValidUntil})
	}

	out := &MembershipIssuance{Credentials: make([]*domain.Credential, 0, len(inputs))}
	credIDs := make([]string, 0, len(inputs))
	for _, input := range inputs {
		cred, err := s.Issue(ctx, input)
		if err != nil {
			return nil, err
		}
		out.Credentials = append(out.Credentials, cred)
		credIDs = append(credIDs, cred.ID)
	}

	tok, err := s.tokens.MintCheckIn(ctx, credIDs)
	if err != nil {
		return nil, err
	}
	out.Token = tok
	return out, nil
}

// Reissue issues a fresh credential from an existing one plus overrides. The old credential
// is left untouched; revoke it separately if needed.
func (s *IssuerService) Reissue(ctx context.Context, id string, in ReissueInput) (*domain.Credential, error) {
	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	subject := old.Subject
	if in.HolderName != nil {
		subject.HolderName = strings.TrimSpace(*in.HolderName)
	}
	if in.Benefit != nil {
		subject.Benefit = *in.Benefit
	}
	if in.Gym != nil {
		subject.Gym = *in.Gym
	}
	if in.Extensions != nil {
		subject.Extensions = in.Extensions
	}

	input := IssueInput{Subject: subject, ValidFrom: old.ValidFrom, ValidUntil: old.ValidUntil}
	if in.ValidFrom != nil {
		input.ValidFrom = *in.ValidFrom
	}
	if in.ValidUntil != nil {
		input.ValidUntil = *in.ValidUntil
	}
	return s.issue(ctx, input, old.ID)
}

// Revoke moves an active credential to revoked. Revoking twice is a conflict.
func (s *IssuerService) Revoke(ctx context.Context, id string, reason *string) (*domain.Credential, error) {
	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		reason = &trimmed
		if trimmed == "" {
			reason = nil
		}
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	now := s.clock.Now().UTC()
	if err := s.credentials.SetStatus(storeCtx, id, domain.CredentialStatusRevoked, reason, now); err != nil {
		return nil, err
	}

	s.logger.Info("credential revoked", zap.String("credential_id", id))
	s.publish(ctx, events.EventCredentialRevoked, id, events.CredentialRevokedPayload{
		CredentialID: id,
		Reason:       reason,
	})
	return s.Get(ctx, id)
}

// Get loads a credential record.
func (s *IssuerService) Get(ctx context.Context, id string) (*domain.Credential, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.credentials.Get(storeCtx, id)
}

func (s *IssuerService) publish(ctx context.Context, typ events.EventType, subject string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	now := s.clock.Now().UTC()
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        ids.NewEventID(now),
		Type:      typ,
		Subject:   subject,
		Timestamp: now,
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(typ)), zap.Error(err))
	}
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/repository"
)

const defaultMaxShareHours = 720

// ShareService hands out long-lived links that let a third party view one credential.
type ShareService struct {
	credentials  repository.CredentialStore
	tokens       *TokenBroker
	verifier     *VerificationService
	logger       *zap.Logger
	maxHours     int
	storeTimeout time.Duration
}

// ShareDependencies bundles collaborators for sharing.
type ShareDependencies struct {
	Credentials  repository.CredentialStore
	Tokens       *TokenBroker
	Verifier     *VerificationService
	Logger       *zap.Logger
	MaxHours     int
	StoreTimeout time.Duration
}

// SharedCredential is what a share link shows. Link liveness and credential validity are
// reported independently.
type SharedCredential struct {
	Token        *domain.ReferenceToken
	Verification *CredentialVerification
}

// NewShareService creates the service.
func NewShareService(deps ShareDependencies) *ShareService {
	maxHours := deps.MaxHours
	if maxHours <= 0 {
		maxHours = defaultMaxShareHours
	}
	return &ShareService{
		credentials:  deps.Credentials,
		tokens:       deps.Tokens,
		verifier:     deps.Verifier,
		logger:       loggerOrNop(deps.Logger),
		maxHours:     maxHours,
		storeTimeout: deps.StoreTimeout,
	}
}

// CreateShare mints a share token for an existing credential, valid for hours.
func (s *ShareService) CreateShare(ctx context.Context, credentialID string, hours int) (*domain.ReferenceToken, error) {
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return nil, fmt.Errorf("%w: credential id is required", domain.ErrInvalidInput)
	}
	if hours < 1 || hours > s.maxHours {
		return nil, fmt.Errorf("%w: expiresInHours must be between 1 and %d", domain.ErrInvalidInput, s.maxHours)
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	_, err := s.credentials.Get(storeCtx, credentialID)
	cancel()
	if err != nil {
		return nil, err
	}

	tok, err := s.tokens.Mint(ctx, []string{credentialID}, domain.TokenKindShare, time.Duration(hours)*time.Hour)
	if err != nil {
		return nil, err
	}
	s.logger.Info("share link created",
		zap.String("credential_id", credentialID),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}

// ResolveShare returns the credential id behind a live share token.
func (s *ShareService) ResolveShare(ctx context.Context, token string) (string, error) {
	tok, err := s.tokens.ResolveKind(ctx, token, domain.TokenKindShare)
	if err != nil {
		return "", err
	}
	if len(tok.CredentialIDs) != 1 {
		return "", fmt.Errorf("%w: share token without a single credential", domain.ErrNotFound)
	}
	return tok.CredentialIDs[0], nil
}

// ViewShare resolves the link and verifies the credential without recording any usage.
func (s *ShareService) ViewShare(ctx context.Context, token string) (*SharedCredential, error) {
	tok, err := s.tokens.ResolveKind(ctx, token, domain.TokenKindShare)
	if err != nil {
		return nil, err
	}
	if len(tok.CredentialIDs) != 1 {
		return nil, fmt.Errorf("%w: share token without a single credential", domain.ErrNotFound)
	}
	verification, err := s.verifier.VerifyCredential(ctx, tok.CredentialIDs[0])
	if err != nil {
		return nil, err
	}
	return &SharedCredential{Token: tok, Verification: verification}, nil
}

package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/observability"
	"github.com/spec-kit/credential-service/internal/repository"
)

// TokenAlphabet is QR-alphanumeric friendly and drops 0/O and 1/I. Its 32 symbols map
// onto 5 bits each, so drawing from random bytes has no modulo bias.
const TokenAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	// MaxBundleSize caps how many credentials one reference token may stand for.
	MaxBundleSize = 32

	mintAttempts         = 5
	defaultCheckInLength = 10
	defaultShareLength   = 32
	defaultCheckInTTL    = 60 * time.Second
)

// ErrTokenCollision is returned when every minting attempt collided with an existing token.
var ErrTokenCollision = errors.New("reference token collision")

// TokenBrokerConfig tunes token shape and resolution.
type TokenBrokerConfig struct {
	CheckInTTL    time.Duration
	CheckInLength int
	ShareLength   int
	// SingleUse makes a check-in token redeemable once; share tokens are unaffected.
	SingleUse    bool
	StoreTimeout time.Duration
}

// TokenBrokerDependencies bundles collaborators for the broker.
type TokenBrokerDependencies struct {
	Store   repository.ReferenceTokenStore
	Clock   clockwork.Clock
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Config  TokenBrokerConfig
}

// TokenBroker mints and resolves opaque reference tokens.
type TokenBroker struct {
	store   repository.ReferenceTokenStore
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
	cfg     TokenBrokerConfig
}

// NewTokenBroker builds a broker, filling unset config with defaults.
func NewTokenBroker(deps TokenBrokerDependencies) *TokenBroker {
	cfg := deps.Config
	if cfg.CheckInTTL <= 0 {
		cfg.CheckInTTL = defaultCheckInTTL
	}
	if cfg.CheckInLength <= 0 {
		cfg.CheckInLength = defaultCheckInLength
	}
	if cfg.ShareLength <= 0 {
		cfg.ShareLength = defaultShareLength
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenBroker{
		store:   deps.Store,
		clock:   clock,
		logger:  loggerOrNop(deps.Logger),
		metrics: deps.Metrics,
		cfg:     cfg,
	}
}

// SingleUse reports whether check-in tokens are redeemed on first resolution.
func (b *TokenBroker) SingleUse() bool {
	return b.cfg.SingleUse
}

// Mint creates a token standing in for ids. Share tokens carry exactly one id.
func (b *TokenBroker) Mint(ctx context.Context, ids []string, kind domain.TokenKind, ttl time.Duration) (*domain.ReferenceToken, error) {
	if err := validateMint(ids, kind, ttl); err != nil {
		return nil, err
	}

	length := b.cfg.CheckInLength
	if kind == domain.TokenKindShare {
		length = b.cfg.ShareLength
	}

	for attempt := 1; attempt <= mintAttempts; attempt++ {
		value, err := GenerateToken(length)
		if err != nil {
			return nil, err
		}
		now := b.clock.Now().UTC()
		tok := &domain.ReferenceToken{
			Token:         value,
			Kind:          kind,
			CredentialIDs: append([]string(nil), ids...),
			CreatedAt:     now,
			ExpiresAt:     now.Add(ttl),
		}

		storeCtx, cancel := withStoreTimeout(ctx, b.cfg.StoreTimeout)
		err = b.store.Create(storeCtx, tok)
		cancel()
		if err == nil {
			b.metrics.RecordTokenMinted(string(kind))
			return tok, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("create reference token: %w", err)
		}
		b.logger.Warn("reference token collision, redrawing", zap.Int("attempt", attempt))
	}
	return nil, ErrTokenCollision
}

// MintCheckIn creates a check-in token with the configured TTL.
func (b *TokenBroker) MintCheckIn(ctx context.Context, ids []string) (*domain.ReferenceToken, error) {
	return b.Mint(ctx, ids, domain.TokenKindCheckIn, b.cfg.CheckInTTL)
}

// Resolve returns the credential ids behind any live token. It is idempotent unless the
// token is a check-in token and SingleUse is set.
func (b *TokenBroker) Resolve(ctx context.Context, token string) ([]string, error) {
	tok, err := b.resolve(ctx, token, "")
	if err != nil {
		return nil, err
	}
	return tok.CredentialIDs, nil
}

// ResolveKind is Resolve restricted to one token kind. A token of another kind is reported
// as not found.
func (b *TokenBroker) ResolveKind(ctx context.Context, token string, kind domain.TokenKind) (*domain.ReferenceToken, error) {
	return b.resolve(ctx, token, kind)
}

func (b *TokenBroker) resolve(ctx context.Context, token string, kind domain.TokenKind) (*domain.ReferenceToken, error) {
	token, ok := NormalizeToken(token)
	if !ok {
		b.metrics.RecordTokenResolved("malformed")
		return nil, fmt.Errorf("%w: malformed reference token", domain.ErrNotFound)
	}

	storeCtx, cancel := withStoreTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()

	tok, err := b.store.Get(storeCtx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.metrics.RecordTokenResolved("not_found")
		}
		return nil, err
	}
	if kind != "" && tok.Kind != kind {
		b.metrics.RecordTokenResolved("wrong_kind")
		return nil, fmt.Errorf("%w: reference token kind %s", domain.ErrNotFound, tok.Kind)
	}

	now := b.clock.Now()
	if tok.ExpiredAt(now) {
		b.metrics.RecordTokenResolved("expired")
		return nil, domain.ErrExpired
	}

	if b.cfg.SingleUse && tok.Kind == domain.TokenKindCheckIn {
		tok, err = b.store.Consume(storeCtx, token, now)
		switch {
		case errors.Is(err, domain.ErrConflict):
			b.metrics.RecordTokenResolved("redeemed")
			return nil, fmt.Errorf("%w: reference token already redeemed", domain.ErrNotFound)
		case err != nil:
			return nil, err
		}
	}

	b.metrics.RecordTokenResolved("ok")
	return tok, nil
}

func validateMint(ids []string, kind domain.TokenKind, ttl time.Duration) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown token kind %q", domain.ErrInvalidInput, kind)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one credential id is required", domain.ErrInvalidInput)
	}
	if len(ids) > MaxBundleSize {
		return fmt.Errorf("%w: at most %d credentials per token", domain.ErrInvalidInput, MaxBundleSize)
	}
	if kind == domain.TokenKindShare && len(ids) != 1 {
		return fmt.Errorf("%w: share tokens reference exactly one credential", domain.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: empty credential id", domain.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate credential id %s", domain.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// GenerateToken draws length symbols from TokenAlphabet using crypto/rand.
func GenerateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = TokenAlphabet[b&0x1f]
	}
	return string(buf), nil
}

// NormalizeToken upper-cases and trims user input and reports whether every symbol
// belongs to TokenAlphabet.
func NormalizeToken(token string) (string, bool) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" || len(token) > 64 {
		return "", false
	}
	for i := 0; i < len(token); i++ {
		if strings.IndexByte(TokenAlphabet, token[i]) < 0 {
			return "", false
		}
	}
	return token, true
}

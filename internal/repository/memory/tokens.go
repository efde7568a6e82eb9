package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// TokenStore keeps reference tokens in memory. Records are stored and returned as copies.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*domain.ReferenceToken
}

// NewTokenStore builds an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*domain.ReferenceToken)}
}

func (s *TokenStore) Create(_ context.Context, tok *domain.ReferenceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tok.Token]; ok {
		return fmt.Errorf("%w: token exists", domain.ErrConflict)
	}
	s.tokens[tok.Token] = tok.Clone()
	return nil
}

func (s *TokenStore) Get(_ context.Context, token string) (*domain.ReferenceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return tok.Clone(), nil
}

func (s *TokenStore) Consume(_ context.Context, token string, at time.Time) (*domain.ReferenceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if tok.ConsumedAt != nil {
		return nil, domain.ErrConflict
	}
	if tok.ExpiredAt(at) {
		return nil, domain.ErrExpired
	}
	next := tok.Clone()
	stamp := at
	next.ConsumedAt = &stamp
	s.tokens[token] = next
	return next.Clone(), nil
}

func (s *TokenStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, tok := range s.tokens {
		if tok.ExpiresAt.Before(before) {
			delete(s.tokens, key)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored tokens.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

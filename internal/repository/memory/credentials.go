// Package memory provides in-process implementations of the repository stores,
// used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// CredentialStore keeps credentials in a map guarded by a RWMutex.
type CredentialStore struct {
	mu    sync.RWMutex
	items map[string]domain.Credential
}

// NewCredentialStore builds an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{items: make(map[string]domain.Credential)}
}

func (s *CredentialStore) Save(_ context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[cred.ID]; ok {
		return fmt.Errorf("%w: credential %s exists", domain.ErrConflict, cred.ID)
	}
	s.items[cred.ID] = copyCredential(cred)
	return nil
}

func (s *CredentialStore) Get(_ context.Context, id string) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copyCredential(&cred)
	return &out, nil
}

func (s *CredentialStore) SetStatus(_ context.Context, id string, status domain.CredentialStatus, reason *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if cred.Status == status {
		return fmt.Errorf("%w: credential already %s", domain.ErrConflict, status)
	}
	cred.Status = status
	if reason != nil {
		r := *reason
		cred.RevocationReason = &r
	}
	stamp := at
	cred.RevokedAt = &stamp
	s.items[id] = cred
	return nil
}

func copyCredential(c *domain.Credential) domain.Credential {
	out := *c
	out.Types = append([]string(nil), c.Types...)
	if c.Subject.Extensions != nil {
		out.Subject.Extensions = make(map[string]string, len(c.Subject.Extensions))
		for k, v := range c.Subject.Extensions {
			out.Subject.Extensions[k] = v
		}
	}
	if c.RevocationReason != nil {
		r := *c.RevocationReason
		out.RevocationReason = &r
	}
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		out.RevokedAt = &t
	}
	return out
}

package service

import (
	"context"
	"log"
	"sync"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

// Session carries the collection handle and the signed-in identity for the
// lifetime of the process. Operations read it instead of package state.
type Session struct {
	collection port.DocumentCollection
	auth       port.Authenticator
	appID      string
	path       string

	mu       sync.RWMutex
	identity port.Identity
	ready    bool
}

func NewSession(appID string, collection port.DocumentCollection, auth port.Authenticator) *Session {
	return &Session{
		collection: collection,
		auth:       auth,
		appID:      appID,
		path:       domain.CollectionPath(appID),
	}
}

// Authenticate establishes the identity. On failure the session stays without
// identity and every mutation remains a no-op.
func (s *Session) Authenticate(ctx context.Context, credential string) (port.Identity, error) {
	identity, err := s.auth.Authenticate(ctx, credential)
	if err != nil {
		s.mu.Lock()
		s.identity = port.Identity{}
		s.ready = false
		s.mu.Unlock()
		log.Printf("session %s: authentication failed: %v", s.appID, err)
		return port.Identity{}, domain.WrapError(domain.KindAuth, "authentication failed", err)
	}

	s.mu.Lock()
	s.identity = identity
	s.ready = identity.UserID != ""
	s.mu.Unlock()

	log.Printf("session %s: authenticated as %s (anonymous=%t)", s.appID, identity.UserID, identity.Anonymous)
	return identity, nil
}

// Identity returns the signed-in identity, false while there is none.
func (s *Session) Identity() (port.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.ready
}

func (s *Session) AppID() string {
	return s.appID
}

func (s *Session) Path() string {
	return s.path
}

func (s *Session) Collection() port.DocumentCollection {
	return s.collection
}

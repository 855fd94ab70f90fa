package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"kanban/api/internal/session"
)

// Actor is the authenticated user a request acts as.
type Actor struct {
	UserID      string
	DisplayName string
	Email       string
}

var ErrNoActor = errors.New("no actor on request")

// ActorResolver turns request credentials into an Actor. It returns
// ErrNoActor when the request carries no usable credentials.
type ActorResolver interface {
	Resolve(r *http.Request) (Actor, error)
}

type sessionLookup interface {
	Lookup(ctx context.Context, tokenHash string) (session.Actor, error)
}

// SessionResolver resolves bearer tokens through the session store.
type SessionResolver struct {
	sessions sessionLookup
}

func NewSessionResolver(sessions sessionLookup) *SessionResolver {
	return &SessionResolver{sessions: sessions}
}

func (s *SessionResolver) Resolve(r *http.Request) (Actor, error) {
	token := bearerToken(r)
	if token == "" {
		return Actor{}, ErrNoActor
	}
	actor, err := s.sessions.Lookup(r.Context(), session.HashToken(token))
	if errors.Is(err, session.ErrSessionNotFound) {
		return Actor{}, ErrNoActor
	}
	if err != nil {
		return Actor{}, err
	}
	return Actor{UserID: actor.UserID, DisplayName: actor.DisplayName, Email: actor.Email}, nil
}

// HeaderResolver trusts identity headers set by an authenticating proxy.
type HeaderResolver struct{}

const (
	headerActorID    = "X-Actor-Id"
	headerActorName  = "X-Actor-Name"
	headerActorEmail = "X-Actor-Email"
)

func (HeaderResolver) Resolve(r *http.Request) (Actor, error) {
	id := strings.TrimSpace(r.Header.Get(headerActorID))
	if id == "" {
		return Actor{}, ErrNoActor
	}
	return Actor{
		UserID:      id,
		DisplayName: strings.TrimSpace(r.Header.Get(headerActorName)),
		Email:       strings.TrimSpace(r.Header.Get(headerActorEmail)),
	}, nil
}

// ChainResolver tries each resolver in turn until one finds an actor.
type ChainResolver []ActorResolver

func (c ChainResolver) Resolve(r *http.Request) (Actor, error) {
	for _, resolver := range c {
		actor, err := resolver.Resolve(r)
		if errors.Is(err, ErrNoActor) {
			continue
		}
		return actor, err
	}
	return Actor{}, ErrNoActor
}

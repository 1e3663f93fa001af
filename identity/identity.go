// Package identity maps player names to stable account UUIDs and back.
//
// Connected players are answered from the session registry. Everyone else
// goes through an external Lookup whose answers are cached.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/session"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means the lookup service knows no such player.
	ErrNotFound = errors.New("identity: player not found")
	// ErrServiceUnavailable means the lookup service could not be reached.
	// Callers may retry.
	ErrServiceUnavailable = errors.New("identity: lookup service unavailable")
)

// Profile is a resolved player.
type Profile struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Lookup is the external profile service.
type Lookup interface {
	LookupByName(ctx context.Context, name string) (Profile, error)
	LookupByID(ctx context.Context, id uuid.UUID) (Profile, error)
}

// Online answers for currently connected players. *session.Manager
// satisfies it.
type Online interface {
	Get(id uuid.UUID) *session.Session
	GetByName(name string) *session.Session
}

// Resolver resolves names and ids, preferring connected players.
type Resolver struct {
	online Online
	lookup Lookup
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver creates a Resolver. A nil cache or zero ttl disables caching.
func NewResolver(online Online, lookup Lookup, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{online: online, lookup: lookup, cache: c, ttl: ttl, logger: logger}
}

// Resolve accepts a display name or a uuid (dashed or dashless).
func (r *Resolver) Resolve(ctx context.Context, nameOrID string) (Profile, error) {
	if s := r.online.GetByName(nameOrID); s != nil {
		return Profile{ID: s.ID, Name: s.Name}, nil
	}
	if id, err := ParseID(nameOrID); err == nil {
		return r.NameOf(ctx, id)
	}

	key := "identity:name:" + strings.ToLower(nameOrID)
	if p, ok := r.cached(ctx, key); ok {
		return p, nil
	}
	p, err := r.lookup.LookupByName(ctx, nameOrID)
	if err != nil {
		return Profile{}, err
	}
	r.store(ctx, p)
	return p, nil
}

// NameOf resolves a uuid to its current profile.
func (r *Resolver) NameOf(ctx context.Context, id uuid.UUID) (Profile, error) {
	if s := r.online.Get(id); s != nil {
		return Profile{ID: s.ID, Name: s.Name}, nil
	}
	key := "identity:id:" + id.String()
	if p, ok := r.cached(ctx, key); ok {
		return p, nil
	}
	p, err := r.lookup.LookupByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	r.store(ctx, p)
	return p, nil
}

// cached profiles are stored as "<uuid> <name>".
func (r *Resolver) cached(ctx context.Context, key string) (Profile, bool) {
	if r.cache == nil || r.ttl <= 0 {
		return Profile{}, false
	}
	v, err := r.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsMiss(err) {
			r.logger.Warn("identity cache read failed", zap.String("key", key), zap.Error(err))
		}
		return Profile{}, false
	}
	idStr, name, ok := strings.Cut(v, " ")
	if !ok {
		return Profile{}, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return Profile{}, false
	}
	return Profile{ID: id, Name: name}, true
}

func (r *Resolver) store(ctx context.Context, p Profile) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	v := p.ID.String() + " " + p.Name
	for _, key := range []string{"identity:name:" + strings.ToLower(p.Name), "identity:id:" + p.ID.String()} {
		if err := r.cache.Set(ctx, key, v, r.ttl); err != nil {
			r.logger.Warn("identity cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// ParseID parses a uuid with or without dashes.
func ParseID(s string) (uuid.UUID, error) {
	if len(s) == 32 {
		s = s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
	}
	if len(s) != 36 {
		return uuid.Nil, fmt.Errorf("identity: not a uuid: %q", s)
	}
	return uuid.Parse(s)
}

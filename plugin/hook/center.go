package hook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Kind names a relationship transition that deciders may veto.
type Kind string

const (
	NewFriendAccept  Kind = "new_friend_accept"
	NewFriendRequest Kind = "new_friend_request"
	FriendRemoval    Kind = "friend_removal"
	RequestCancel    Kind = "request_cancel"
	RequestDecline   Kind = "request_decline"
	Block            Kind = "block"
	Unblock          Kind = "unblock"
)

// Kinds lists every transition kind.
var Kinds = []Kind{NewFriendAccept, NewFriendRequest, FriendRemoval, RequestCancel, RequestDecline, Block, Unblock}

// Transition is a proposed relationship change awaiting a decision.
type Transition struct {
	Kind       Kind
	Actor      uuid.UUID
	ActorName  string
	Target     uuid.UUID
	TargetName string
}

// Decision is a decider's answer. A denial carries a user-facing reason.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns an allowing Decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a denying Decision with the given reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Decider decides whether a transition may proceed. It may block while it
// consults other subsystems.
type Decider interface {
	Decide(ctx context.Context, t Transition) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, t Transition) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, t Transition) (Decision, error) { return f(ctx, t) }

// Verdict is the aggregate outcome delivered by Submit.
type Verdict struct {
	Decision Decision
	Err      error
}

// ErrNoReason is reported when a decider denies without a reason.
var ErrNoReason = errors.New("hook: denial without reason")

type entry struct {
	priority int
	name     string
	decider  Decider
}

// Center keeps the ordered list of deciders.
type Center struct {
	mu      sync.RWMutex
	entries []*entry
}

// NewCenter creates an empty Center. With no deciders everything is allowed.
func NewCenter() *Center {
	return &Center{}
}

// Register adds a Decider with the given priority (lower runs first and wins
// ties between denials). name is used for Unregister.
func (c *Center) Register(priority int, name string, d Decider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, &entry{priority: priority, name: name, decider: d})
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].priority < c.entries[j].priority
	})
}

// Unregister removes every decider registered under name.
func (c *Center) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.name != name {
			c.entries[n] = e
			n++
		}
	}
	c.entries = c.entries[:n]
}

// Len returns the number of registered deciders.
func (c *Center) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Decide asks every decider concurrently and aggregates their answers. Any
// denial denies; the reported reason is the first denial in priority order.
// A decider error aborts the decision.
func (c *Center) Decide(ctx context.Context, t Transition) (Decision, error) {
	c.mu.RLock()
	entries := make([]*entry, len(c.entries))
	copy(entries, c.entries)
	c.mu.RUnlock()

	if len(entries) == 0 {
		return Allow(), nil
	}

	decisions := make([]Decision, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		g.Go(func() error {
			d, err := e.decider.Decide(gctx, t)
			if err != nil {
				return err
			}
			decisions[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}

	for i, d := range decisions {
		if !d.Allowed {
			if d.Reason == "" {
				return Decision{}, fmt.Errorf("%w: %s", ErrNoReason, entries[i].name)
			}
			return d, nil
		}
	}
	return Allow(), nil
}

// Submit starts Decide in its own goroutine and returns a channel that
// receives exactly one Verdict.
func (c *Center) Submit(ctx context.Context, t Transition) <-chan Verdict {
	ch := make(chan Verdict, 1)
	go func() {
		d, err := c.Decide(ctx, t)
		ch <- Verdict{Decision: d, Err: err}
	}()
	return ch
}

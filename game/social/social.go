// Package social implements the friends state machine: friend requests,
// accepts, removals, blocks and unblocks between pairs of players.
//
// Every mutation is classified inside a store transaction, submitted to the
// authorization hook, and applied in a second transaction that re-checks the
// pair. Operations that lose a race observe the winner's post-state and
// report the matching informational outcome.
package social

import (
	"errors"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/plugin/hook"
)

var (
	// ErrStoreUnavailable wraps every relation store failure.
	ErrStoreUnavailable = errors.New("social: store unavailable")
	// ErrHookFailed means a decider returned an error instead of a decision.
	ErrHookFailed = errors.New("social: authorization hook failed")
)

// Player is a resolved participant of an operation.
type Player struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Op names an engine operation.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpBlock   Op = "block"
	OpUnblock Op = "unblock"
)

// Outcome classifies how an operation ended. Only Applied changes state.
// Failed accompanies a non-nil error.
type Outcome int

const (
	Failed Outcome = iota
	Applied
	SelfTarget
	AlreadyInState
	NotInState
	Blocked
	Denied
)

var outcomeNames = [...]string{"failed", "applied", "self_target", "already_in_state", "not_in_state", "blocked", "denied"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// MarshalText renders the outcome name in JSON responses.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Result reports what an operation did. Transition is set when the hook was
// consulted; Reason is the denial text when Outcome is Denied.
type Result struct {
	Op         Op              `json:"op"`
	Outcome    Outcome         `json:"outcome"`
	Transition hook.Transition `json:"-"`
	Reason     string          `json:"reason,omitempty"`
}

// pairState is the relation between A and B seen from A.
type pairState struct {
	friends   bool
	reqAB     bool // A→B pending
	reqBA     bool // B→A pending
	aBlockedB bool
	bBlockedA bool
}

package social

import (
	"context"
	"fmt"

	"github.com/kasuganosora/socialgraph/message"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/kasuganosora/socialgraph/store"
)

// FriendLimit is a hook.Decider that refuses new friend requests and
// accepts once a player has max friends. Accepts also check the target.
type FriendLimit struct {
	store store.Store
	msgs  *message.Catalog
	max   int
}

// NewFriendLimit creates the decider. max <= 0 allows everything.
func NewFriendLimit(st store.Store, msgs *message.Catalog, max int) *FriendLimit {
	return &FriendLimit{store: st, msgs: msgs, max: max}
}

func (l *FriendLimit) Decide(ctx context.Context, t hook.Transition) (hook.Decision, error) {
	if l.max <= 0 || (t.Kind != hook.NewFriendRequest && t.Kind != hook.NewFriendAccept) {
		return hook.Allow(), nil
	}
	full := false
	err := l.store.Transaction(ctx, func(tx store.Tx) error {
		friends, err := tx.ListFriends(t.Actor)
		if err != nil {
			return err
		}
		if len(friends) >= l.max {
			full = true
			return nil
		}
		if t.Kind == hook.NewFriendAccept {
			friends, err = tx.ListFriends(t.Target)
			if err != nil {
				return err
			}
			full = len(friends) >= l.max
		}
		return nil
	})
	if err != nil {
		return hook.Decision{}, err
	}
	if !full {
		return hook.Allow(), nil
	}
	reason, ok, err := l.msgs.Render(message.FriendLimit, message.Vars{"max": l.max})
	if err != nil || !ok {
		reason = fmt.Sprintf("Friend limit of %d reached.", l.max)
	}
	return hook.Deny(reason), nil
}

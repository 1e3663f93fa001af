package social

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/message"
	"github.com/kasuganosora/socialgraph/store"
	"go.uber.org/zap"
)

// joinSummaryNames caps the names listed in the pending-requests notice.
const joinSummaryNames = 5

// Snapshot is a player's complete relation view.
type Snapshot struct {
	Friends  []Player `json:"friends"`
	Incoming []Player `json:"requests_in"`
	Outgoing []Player `json:"requests_out"`
	Blocked  []Player `json:"blocked"`
}

// OnConnect pushes the player's queued notifications oldest first, then a
// single notice summarizing the requests still waiting for an answer. Texts
// the stream does not accept go back to the queue and the summary waits for
// the next connect.
func (e *Engine) OnConnect(ctx context.Context, p Player) error {
	news, err := e.notifier.Drain(ctx, p.ID)
	if err != nil {
		e.logger.Error("drain notifications failed", zap.String("player", p.ID.String()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for i, text := range news {
		if e.notifier.Reply(p.ID, text) {
			continue
		}
		// Stream full or gone: keep the rest for the next connect.
		rest := news[i:]
		e.logger.Warn("queued notifications not pushed, requeueing",
			zap.String("player", p.ID.String()), zap.Int("count", len(rest)))
		if err := e.notifier.Requeue(ctx, p.ID, rest); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	incoming, err := e.Incoming(ctx, p.ID)
	if err != nil {
		return err
	}
	requesters := e.resolve(ctx, incoming)
	if len(requesters) == 0 {
		return nil
	}
	n := min(len(requesters), joinSummaryNames)
	names := make([]string, 0, n)
	for _, r := range requesters[:n] {
		names = append(names, r.Name)
	}
	e.reply(p.ID, message.JoinRequests, message.Vars{
		"players": names,
		"count":   len(requesters),
		"others":  len(requesters) - n,
	})
	return nil
}

// Info returns the player's relations with resolved names. Ids whose name
// cannot be resolved are left out.
func (e *Engine) Info(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	var friends, in, out, blocked []uuid.UUID
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		if friends, err = tx.ListFriends(id); err != nil {
			return err
		}
		if in, err = tx.ListIncoming(id); err != nil {
			return err
		}
		if out, err = tx.ListOutgoing(id); err != nil {
			return err
		}
		blocked, err = tx.ListBlocked(id)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Snapshot{
		Friends:  e.resolve(ctx, friends),
		Incoming: e.resolve(ctx, in),
		Outgoing: e.resolve(ctx, out),
		Blocked:  e.resolve(ctx, blocked),
	}, nil
}

// ShowInfo replies the rendered Info to the player.
func (e *Engine) ShowInfo(ctx context.Context, p Player) error {
	snap, err := e.Info(ctx, p.ID)
	if err != nil {
		e.logger.Error("info failed", zap.String("player", p.ID.String()), zap.Error(err))
		e.reply(p.ID, message.Error, nil)
		return err
	}
	e.reply(p.ID, message.Info, message.Vars{
		"friends":      names(snap.Friends),
		"requests_in":  names(snap.Incoming),
		"requests_out": names(snap.Outgoing),
		"blocked":      names(snap.Blocked),
	})
	return nil
}

func names(ps []Player) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func (e *Engine) resolve(ctx context.Context, ids []uuid.UUID) []Player {
	out := make([]Player, 0, len(ids))
	for _, id := range ids {
		prof, err := e.names.NameOf(ctx, id)
		if err != nil {
			e.logger.Warn("could not resolve player name", zap.String("player", id.String()), zap.Error(err))
			continue
		}
		out = append(out, Player{ID: prof.ID, Name: prof.Name})
	}
	return out
}

// IsFriend reports whether a and b are friends.
func (e *Engine) IsFriend(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return e.has(ctx, func(tx store.Tx) (bool, error) { return tx.HasFriendship(a, b) })
}

// IsBlocked reports whether blocker has blocked blocked.
func (e *Engine) IsBlocked(ctx context.Context, blocker, blocked uuid.UUID) (bool, error) {
	return e.has(ctx, func(tx store.Tx) (bool, error) { return tx.HasBlock(blocker, blocked) })
}

// Friends lists x's friends.
func (e *Engine) Friends(ctx context.Context, x uuid.UUID) ([]uuid.UUID, error) {
	return e.list(ctx, func(tx store.Tx) ([]uuid.UUID, error) { return tx.ListFriends(x) })
}

// Blocked lists the players x has blocked.
func (e *Engine) Blocked(ctx context.Context, x uuid.UUID) ([]uuid.UUID, error) {
	return e.list(ctx, func(tx store.Tx) ([]uuid.UUID, error) { return tx.ListBlocked(x) })
}

// Blockers lists the players that have blocked x.
func (e *Engine) Blockers(ctx context.Context, x uuid.UUID) ([]uuid.UUID, error) {
	return e.list(ctx, func(tx store.Tx) ([]uuid.UUID, error) { return tx.ListBlockers(x) })
}

// Outgoing lists the players x has sent a pending request to.
func (e *Engine) Outgoing(ctx context.Context, x uuid.UUID) ([]uuid.UUID, error) {
	return e.list(ctx, func(tx store.Tx) ([]uuid.UUID, error) { return tx.ListOutgoing(x) })
}

// Incoming lists the players with a pending request to x.
func (e *Engine) Incoming(ctx context.Context, x uuid.UUID) ([]uuid.UUID, error) {
	return e.list(ctx, func(tx store.Tx) ([]uuid.UUID, error) { return tx.ListIncoming(x) })
}

func (e *Engine) has(ctx context.Context, fn func(tx store.Tx) (bool, error)) (bool, error) {
	var ok bool
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		ok, err = fn(tx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (e *Engine) list(ctx context.Context, fn func(tx store.Tx) ([]uuid.UUID, error)) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		ids, err = fn(tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

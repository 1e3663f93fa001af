package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/identity"
	"github.com/kasuganosora/socialgraph/message"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/kasuganosora/socialgraph/store"
	"go.uber.org/zap"
)

// maxAttempts bounds how often one operation re-plans after losing a race.
const maxAttempts = 4

// Hooks submits transitions for a decision. *hook.Center satisfies it.
type Hooks interface {
	Submit(ctx context.Context, t hook.Transition) <-chan hook.Verdict
}

// Notifier delivers texts. *notify.Delivery satisfies it.
type Notifier interface {
	Deliver(ctx context.Context, recipient uuid.UUID, text string) error
	Reply(recipient uuid.UUID, text string) bool
	Drain(ctx context.Context, recipient uuid.UUID) ([]string, error)
	Requeue(ctx context.Context, recipient uuid.UUID, texts []string) error
}

// Namer resolves ids to current names. *identity.Resolver satisfies it.
type Namer interface {
	NameOf(ctx context.Context, id uuid.UUID) (identity.Profile, error)
}

// Recorder receives every committed transition. *audit.Service satisfies it.
type Recorder interface {
	Record(ctx context.Context, t hook.Transition)
}

// Engine runs the relationship state machine.
type Engine struct {
	store    store.Store
	hooks    Hooks
	msgs     *message.Catalog
	notifier Notifier
	names    Namer
	recorder Recorder
	cfg      config.SocialConfig
	logger   *zap.Logger
}

// New creates an Engine. recorder may be nil.
func New(st store.Store, hooks Hooks, msgs *message.Catalog, notifier Notifier, names Namer,
	recorder Recorder, cfg config.SocialConfig, logger *zap.Logger) *Engine {
	return &Engine{
		store:    st,
		hooks:    hooks,
		msgs:     msgs,
		notifier: notifier,
		names:    names,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Add sends a friend request to target, or accepts the one target sent.
// If actor had blocked target, the unblock flow runs first.
func (e *Engine) Add(ctx context.Context, actor, target Player) (Result, error) {
	return e.run(ctx, OpAdd, actor, target)
}

// Remove ends a friendship, cancels actor's request or declines target's.
func (e *Engine) Remove(ctx context.Context, actor, target Player) (Result, error) {
	return e.run(ctx, OpRemove, actor, target)
}

// Block blocks target, clearing any friendship or request between the two.
func (e *Engine) Block(ctx context.Context, actor, target Player) (Result, error) {
	return e.run(ctx, OpBlock, actor, target)
}

// Unblock lifts actor's block on target.
func (e *Engine) Unblock(ctx context.Context, actor, target Player) (Result, error) {
	return e.run(ctx, OpUnblock, actor, target)
}

// plan is what an operation does for a given pair state. A plan without a
// kind is an informational no-op answered with reply.
type plan struct {
	kind    hook.Kind
	outcome Outcome
	reply   message.Key
	// unblockFirst means the add must run the unblock flow before it can
	// be planned again.
	unblockFirst bool
}

func planFor(op Op, st pairState) plan {
	switch op {
	case OpAdd:
		switch {
		case st.friends:
			return plan{outcome: AlreadyInState, reply: message.AlreadyFriend}
		case st.reqAB:
			return plan{outcome: AlreadyInState, reply: message.AlreadyRequested}
		case st.bBlockedA:
			return plan{outcome: Blocked, reply: message.Blocked}
		case st.reqBA:
			return plan{kind: hook.NewFriendAccept}
		case st.aBlockedB:
			return plan{kind: hook.Unblock, unblockFirst: true}
		default:
			return plan{kind: hook.NewFriendRequest}
		}
	case OpRemove:
		switch {
		case st.friends:
			return plan{kind: hook.FriendRemoval}
		case st.reqAB:
			return plan{kind: hook.RequestCancel}
		case st.reqBA:
			return plan{kind: hook.RequestDecline}
		default:
			return plan{outcome: NotInState, reply: message.NotFriend}
		}
	case OpBlock:
		if st.aBlockedB {
			return plan{outcome: AlreadyInState, reply: message.AlreadyBlocked}
		}
		return plan{kind: hook.Block}
	case OpUnblock:
		if !st.aBlockedB {
			return plan{outcome: NotInState, reply: message.NotBlocked}
		}
		return plan{kind: hook.Unblock}
	}
	panic(fmt.Sprintf("social: unknown op %q", op))
}

func (e *Engine) run(ctx context.Context, op Op, actor, target Player) (Result, error) {
	// An allowed transition is written even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if actor.ID == target.ID {
		e.reply(actor.ID, message.CannotUseOnSelf, nil)
		return Result{Op: op, Outcome: SelfTarget}, nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		st, err := e.classify(ctx, actor.ID, target.ID)
		if err != nil {
			return e.storeFailure(op, actor, err)
		}
		p := planFor(op, st)
		if p.kind == "" {
			e.reply(actor.ID, p.reply, message.Vars{"player": target.Name})
			return Result{Op: op, Outcome: p.outcome}, nil
		}
		if p.unblockFirst {
			res, err := e.run(ctx, OpUnblock, actor, target)
			if err != nil || res.Outcome == Denied {
				res.Op = op
				return res, err
			}
			continue
		}

		t := hook.Transition{
			Kind:       p.kind,
			Actor:      actor.ID,
			ActorName:  actor.Name,
			Target:     target.ID,
			TargetName: target.Name,
		}
		verdict := <-e.hooks.Submit(ctx, t)
		if verdict.Err != nil {
			e.logger.Error("authorization hook failed",
				zap.String("kind", string(t.Kind)),
				zap.String("actor", actor.ID.String()),
				zap.String("target", target.ID.String()),
				zap.Error(verdict.Err))
			e.reply(actor.ID, message.Error, nil)
			return Result{Op: op, Outcome: Failed, Transition: t}, fmt.Errorf("%w: %v", ErrHookFailed, verdict.Err)
		}
		if !verdict.Decision.Allowed {
			e.notifier.Reply(actor.ID, verdict.Decision.Reason)
			return Result{Op: op, Outcome: Denied, Transition: t, Reason: verdict.Decision.Reason}, nil
		}

		applied := false
		err = e.store.Transaction(ctx, func(tx store.Tx) error {
			if err := tx.LockPair(actor.ID, target.ID); err != nil {
				return err
			}
			st, err := classifyTx(tx, actor.ID, target.ID)
			if err != nil {
				return err
			}
			if planFor(op, st).kind != p.kind {
				return nil
			}
			applied = true
			return apply(tx, p.kind, actor.ID, target.ID)
		})
		if err != nil {
			return e.storeFailure(op, actor, err)
		}
		if !applied {
			e.logger.Debug("pair changed while awaiting decision, re-planning",
				zap.String("op", string(op)),
				zap.String("actor", actor.ID.String()),
				zap.String("target", target.ID.String()))
			continue
		}

		if e.recorder != nil {
			e.recorder.Record(ctx, t)
		}
		e.announce(ctx, t, actor, target)
		return Result{Op: op, Outcome: Applied, Transition: t}, nil
	}

	err := errors.New("pair kept changing under concurrent operations")
	return e.storeFailure(op, actor, err)
}

func (e *Engine) classify(ctx context.Context, a, b uuid.UUID) (pairState, error) {
	var st pairState
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		st, err = classifyTx(tx, a, b)
		return err
	})
	return st, err
}

func classifyTx(tx store.Tx, a, b uuid.UUID) (pairState, error) {
	var st pairState
	var err error
	if st.friends, err = tx.HasFriendship(a, b); err != nil {
		return st, err
	}
	if st.reqAB, err = tx.HasRequest(a, b); err != nil {
		return st, err
	}
	if st.reqBA, err = tx.HasRequest(b, a); err != nil {
		return st, err
	}
	if st.aBlockedB, err = tx.HasBlock(a, b); err != nil {
		return st, err
	}
	if st.bBlockedA, err = tx.HasBlock(b, a); err != nil {
		return st, err
	}
	return st, nil
}

func apply(tx store.Tx, kind hook.Kind, a, b uuid.UUID) error {
	var err error
	switch kind {
	case hook.NewFriendAccept:
		if _, err = tx.RemoveRequest(b, a); err != nil {
			return err
		}
		_, err = tx.AddFriendship(a, b)
	case hook.NewFriendRequest:
		_, err = tx.AddRequest(a, b)
	case hook.FriendRemoval:
		_, err = tx.RemoveFriendship(a, b)
	case hook.RequestCancel:
		_, err = tx.RemoveRequest(a, b)
	case hook.RequestDecline:
		_, err = tx.RemoveRequest(b, a)
	case hook.Block:
		if _, err = tx.RemoveFriendship(a, b); err != nil {
			return err
		}
		if _, err = tx.RemoveRequest(a, b); err != nil {
			return err
		}
		if _, err = tx.RemoveRequest(b, a); err != nil {
			return err
		}
		_, err = tx.AddBlock(a, b)
	case hook.Unblock:
		_, err = tx.RemoveBlock(a, b)
	default:
		err = fmt.Errorf("social: no mutation for %q", kind)
	}
	return err
}

// announcements maps a committed transition to the actor's and the target's
// message. An empty key means that side is not told.
var announcements = map[hook.Kind][2]message.Key{
	hook.NewFriendAccept:  {message.FriendAdded, message.FriendAccepted},
	hook.NewFriendRequest: {message.RequestSent, message.Request},
	hook.FriendRemoval:    {message.FriendRemoved, message.PlayerFriendRemoved},
	hook.RequestCancel:    {message.RequestCanceled, message.PlayerRequestCanceled},
	hook.RequestDecline:   {message.RequestDeclined, message.PlayerRequestDeclined},
	hook.Block:            {message.PlayerBlocked, ""},
	hook.Unblock:          {message.PlayerUnblocked, ""},
}

// announce tells both sides about a committed transition. Delivery failures
// are logged; the transition stays committed.
func (e *Engine) announce(ctx context.Context, t hook.Transition, actor, target Player) {
	keys := announcements[t.Kind]
	e.deliver(ctx, actor.ID, keys[0], message.Vars{"player": target.Name})
	if keys[1] != "" {
		e.deliver(ctx, target.ID, keys[1], message.Vars{"player": actor.Name})
	}
}

func (e *Engine) vars(v message.Vars) message.Vars {
	if v == nil {
		v = message.Vars{}
	}
	v["command"] = e.cfg.CommandName
	return v
}

func (e *Engine) render(key message.Key, v message.Vars) (string, bool) {
	text, ok, err := e.msgs.Render(key, e.vars(v))
	if err != nil {
		e.logger.Error("render message failed", zap.String("key", string(key)), zap.Error(err))
		return "", false
	}
	return text, ok
}

// reply sends an immediate message to a connected player.
func (e *Engine) reply(to uuid.UUID, key message.Key, v message.Vars) {
	if text, ok := e.render(key, v); ok {
		e.notifier.Reply(to, text)
	}
}

// deliver sends a message that is queued when the player is offline.
func (e *Engine) deliver(ctx context.Context, to uuid.UUID, key message.Key, v message.Vars) {
	text, ok := e.render(key, v)
	if !ok {
		return
	}
	if err := e.notifier.Deliver(ctx, to, text); err != nil {
		e.logger.Warn("notification lost",
			zap.String("recipient", to.String()),
			zap.String("key", string(key)),
			zap.Error(err))
	}
}

func (e *Engine) storeFailure(op Op, actor Player, err error) (Result, error) {
	e.logger.Error("relation store failure",
		zap.String("op", string(op)),
		zap.String("actor", actor.ID.String()),
		zap.Error(err))
	e.reply(actor.ID, message.Error, nil)
	return Result{Op: op, Outcome: Failed}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

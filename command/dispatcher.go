// Package command implements the friends command surface: parsing,
// permission checks, target resolution and tab completion.
package command

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/game/social"
	"github.com/kasuganosora/socialgraph/identity"
	"github.com/kasuganosora/socialgraph/message"
	"github.com/kasuganosora/socialgraph/session"
	"go.uber.org/zap"
)

// Permission nodes.
const (
	PermRoot    = "friends.friend"
	PermAdd     = "friends.friend.add"
	PermRemove  = "friends.friend.remove"
	PermBlock   = "friends.friend.block"
	PermUnblock = "friends.friend.unblock"
	PermInfo    = "friends.friend.info"
)

// Source is whoever runs a command.
type Source interface {
	Player() social.Player
	HasPermission(perm string) bool
}

// Resolver turns the typed argument into a player.
type Resolver interface {
	Resolve(ctx context.Context, nameOrID string) (identity.Profile, error)
}

// Online enumerates connected players. *session.Manager satisfies it.
type Online interface {
	All() []*session.Session
}

// Replier pushes immediate replies. *notify.Delivery satisfies it.
type Replier interface {
	Reply(recipient uuid.UUID, text string) bool
}

type subcommand struct {
	name  string
	perm  string
	usage message.Key
	run   func(ctx context.Context, actor, target social.Player) (social.Result, error)
}

// Dispatcher executes and completes friends commands.
type Dispatcher struct {
	engine   *social.Engine
	resolver Resolver
	online   Online
	replier  Replier
	msgs     *message.Catalog
	name     string
	subs     map[string]subcommand
	logger   *zap.Logger
}

// New creates a Dispatcher for the root command name (without slash).
func New(engine *social.Engine, resolver Resolver, online Online, replier Replier,
	msgs *message.Catalog, name string, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		engine:   engine,
		resolver: resolver,
		online:   online,
		replier:  replier,
		msgs:     msgs,
		name:     name,
		logger:   logger,
	}
	d.subs = map[string]subcommand{
		"add":     {name: "add", perm: PermAdd, usage: message.AddUsage, run: engine.Add},
		"remove":  {name: "remove", perm: PermRemove, usage: message.RemoveUsage, run: engine.Remove},
		"block":   {name: "block", perm: PermBlock, usage: message.BlockUsage, run: engine.Block},
		"unblock": {name: "unblock", perm: PermUnblock, usage: message.UnblockUsage, run: engine.Unblock},
	}
	return d
}

// Name returns the root command name.
func (d *Dispatcher) Name() string { return d.name }

// args splits input and drops a leading root command token.
func (d *Dispatcher) args(input string) []string {
	fields := strings.Fields(input)
	if len(fields) > 0 && strings.EqualFold(strings.TrimPrefix(fields[0], "/"), d.name) {
		fields = fields[1:]
	}
	return fields
}

// Execute runs one command line such as "add Steve". All feedback goes to
// the source as messages; the returned error is for logging only.
func (d *Dispatcher) Execute(ctx context.Context, src Source, input string) error {
	me := src.Player()
	if !src.HasPermission(PermRoot) {
		d.reply(me, message.NoPermission, nil)
		return nil
	}
	args := d.args(input)
	if len(args) == 0 {
		d.reply(me, message.CommandUsage, nil)
		return nil
	}

	verb := strings.ToLower(args[0])
	if verb == "info" {
		if !src.HasPermission(PermInfo) {
			d.reply(me, message.NoPermission, nil)
			return nil
		}
		return d.engine.ShowInfo(ctx, me)
	}

	sub, ok := d.subs[verb]
	if !ok {
		d.reply(me, message.CommandUsage, nil)
		return nil
	}
	if !src.HasPermission(sub.perm) {
		d.reply(me, message.NoPermission, nil)
		return nil
	}
	if len(args) < 2 {
		d.reply(me, sub.usage, nil)
		return nil
	}

	prof, err := d.resolver.Resolve(ctx, args[1])
	switch {
	case errors.Is(err, identity.ErrNotFound):
		d.reply(me, message.PlayerNotFound, message.Vars{"player": args[1]})
		return nil
	case err != nil:
		d.logger.Warn("player lookup failed", zap.String("input", args[1]), zap.Error(err))
		d.reply(me, message.LookupError, message.Vars{"command": d.name + " " + strings.Join(args, " ")})
		return err
	}

	res, err := sub.run(ctx, me, social.Player{ID: prof.ID, Name: prof.Name})
	if err != nil {
		return err
	}
	d.logger.Debug("friends command",
		zap.String("player", me.ID.String()),
		zap.String("op", string(res.Op)),
		zap.Stringer("outcome", res.Outcome))
	return nil
}

func (d *Dispatcher) reply(to social.Player, key message.Key, v message.Vars) {
	if v == nil {
		v = message.Vars{}
	}
	if _, ok := v["command"]; !ok {
		v["command"] = d.name
	}
	text, ok, err := d.msgs.Render(key, v)
	if err != nil {
		d.logger.Error("render message failed", zap.String("key", string(key)), zap.Error(err))
		return
	}
	if ok {
		d.replier.Reply(to.ID, text)
	}
}

// Suggest completes the last word of input. Players already in the state a
// subcommand would produce are not offered.
func (d *Dispatcher) Suggest(ctx context.Context, src Source, input string) []string {
	if !src.HasPermission(PermRoot) {
		return nil
	}
	args := d.args(input)
	if strings.HasSuffix(input, " ") || len(args) == 0 {
		args = append(args, "")
	}

	switch len(args) {
	case 1:
		var out []string
		for _, verb := range []string{"add", "remove", "block", "unblock", "info"} {
			perm := PermInfo
			if sub, ok := d.subs[verb]; ok {
				perm = sub.perm
			}
			if src.HasPermission(perm) && hasPrefixFold(verb, args[0]) {
				out = append(out, verb)
			}
		}
		return out
	case 2:
		sub, ok := d.subs[strings.ToLower(args[0])]
		if !ok || !src.HasPermission(sub.perm) {
			return nil
		}
		names, err := d.candidates(ctx, src.Player(), sub.name)
		if err != nil {
			d.logger.Warn("suggestions unavailable", zap.Error(err))
			return nil
		}
		return filter(names, args[1])
	}
	return nil
}

func (d *Dispatcher) candidates(ctx context.Context, me social.Player, verb string) ([]string, error) {
	snap, err := d.engine.Info(ctx, me.ID)
	if err != nil {
		return nil, err
	}
	exclude := map[uuid.UUID]bool{me.ID: true}
	var names []string
	switch verb {
	case "add":
		blockers, err := d.engine.Blockers(ctx, me.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range blockers {
			exclude[id] = true
		}
		for _, p := range append(snap.Friends, snap.Outgoing...) {
			exclude[p.ID] = true
		}
		for _, p := range snap.Incoming {
			exclude[p.ID] = true
			names = append(names, p.Name)
		}
		names = append(names, d.onlineExcept(exclude)...)
	case "remove":
		for _, group := range [][]social.Player{snap.Friends, snap.Outgoing, snap.Incoming} {
			for _, p := range group {
				names = append(names, p.Name)
			}
		}
	case "block":
		for _, p := range snap.Blocked {
			exclude[p.ID] = true
		}
		names = d.onlineExcept(exclude)
	case "unblock":
		for _, p := range snap.Blocked {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

func (d *Dispatcher) onlineExcept(exclude map[uuid.UUID]bool) []string {
	var out []string
	for _, s := range d.online.All() {
		if !exclude[s.ID] {
			out = append(out, s.Name)
		}
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// filter keeps the names matching prefix, sorted and without duplicates.
func filter(names []string, prefix string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] || !hasPrefixFold(n, prefix) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

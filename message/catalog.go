// Package message renders the user-visible texts of the friends system from
// keyed templates.
//
// The default catalog is embedded; configuration may override any template
// and disable any key. A disabled or unknown key renders nothing, which
// callers treat as "do not send".
package message

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Key identifies a message template.
type Key string

const (
	CommandUsage    Key = "command_usage"
	AddUsage        Key = "add_usage"
	RemoveUsage     Key = "remove_usage"
	BlockUsage      Key = "block_usage"
	UnblockUsage    Key = "unblock_usage"
	NoPermission    Key = "no_permission"
	CannotUseOnSelf Key = "cannot_use_on_self"
	PlayerNotFound  Key = "player_not_found"
	LookupError     Key = "lookup_error"
	Error           Key = "error"

	AlreadyFriend    Key = "already_friend"
	AlreadyRequested Key = "already_requested"
	Blocked          Key = "blocked"
	FriendAdded      Key = "friend_added"
	FriendAccepted   Key = "friend_accepted"
	RequestSent      Key = "request_sent"
	Request          Key = "request"
	FriendLimit      Key = "friend_limit"

	NotFriend             Key = "not_friend"
	FriendRemoved         Key = "friend_removed"
	PlayerFriendRemoved   Key = "player_friend_removed"
	RequestCanceled       Key = "request_canceled"
	PlayerRequestCanceled Key = "player_request_canceled"
	RequestDeclined       Key = "request_declined"
	PlayerRequestDeclined Key = "player_request_declined"

	AlreadyBlocked  Key = "already_blocked"
	PlayerBlocked   Key = "player_blocked"
	NotBlocked      Key = "not_blocked"
	PlayerUnblocked Key = "player_unblocked"

	JoinRequests Key = "join_requests"
	Info         Key = "info"
)

// Vars are the substitution variables of one rendering.
type Vars map[string]any

//go:embed defaults.yaml
var defaultsYAML []byte

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Catalog holds the parsed templates. It is read-only after Load.
type Catalog struct {
	templates map[Key]*template.Template
}

// Defaults returns the embedded default templates.
func Defaults() (map[string]string, error) {
	out := make(map[string]string)
	if err := yaml.Unmarshal(defaultsYAML, &out); err != nil {
		return nil, fmt.Errorf("message: parse defaults: %w", err)
	}
	return out, nil
}

// Load builds a Catalog from the embedded defaults, applying overrides and
// then removing every key in disabled.
func Load(overrides map[string]string, disabled []string) (*Catalog, error) {
	sources, err := Defaults()
	if err != nil {
		return nil, err
	}
	for k, v := range overrides {
		sources[k] = v
	}
	for _, k := range disabled {
		delete(sources, k)
	}

	c := &Catalog{templates: make(map[Key]*template.Template, len(sources))}
	for k, src := range sources {
		tpl, err := template.New(k).Funcs(funcs).Option("missingkey=zero").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("message: parse %q: %w", k, err)
		}
		c.templates[Key(k)] = tpl
	}
	return c, nil
}

// Has reports whether key would render.
func (c *Catalog) Has(key Key) bool {
	_, ok := c.templates[key]
	return ok
}

// Render executes the template for key. ok is false when the key is
// disabled or unknown.
func (c *Catalog) Render(key Key, vars Vars) (text string, ok bool, err error) {
	tpl, found := c.templates[key]
	if !found {
		return "", false, nil
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, vars); err != nil {
		return "", false, fmt.Errorf("message: render %q: %w", key, err)
	}
	return sb.String(), true, nil
}

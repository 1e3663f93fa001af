package command

import (
	"strings"

	"github.com/kasuganosora/socialgraph/game/social"
)

// Permissions is a granted permission list. An entry ending in ".*" grants
// every node below it; "*" grants everything.
type Permissions []string

// Has reports whether perm is granted.
func (ps Permissions) Has(perm string) bool {
	for _, p := range ps {
		switch {
		case p == "*", p == perm:
			return true
		case strings.HasSuffix(p, ".*") && strings.HasPrefix(perm, strings.TrimSuffix(p, "*")):
			return true
		}
	}
	return false
}

// PlayerSource is a Source for an authenticated player.
type PlayerSource struct {
	P     social.Player
	Perms Permissions
}

func (s PlayerSource) Player() social.Player          { return s.P }
func (s PlayerSource) HasPermission(perm string) bool { return s.Perms.Has(perm) }

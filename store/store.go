// Package store persists the relation tables (friends, friend requests,
// blocks) and the queue of notifications waiting for offline players.
//
// Every read-then-write sequence must run inside one Transaction; the
// individual Tx methods give no cross-table guarantees on their own.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tx exposes the relation primitives inside one atomic unit.
type Tx interface {
	AddFriendship(a, b uuid.UUID) (bool, error)
	HasFriendship(a, b uuid.UUID) (bool, error)
	RemoveFriendship(a, b uuid.UUID) (bool, error)
	ListFriends(x uuid.UUID) ([]uuid.UUID, error)

	AddRequest(from, to uuid.UUID) (bool, error)
	HasRequest(from, to uuid.UUID) (bool, error)
	RemoveRequest(from, to uuid.UUID) (bool, error)
	ListOutgoing(x uuid.UUID) ([]uuid.UUID, error)
	ListIncoming(x uuid.UUID) ([]uuid.UUID, error)

	AddBlock(blocker, blocked uuid.UUID) (bool, error)
	HasBlock(blocker, blocked uuid.UUID) (bool, error)
	RemoveBlock(blocker, blocked uuid.UUID) (bool, error)
	ListBlocked(x uuid.UUID) ([]uuid.UUID, error)
	ListBlockers(x uuid.UUID) ([]uuid.UUID, error)

	// LockPair blocks other transactions locking the same unordered pair
	// until this one ends. Call it before reading the pair.
	LockPair(a, b uuid.UUID) error

	QueueNotification(recipient uuid.UUID, text string, expiresAt *time.Time) error
	DrainNotifications(recipient uuid.UUID, now time.Time) ([]string, error)
	PurgeExpiredNews(now time.Time) (int64, error)
}

// Store runs Tx work atomically.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// GormStore is the relational Store implementation.
type GormStore struct {
	db *gorm.DB
}

// New creates a GormStore on an already migrated database.
func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Transaction runs fn in a database transaction. A non-nil error from fn
// rolls everything back.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

// canonical orders an unordered pair so the smaller uuid comes first.
func canonical(a, b uuid.UUID) (string, string) {
	as, bs := a.String(), b.String()
	if bs < as {
		return bs, as
	}
	return as, bs
}

func (t *gormTx) insertIgnore(row interface{}, what string) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "store: add %s", what)
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) exists(m interface{}, what string, query string, args ...interface{}) (bool, error) {
	var n int64
	if err := t.db.Model(m).Where(query, args...).Count(&n).Error; err != nil {
		return false, errors.Wrapf(err, "store: has %s", what)
	}
	return n > 0, nil
}

func (t *gormTx) delete(m interface{}, what string, query string, args ...interface{}) (bool, error) {
	res := t.db.Where(query, args...).Delete(m)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "store: remove %s", what)
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) column(m interface{}, col, what string, query string, args ...interface{}) ([]uuid.UUID, error) {
	var raw []string
	if err := t.db.Model(m).Where(query, args...).Pluck(col, &raw).Error; err != nil {
		return nil, errors.Wrapf(err, "store: list %s", what)
	}
	return parseIDs(raw, what)
}

func parseIDs(raw []string, what string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.Wrapf(err, "store: corrupt uuid in %s", what)
		}
		out = append(out, id)
	}
	return out, nil
}

// ---- Friends ----

const pairQuery = "(player_uuid = ? AND friend_uuid = ?) OR (player_uuid = ? AND friend_uuid = ?)"

func (t *gormTx) AddFriendship(a, b uuid.UUID) (bool, error) {
	// Rows written by older deployments may use either orientation.
	if ok, err := t.HasFriendship(a, b); err != nil || ok {
		return false, err
	}
	p, f := canonical(a, b)
	return t.insertIgnore(&model.Friend{PlayerUUID: p, FriendUUID: f}, "friendship")
}

func (t *gormTx) HasFriendship(a, b uuid.UUID) (bool, error) {
	as, bs := a.String(), b.String()
	return t.exists(&model.Friend{}, "friendship", pairQuery, as, bs, bs, as)
}

func (t *gormTx) RemoveFriendship(a, b uuid.UUID) (bool, error) {
	as, bs := a.String(), b.String()
	return t.delete(&model.Friend{}, "friendship", pairQuery, as, bs, bs, as)
}

func (t *gormTx) ListFriends(x uuid.UUID) ([]uuid.UUID, error) {
	xs := x.String()
	var rows []model.Friend
	if err := t.db.Where("player_uuid = ? OR friend_uuid = ?", xs, xs).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "store: list friends")
	}
	raw := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.PlayerUUID == xs {
			raw = append(raw, r.FriendUUID)
		} else {
			raw = append(raw, r.PlayerUUID)
		}
	}
	return parseIDs(raw, "friends")
}

// ---- Friend requests ----

func (t *gormTx) AddRequest(from, to uuid.UUID) (bool, error) {
	return t.insertIgnore(&model.FriendRequest{PlayerUUID: from.String(), FriendUUID: to.String()}, "friend request")
}

func (t *gormTx) HasRequest(from, to uuid.UUID) (bool, error) {
	return t.exists(&model.FriendRequest{}, "friend request",
		"player_uuid = ? AND friend_uuid = ?", from.String(), to.String())
}

func (t *gormTx) RemoveRequest(from, to uuid.UUID) (bool, error) {
	return t.delete(&model.FriendRequest{}, "friend request",
		"player_uuid = ? AND friend_uuid = ?", from.String(), to.String())
}

func (t *gormTx) ListOutgoing(x uuid.UUID) ([]uuid.UUID, error) {
	return t.column(&model.FriendRequest{}, "friend_uuid", "outgoing requests", "player_uuid = ?", x.String())
}

func (t *gormTx) ListIncoming(x uuid.UUID) ([]uuid.UUID, error) {
	return t.column(&model.FriendRequest{}, "player_uuid", "incoming requests", "friend_uuid = ?", x.String())
}

// ---- Blocks ----

func (t *gormTx) AddBlock(blocker, blocked uuid.UUID) (bool, error) {
	return t.insertIgnore(&model.BlockedPlayer{PlayerUUID: blocker.String(), BlockedUUID: blocked.String()}, "block")
}

func (t *gormTx) HasBlock(blocker, blocked uuid.UUID) (bool, error) {
	return t.exists(&model.BlockedPlayer{}, "block",
		"player_uuid = ? AND blocked_uuid = ?", blocker.String(), blocked.String())
}

func (t *gormTx) RemoveBlock(blocker, blocked uuid.UUID) (bool, error) {
	return t.delete(&model.BlockedPlayer{}, "block",
		"player_uuid = ? AND blocked_uuid = ?", blocker.String(), blocked.String())
}

func (t *gormTx) ListBlocked(x uuid.UUID) ([]uuid.UUID, error) {
	return t.column(&model.BlockedPlayer{}, "blocked_uuid", "blocked players", "player_uuid = ?", x.String())
}

func (t *gormTx) ListBlockers(x uuid.UUID) ([]uuid.UUID, error) {
	return t.column(&model.BlockedPlayer{}, "player_uuid", "blockers", "blocked_uuid = ?", x.String())
}

// ---- News ----

func (t *gormTx) LockPair(a, b uuid.UUID) error {
	lo, hi := canonical(a, b)
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"seq": gorm.Expr("seq + 1")}),
	}).Create(&model.PairLock{PairKey: lo + ":" + hi}).Error
	return errors.Wrap(err, "store: lock pair")
}

func (t *gormTx) QueueNotification(recipient uuid.UUID, text string, expiresAt *time.Time) error {
	n := &model.News{
		PlayerUUID: recipient.String(),
		Text:       text,
		Date:       time.Now().UnixMilli(),
	}
	if expiresAt != nil {
		ms := expiresAt.UnixMilli()
		n.ExpirationDate = &ms
	}
	return errors.Wrap(t.db.Create(n).Error, "store: queue notification")
}

// DrainNotifications returns the recipient's queued texts oldest first and
// deletes every queued row of that recipient, including expired ones.
func (t *gormTx) DrainNotifications(recipient uuid.UUID, now time.Time) ([]string, error) {
	rs := recipient.String()
	var rows []model.News
	if err := t.db.Where("player_uuid = ?", rs).Order("date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "store: read news")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := t.db.Where("player_uuid = ?", rs).Delete(&model.News{}).Error; err != nil {
		return nil, errors.Wrap(err, "store: delete news")
	}
	nowMs := now.UnixMilli()
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.ExpirationDate != nil && *r.ExpirationDate <= nowMs {
			continue
		}
		out = append(out, r.Text)
	}
	return out, nil
}

func (t *gormTx) PurgeExpiredNews(now time.Time) (int64, error) {
	res := t.db.Where("expiration_date IS NOT NULL AND expiration_date <= ?", now.UnixMilli()).Delete(&model.News{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "store: purge news")
	}
	return res.RowsAffected, nil
}

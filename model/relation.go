package model

import "time"

// Friend is an accepted friendship. The pair is unordered: rows are written
// with the lexically smaller uuid in PlayerUUID so the primary key admits a
// single row per pair.
type Friend struct {
	PlayerUUID string    `gorm:"primaryKey;column:player_uuid;type:char(36)" json:"player_uuid"`
	FriendUUID string    `gorm:"primaryKey;column:friend_uuid;type:char(36);index:idx_friends_friend" json:"friend_uuid"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Friend) TableName() string { return "friends" }

// FriendRequest is a pending request from PlayerUUID to FriendUUID.
type FriendRequest struct {
	PlayerUUID string    `gorm:"primaryKey;column:player_uuid;type:char(36)" json:"player_uuid"`
	FriendUUID string    `gorm:"primaryKey;column:friend_uuid;type:char(36);index:idx_friend_request_to" json:"friend_uuid"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (FriendRequest) TableName() string { return "friend_request" }

// BlockedPlayer records that PlayerUUID blocked BlockedUUID.
type BlockedPlayer struct {
	PlayerUUID  string    `gorm:"primaryKey;column:player_uuid;type:char(36)" json:"player_uuid"`
	BlockedUUID string    `gorm:"primaryKey;column:blocked_uuid;type:char(36);index:idx_blocked_players_blocked" json:"blocked_uuid"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BlockedPlayer) TableName() string { return "blocked_players" }

// News is a rendered notification waiting for an offline player.
// Date and ExpirationDate are unix milliseconds.
type News struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerUUID     string `gorm:"column:player_uuid;type:char(36);index:idx_news_player;not null" json:"player_uuid"`
	Text           string `gorm:"type:text" json:"text"`
	Date           int64  `gorm:"not null" json:"date"`
	ExpirationDate *int64 `json:"expiration_date"`
}

func (News) TableName() string { return "news" }

// PairLock serializes relation changes of one unordered pair. Writers bump
// Seq before reading the pair, which holds the row lock until commit.
type PairLock struct {
	PairKey string `gorm:"primaryKey;column:pair_key;type:char(73)" json:"pair_key"`
	Seq     int64  `gorm:"not null;default:0" json:"seq"`
}

func (PairLock) TableName() string { return "pair_locks" }

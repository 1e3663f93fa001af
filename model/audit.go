package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records committed relationship transitions.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	ActorUUID  string         `gorm:"index:idx_audit_actor;type:char(36);not null" json:"actor_uuid"`
	ActorName  string         `gorm:"size:32" json:"actor_name"`
	TargetUUID string         `gorm:"index:idx_audit_target;type:char(36);not null" json:"target_uuid"`
	TargetName string         `gorm:"size:32" json:"target_name"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Detail     datatypes.JSON `json:"detail"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}

// models/gorm_models.go
package models

import (
	"time"
)

// RoomRecord 房间持久化模型
type RoomRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"not null"`
	Tier      string `gorm:"size:32"`
	Capacity  int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoomMemberRecord is the authoritative membership row. Capacity is
// re-counted against these rows inside the join transaction, so concurrent
// joins for the last slot serialize at the store instead of racing the
// mirror.
type RoomMemberRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"size:64;not null;uniqueIndex:idx_room_member"`
	PlayerID  string `gorm:"size:64;not null;uniqueIndex:idx_room_member"`
	CreatedAt time.Time
}

// TableRecord 桌子持久化模型
type TableRecord struct {
	ID         string     `gorm:"primaryKey;size:64"`
	RoomID     string     `gorm:"size:64;index;not null;uniqueIndex:idx_room_table_number"`
	Number     int        `gorm:"not null;uniqueIndex:idx_room_table_number"`
	AccessMode AccessMode `gorm:"size:16;not null"`
	Rated      bool       `gorm:"default:false"`
	HostID     string     `gorm:"size:64"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SeatAssignment is the authoritative seat occupancy row. The two unique
// indexes carry the core invariants: one player per seat, one seat per player
// system-wide. Concurrent occupy transactions lose here with a unique
// violation, never by silent overwrite.
type SeatAssignment struct {
	ID         uint   `gorm:"primaryKey"`
	TableID    string `gorm:"size:64;not null;uniqueIndex:idx_table_seat"`
	SeatNumber int    `gorm:"not null;uniqueIndex:idx_table_seat"`
	PlayerID   string `gorm:"size:64;not null;uniqueIndex:idx_seated_player"`
	CreatedAt  time.Time
}

// InvitationRecord 邀请持久化模型
type InvitationRecord struct {
	ID        string           `gorm:"primaryKey;size:64"`
	RoomID    string           `gorm:"size:64;index;not null"`
	TableID   string           `gorm:"size:64;not null;uniqueIndex:idx_table_invitee"`
	InviterID string           `gorm:"size:64;not null"`
	InviteeID string           `gorm:"size:64;not null;uniqueIndex:idx_table_invitee;index"`
	Status    InvitationStatus `gorm:"size:16;not null"`
	Reason    string           `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage 聊天记录，Scope 为 room 或 table
type ChatMessage struct {
	ID        uint   `gorm:"primaryKey"`
	Scope     string `gorm:"size:16;not null"`
	ScopeID   string `gorm:"size:64;index;not null"`
	PlayerID  string `gorm:"size:64"` // empty for system messages
	Body      string `gorm:"not null"`
	CreatedAt time.Time
}

// Notification 玩家通知记录
type Notification struct {
	ID        uint   `gorm:"primaryKey"`
	PlayerID  string `gorm:"size:64;index;not null"`
	Kind      string `gorm:"size:32;not null"`
	Body      string `gorm:"not null"`
	CreatedAt time.Time
}

// GameRecord archives one finished round.
type GameRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	TableID   string `gorm:"size:64;index;not null"`
	RoomID    string `gorm:"size:64;index;not null"`
	Players   string `gorm:"type:text"` // comma-joined player ids
	Winners   string `gorm:"type:text"`
	Abnormal  bool   `gorm:"default:false"`
	StartedAt time.Time
	EndedAt   time.Time
}

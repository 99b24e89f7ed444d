// models/models.go
package models

import (
	"time"
)

// AccessMode controls who may sit at (and, for private tables, watch) a table.
type AccessMode string

const (
	AccessPublic    AccessMode = "PUBLIC"
	AccessProtected AccessMode = "PROTECTED"
	AccessPrivate   AccessMode = "PRIVATE"
)

// GamePhase is the lifecycle phase of one round at a table.
type GamePhase string

const (
	PhaseWaiting   GamePhase = "WAITING"
	PhaseCountdown GamePhase = "COUNTDOWN"
	PhasePlaying   GamePhase = "PLAYING"
	PhaseGameOver  GamePhase = "GAME_OVER"
)

// InvitationStatus is the protocol state of a table invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
)

// EventKind discriminates the canonical fanout event payload.
type EventKind string

const (
	EventRoomMembersChanged EventKind = "room-members-changed"
	EventRoomRemoved        EventKind = "room-removed"
	EventTableCreated       EventKind = "table-created"
	EventTableRemoved       EventKind = "table-removed"
	EventTableAccessChanged EventKind = "table-access-changed"
	EventSeatOccupied       EventKind = "seat-occupied"
	EventSeatVacated        EventKind = "seat-vacated"
	EventReadyChanged       EventKind = "ready-changed"
	EventGamePhaseChanged   EventKind = "game-phase-changed"
	EventInvitationCreated  EventKind = "invitation-created"
	EventInvitationAccepted EventKind = "invitation-accepted"
	EventInvitationDeclined EventKind = "invitation-declined"
	EventInvitationRevoked  EventKind = "invitation-revoked"
	EventChatMessage        EventKind = "chat-message"
	EventNotification       EventKind = "notification"
)

// Event is the canonical payload published to the fanout bridge after each
// durable commit. One event per logical action; handlers must apply it
// idempotently because cross-process delivery is at-least-once.
type Event struct {
	ID       string    `json:"id"`
	Kind     EventKind `json:"kind"`
	RoomID   string    `json:"room_id,omitempty"`
	TableID  string    `json:"table_id,omitempty"`
	PlayerID string    `json:"player_id,omitempty"`

	SeatNumber  int        `json:"seat_number,omitempty"`
	TableNumber int        `json:"table_number,omitempty"`
	Joined      bool       `json:"joined,omitempty"`
	Ephemeral   bool       `json:"ephemeral,omitempty"`
	TableClosed bool       `json:"table_closed,omitempty"`
	HostID      string     `json:"host_id,omitempty"`
	AccessMode  AccessMode `json:"access_mode,omitempty"`
	Rated       bool       `json:"rated,omitempty"`
	Phase       GamePhase  `json:"phase,omitempty"`
	Ready       bool       `json:"ready,omitempty"`
	GameID      string     `json:"game_id,omitempty"`
	Winners     []string   `json:"winners,omitempty"`

	InvitationID string `json:"invitation_id,omitempty"`
	InviterID    string `json:"inviter_id,omitempty"`
	InviteeID    string `json:"invitee_id,omitempty"`
	Reason       string `json:"reason,omitempty"`

	// Grantees carries the grandfathered invitees of a table-access-changed
	// event so every process can rebuild the grant set without a store read.
	Grantees []string `json:"grantees,omitempty"`

	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelRoom/ChannelTable/ChannelUser build the bridge channel keys.
func ChannelRoom(roomID string) string   { return "room:" + roomID }
func ChannelTable(tableID string) string { return "table:" + tableID }
func ChannelUser(playerID string) string { return "user:" + playerID }

// SeatState is the client-facing view of one seat.
type SeatState struct {
	Number   int    `json:"number"`
	Team     int    `json:"team"`
	PlayerID string `json:"player_id,omitempty"`
}

// TableState is the client-facing view of a table.
type TableState struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"room_id"`
	Number     int         `json:"number"`
	AccessMode AccessMode  `json:"access_mode"`
	Rated      bool        `json:"rated"`
	HostID     string      `json:"host_id,omitempty"`
	Seats      []SeatState `json:"seats"`
	Phase      GamePhase   `json:"phase"`
}

// RoomState is the client-facing view of a room.
type RoomState struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Tier     string   `json:"tier"`
	Capacity int      `json:"capacity"`
	Members  []string `json:"members"`
	Tables   []int    `json:"tables"`
}

// PlayerReadiness is the per-seated-player flag pair tracked by the active
// game.
type PlayerReadiness struct {
	IsReady   bool `json:"is_ready"`
	IsPlaying bool `json:"is_playing"`
}

// persistence/interface.go
package persistence

import (
	"errors"

	"github.com/wfunc/puzzleserver/models"
)

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicate is the distinguishable unique-constraint condition used to
	// resolve seat and invitation races. Losers of a concurrent occupy see
	// this, never a silent overwrite.
	ErrDuplicate = errors.New("unique constraint violated")
)

// Tx is the unit-of-work view handed to a transaction callback. All writes
// inside one callback commit or roll back together.
type Tx interface {
	SaveRoom(room *models.RoomRecord) error
	GetRoom(id string) (*models.RoomRecord, error)

	CreateRoomMember(m *models.RoomMemberRecord) error
	DeleteRoomMember(roomID, playerID string) error
	DeleteRoomMembersForRoom(roomID string) error
	CountRoomMembers(roomID string) (int, error)

	SaveTable(table *models.TableRecord) error
	GetTable(id string) (*models.TableRecord, error)
	DeleteTable(id string) error

	CreateSeatAssignment(a *models.SeatAssignment) error
	DeleteSeatAssignment(tableID string, seatNumber int) error
	GetSeatAssignment(tableID string, seatNumber int) (*models.SeatAssignment, error)
	GetSeatForPlayer(playerID string) (*models.SeatAssignment, error)
	ListSeatAssignments(tableID string) ([]models.SeatAssignment, error)

	CreateInvitation(inv *models.InvitationRecord) error
	GetInvitation(id string) (*models.InvitationRecord, error)
	GetInvitationByInvitee(tableID, inviteeID string) (*models.InvitationRecord, error)
	UpdateInvitation(inv *models.InvitationRecord) error
	DeleteInvitation(id string) error
	DeleteInvitationsForTable(tableID string) error

	AppendChat(msg *models.ChatMessage) error
	AppendNotification(n *models.Notification) error
	SaveGameRecord(rec *models.GameRecord) error
}

// Store 数据库接口
type Store interface {
	// Transaction executes fn with all-or-nothing semantics.
	Transaction(fn func(tx Tx) error) error
	Close() error
}

// invite/invite.go
package invite

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/models"
)

// Invitation is the three-state protocol object gating seat access on
// non-public tables. PENDING is the only non-terminal state; ACCEPTED rows
// survive as access grants until the invitee leaves the table.
type Invitation struct {
	ID        string                  `json:"id"`
	RoomID    string                  `json:"room_id"`
	TableID   string                  `json:"table_id"`
	InviterID string                  `json:"inviter_id"`
	InviteeID string                  `json:"invitee_id"`
	Status    models.InvitationStatus `json:"status"`
	Reason    string                  `json:"reason,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// FromRecord converts a store row into the protocol object.
func FromRecord(rec *models.InvitationRecord) *Invitation {
	return &Invitation{
		ID:        rec.ID,
		RoomID:    rec.RoomID,
		TableID:   rec.TableID,
		InviterID: rec.InviterID,
		InviteeID: rec.InviteeID,
		Status:    rec.Status,
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// Record converts back into a store row.
func (inv *Invitation) Record() *models.InvitationRecord {
	return &models.InvitationRecord{
		ID:        inv.ID,
		RoomID:    inv.RoomID,
		TableID:   inv.TableID,
		InviterID: inv.InviterID,
		InviteeID: inv.InviteeID,
		Status:    inv.Status,
		Reason:    inv.Reason,
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
}

// Accept transitions PENDING -> ACCEPTED. Accepting twice is a no-op;
// accepting a declined invitation is a state conflict, never a silent flip.
func (inv *Invitation) Accept() error {
	switch inv.Status {
	case models.InvitationAccepted:
		return nil
	case models.InvitationPending:
		inv.Status = models.InvitationAccepted
		inv.UpdatedAt = time.Now()
		return nil
	default:
		return errs.E(errs.CodeStateConflict, "invitation is %s", inv.Status)
	}
}

// Decline transitions PENDING -> DECLINED with an optional reason.
func (inv *Invitation) Decline(reason string) error {
	if inv.Status != models.InvitationPending {
		return errs.E(errs.CodeStateConflict, "invitation is %s", inv.Status)
	}
	inv.Status = models.InvitationDeclined
	inv.Reason = reason
	inv.UpdatedAt = time.Now()
	return nil
}

// Manager tracks one player's sent and received invitations. Owned by the
// Player; updated only from fanout events like the rest of the mirror.
type Manager struct {
	mutex    sync.RWMutex
	sent     map[string]*Invitation // invitation id -> invitation
	received map[string]*Invitation
}

func NewManager() *Manager {
	return &Manager{
		sent:     make(map[string]*Invitation),
		received: make(map[string]*Invitation),
	}
}

// Track records the invitation on the right side(s) for this player.
func (m *Manager) Track(playerID string, inv *Invitation) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if inv.InviterID == playerID {
		m.sent[inv.ID] = inv
	}
	if inv.InviteeID == playerID {
		m.received[inv.ID] = inv
	}
}

// Drop forgets an invitation on both sides.
func (m *Manager) Drop(invitationID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sent, invitationID)
	delete(m.received, invitationID)
}

// SetStatus updates a tracked invitation's status; declined invitations leave
// the active set.
func (m *Manager) SetStatus(invitationID string, status models.InvitationStatus, reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, side := range []map[string]*Invitation{m.sent, m.received} {
		if inv, ok := side[invitationID]; ok {
			inv.Status = status
			inv.Reason = reason
			inv.UpdatedAt = time.Now()
			if status == models.InvitationDeclined {
				delete(side, invitationID)
			}
		}
	}
}

// Received returns the player's active received invitations, oldest first.
func (m *Manager) Received() []*Invitation {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return sorted(m.received)
}

// Sent returns the player's active sent invitations, oldest first.
func (m *Manager) Sent() []*Invitation {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return sorted(m.sent)
}

func sorted(side map[string]*Invitation) []*Invitation {
	out := make([]*Invitation, 0, len(side))
	for _, inv := range side {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

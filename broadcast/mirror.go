// broadcast/mirror.go
package broadcast

import (
	"github.com/wfunc/puzzleserver/invite"
	"github.com/wfunc/puzzleserver/logger"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/monitor"
	"github.com/wfunc/puzzleserver/room"
	"github.com/wfunc/puzzleserver/session"
)

// Mirror is the in-memory cache of room/table/game state kept behind the
// fanout subscriber. Request handlers read it for fast validation but never
// write it; every mutation flows through HandleEvent, so all processes
// converge on the committed state and a replayed event changes nothing.
type Mirror struct {
	rooms          *room.Manager
	sessions       *session.Manager
	local          Broadcaster
	monitor        *monitor.Monitor
	onReadyChanged func(roomID, tableID string)
}

func NewMirror(rooms *room.Manager, sessions *session.Manager, local Broadcaster) *Mirror {
	return &Mirror{rooms: rooms, sessions: sessions, local: local}
}

// SetMonitor attaches optional metrics.
func (m *Mirror) SetMonitor(mon *monitor.Monitor) {
	m.monitor = mon
}

// OnReadyChanged registers the hook run after a ready flag has been applied.
// Countdown start/cancel hangs off it, so eligibility is always judged on
// merged event-stream state rather than the acting process's view at request
// time.
func (m *Mirror) OnReadyChanged(fn func(roomID, tableID string)) {
	m.onReadyChanged = fn
}

// Rooms exposes the aggregate registry for the read-only request path.
func (m *Mirror) Rooms() *room.Manager {
	return m.rooms
}

// HandleEvent applies one fanout event and re-emits it to the local sockets
// subscribed to the affected channels.
func (m *Mirror) HandleEvent(ev *models.Event) {
	m.apply(ev)
	if m.monitor != nil {
		m.monitor.IncEventsApplied()
		m.updateGauges()
	}
	if ev.Kind == models.EventReadyChanged && m.onReadyChanged != nil {
		m.onReadyChanged(ev.RoomID, ev.TableID)
	}
	if m.local != nil {
		if err := m.local.BroadcastEvent(ev, eventChannels(ev)); err != nil {
			logger.Log.Errorf("mirror: re-emit %s failed: %v", ev.Kind, err)
		}
	}
}

func (m *Mirror) updateGauges() {
	tables, seated := 0, 0
	for _, r := range m.rooms.Rooms() {
		for _, t := range r.Tables() {
			tables++
			seated += t.OccupiedCount()
		}
	}
	m.monitor.SetActiveTables(tables)
	m.monitor.SetSeatedPlayers(seated)
}

func eventChannels(ev *models.Event) []string {
	var out []string
	if ev.RoomID != "" {
		out = append(out, models.ChannelRoom(ev.RoomID))
	}
	if ev.TableID != "" {
		out = append(out, models.ChannelTable(ev.TableID))
	}
	switch ev.Kind {
	case models.EventInvitationCreated, models.EventInvitationAccepted,
		models.EventInvitationDeclined, models.EventInvitationRevoked:
		out = append(out, models.ChannelUser(ev.InviteeID), models.ChannelUser(ev.InviterID))
	case models.EventNotification:
		out = append(out, models.ChannelUser(ev.PlayerID))
	}
	return out
}

func (m *Mirror) apply(ev *models.Event) {
	switch ev.Kind {
	case models.EventRoomMembersChanged:
		r := m.rooms.GetOrCreate(ev.RoomID, ev.RoomID, "")
		if ev.Joined {
			r.ApplyMemberJoined(ev.PlayerID)
		} else {
			r.ApplyMemberLeft(ev.PlayerID)
		}

	case models.EventTableCreated:
		r := m.rooms.GetOrCreate(ev.RoomID, ev.RoomID, "")
		t := room.NewTable(ev.TableID, ev.RoomID, ev.TableNumber,
			ev.AccessMode, ev.Rated, ev.HostID, m.rooms.Policy())
		t.Ephemeral = ev.Ephemeral
		if ev.GameID != "" {
			t.ApplyPhase(ev.GameID, models.PhaseWaiting, ev.CreatedAt)
		}
		r.ApplyTableCreated(t)

	case models.EventRoomRemoved:
		m.rooms.Remove(ev.RoomID)

	case models.EventTableRemoved:
		if r, ok := m.rooms.Get(ev.RoomID); ok {
			r.ApplyTableRemoved(ev.TableID)
		}

	case models.EventTableAccessChanged:
		if t, ok := m.table(ev); ok {
			t.ApplyAccessChanged(ev.AccessMode, ev.Rated, ev.Grantees)
		}

	case models.EventSeatOccupied:
		if t, ok := m.table(ev); ok {
			t.ApplySeatOccupied(ev.SeatNumber, ev.PlayerID)
		}

	case models.EventSeatVacated:
		r, hasRoom := m.rooms.Get(ev.RoomID)
		t, hasTable := m.table(ev)
		if hasTable {
			wasHost := t.HostID() == ev.PlayerID
			t.ApplySeatVacated(ev.SeatNumber, ev.PlayerID)
			// 桌主离席：应用继任者，无人接任时清空（空桌过渡态）
			if ev.HostID != "" || wasHost {
				t.ApplyHostChanged(ev.HostID)
			}
		}
		if ev.TableClosed && hasRoom {
			r.ApplyTableRemoved(ev.TableID)
		}

	case models.EventReadyChanged:
		if t, ok := m.table(ev); ok {
			t.ApplyReady(ev.PlayerID, ev.Ready)
		}

	case models.EventGamePhaseChanged:
		if t, ok := m.table(ev); ok {
			t.ApplyPhase(ev.GameID, ev.Phase, ev.CreatedAt)
		}

	case models.EventInvitationCreated:
		if t, ok := m.table(ev); ok {
			t.ApplyInvitationCreated(ev.InviteeID, ev.InvitationID)
		}
		m.trackInvitation(ev, models.InvitationPending)

	case models.EventInvitationAccepted:
		if t, ok := m.table(ev); ok {
			t.ApplyInvitationAccepted(ev.InviteeID)
		}
		// Track rather than update: a grandfathered invitee gets an
		// accepted invitation with no created event preceding it.
		m.trackInvitation(ev, models.InvitationAccepted)

	case models.EventInvitationDeclined:
		if t, ok := m.table(ev); ok {
			t.ApplyInvitationDeclined(ev.InviteeID)
		}
		m.updateInvitation(ev, models.InvitationDeclined)

	case models.EventInvitationRevoked:
		if t, ok := m.table(ev); ok {
			t.ApplyInvitationRevoked(ev.InviteeID)
		}
		m.dropInvitation(ev)

	case models.EventChatMessage, models.EventNotification:
		// durable records only; nothing to mirror

	default:
		logger.Log.Warnf("mirror: unknown event kind %q", ev.Kind)
	}
}

func (m *Mirror) table(ev *models.Event) (*room.Table, bool) {
	r, ok := m.rooms.Get(ev.RoomID)
	if !ok {
		return nil, false
	}
	return r.Table(ev.TableID)
}

// trackInvitation mirrors the invitation into the inviter's and invitee's
// per-player managers when they are connected to this process.
func (m *Mirror) trackInvitation(ev *models.Event, status models.InvitationStatus) {
	inv := &invite.Invitation{
		ID:        ev.InvitationID,
		RoomID:    ev.RoomID,
		TableID:   ev.TableID,
		InviterID: ev.InviterID,
		InviteeID: ev.InviteeID,
		Status:    status,
		CreatedAt: ev.CreatedAt,
		UpdatedAt: ev.CreatedAt,
	}
	for _, pid := range []string{ev.InviterID, ev.InviteeID} {
		for _, s := range m.sessions.GetByPlayerID(pid) {
			s.Player().Invitations.Track(pid, inv)
		}
	}
}

func (m *Mirror) updateInvitation(ev *models.Event, status models.InvitationStatus) {
	for _, pid := range []string{ev.InviterID, ev.InviteeID} {
		for _, s := range m.sessions.GetByPlayerID(pid) {
			s.Player().Invitations.SetStatus(ev.InvitationID, status, ev.Reason)
		}
	}
}

func (m *Mirror) dropInvitation(ev *models.Event) {
	for _, s := range m.sessions.Sessions() {
		s.Player().Invitations.Drop(ev.InvitationID)
	}
}

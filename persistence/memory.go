// persistence/memory.go
package persistence

import (
	"sync"

	"github.com/wfunc/puzzleserver/models"
)

// MemStore is an in-process Store used by tests and local development. A
// single mutex serializes transactions; the callback works on a copy and the
// copy replaces the live data only on success, which gives the same
// all-or-nothing contract as the SQL adapters.
type MemStore struct {
	mutex sync.Mutex
	data  memData
}

type memData struct {
	rooms        map[string]models.RoomRecord
	members      []models.RoomMemberRecord
	tables       map[string]models.TableRecord
	seats        []models.SeatAssignment
	invitations  map[string]models.InvitationRecord
	chats        []models.ChatMessage
	notes        []models.Notification
	games        []models.GameRecord
	nextMemberID uint
	nextSeatID   uint
	nextChatID   uint
	nextNoteID   uint
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: memData{
			rooms:        make(map[string]models.RoomRecord),
			tables:       make(map[string]models.TableRecord),
			invitations:  make(map[string]models.InvitationRecord),
			nextMemberID: 1,
			nextSeatID:   1,
			nextChatID:   1,
			nextNoteID:   1,
		},
	}
}

func (s *MemStore) Transaction(fn func(tx Tx) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	work := s.data.clone()
	if err := fn(&memTx{data: &work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemStore) Close() error { return nil }

// Seats returns a snapshot of all seat assignments, for test assertions.
func (s *MemStore) Seats() []models.SeatAssignment {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]models.SeatAssignment, len(s.data.seats))
	copy(out, s.data.seats)
	return out
}

// RoomMembers returns the membership rows of one room, for test assertions.
func (s *MemStore) RoomMembers(roomID string) []models.RoomMemberRecord {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]models.RoomMemberRecord, 0, len(s.data.members))
	for _, m := range s.data.members {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

// Invitations returns a snapshot of all invitation rows, for test assertions.
func (s *MemStore) Invitations() []models.InvitationRecord {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]models.InvitationRecord, 0, len(s.data.invitations))
	for _, inv := range s.data.invitations {
		out = append(out, inv)
	}
	return out
}

func (d memData) clone() memData {
	out := memData{
		rooms:        make(map[string]models.RoomRecord, len(d.rooms)),
		members:      append([]models.RoomMemberRecord(nil), d.members...),
		tables:       make(map[string]models.TableRecord, len(d.tables)),
		seats:        append([]models.SeatAssignment(nil), d.seats...),
		invitations:  make(map[string]models.InvitationRecord, len(d.invitations)),
		chats:        append([]models.ChatMessage(nil), d.chats...),
		notes:        append([]models.Notification(nil), d.notes...),
		games:        append([]models.GameRecord(nil), d.games...),
		nextMemberID: d.nextMemberID,
		nextSeatID:   d.nextSeatID,
		nextChatID:   d.nextChatID,
		nextNoteID:   d.nextNoteID,
	}
	for k, v := range d.rooms {
		out.rooms[k] = v
	}
	for k, v := range d.tables {
		out.tables[k] = v
	}
	for k, v := range d.invitations {
		out.invitations[k] = v
	}
	return out
}

type memTx struct {
	data *memData
}

func (t *memTx) SaveRoom(room *models.RoomRecord) error {
	t.data.rooms[room.ID] = *room
	return nil
}

func (t *memTx) GetRoom(id string) (*models.RoomRecord, error) {
	room, ok := t.data.rooms[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &room, nil
}

func (t *memTx) CreateRoomMember(m *models.RoomMemberRecord) error {
	for _, existing := range t.data.members {
		if existing.RoomID == m.RoomID && existing.PlayerID == m.PlayerID {
			return ErrDuplicate
		}
	}
	m.ID = t.data.nextMemberID
	t.data.nextMemberID++
	t.data.members = append(t.data.members, *m)
	return nil
}

func (t *memTx) DeleteRoomMember(roomID, playerID string) error {
	for i, m := range t.data.members {
		if m.RoomID == roomID && m.PlayerID == playerID {
			t.data.members = append(t.data.members[:i], t.data.members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *memTx) DeleteRoomMembersForRoom(roomID string) error {
	kept := t.data.members[:0]
	for _, m := range t.data.members {
		if m.RoomID != roomID {
			kept = append(kept, m)
		}
	}
	t.data.members = kept
	return nil
}

func (t *memTx) CountRoomMembers(roomID string) (int, error) {
	n := 0
	for _, m := range t.data.members {
		if m.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) SaveTable(table *models.TableRecord) error {
	for _, existing := range t.data.tables {
		if existing.ID != table.ID && existing.RoomID == table.RoomID && existing.Number == table.Number {
			return ErrDuplicate
		}
	}
	t.data.tables[table.ID] = *table
	return nil
}

func (t *memTx) GetTable(id string) (*models.TableRecord, error) {
	table, ok := t.data.tables[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &table, nil
}

func (t *memTx) DeleteTable(id string) error {
	delete(t.data.tables, id)
	return nil
}

func (t *memTx) CreateSeatAssignment(a *models.SeatAssignment) error {
	for _, s := range t.data.seats {
		if s.TableID == a.TableID && s.SeatNumber == a.SeatNumber {
			return ErrDuplicate
		}
		if s.PlayerID == a.PlayerID {
			return ErrDuplicate
		}
	}
	a.ID = t.data.nextSeatID
	t.data.nextSeatID++
	t.data.seats = append(t.data.seats, *a)
	return nil
}

func (t *memTx) DeleteSeatAssignment(tableID string, seatNumber int) error {
	for i, s := range t.data.seats {
		if s.TableID == tableID && s.SeatNumber == seatNumber {
			t.data.seats = append(t.data.seats[:i], t.data.seats[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *memTx) GetSeatAssignment(tableID string, seatNumber int) (*models.SeatAssignment, error) {
	for _, s := range t.data.seats {
		if s.TableID == tableID && s.SeatNumber == seatNumber {
			out := s
			return &out, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (t *memTx) GetSeatForPlayer(playerID string) (*models.SeatAssignment, error) {
	for _, s := range t.data.seats {
		if s.PlayerID == playerID {
			out := s
			return &out, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (t *memTx) ListSeatAssignments(tableID string) ([]models.SeatAssignment, error) {
	var out []models.SeatAssignment
	for _, s := range t.data.seats {
		if s.TableID == tableID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) CreateInvitation(inv *models.InvitationRecord) error {
	for _, existing := range t.data.invitations {
		if existing.TableID == inv.TableID && existing.InviteeID == inv.InviteeID {
			return ErrDuplicate
		}
	}
	t.data.invitations[inv.ID] = *inv
	return nil
}

func (t *memTx) GetInvitation(id string) (*models.InvitationRecord, error) {
	inv, ok := t.data.invitations[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &inv, nil
}

func (t *memTx) GetInvitationByInvitee(tableID, inviteeID string) (*models.InvitationRecord, error) {
	for _, inv := range t.data.invitations {
		if inv.TableID == tableID && inv.InviteeID == inviteeID {
			out := inv
			return &out, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (t *memTx) UpdateInvitation(inv *models.InvitationRecord) error {
	if _, ok := t.data.invitations[inv.ID]; !ok {
		return ErrRecordNotFound
	}
	t.data.invitations[inv.ID] = *inv
	return nil
}

func (t *memTx) DeleteInvitation(id string) error {
	delete(t.data.invitations, id)
	return nil
}

func (t *memTx) DeleteInvitationsForTable(tableID string) error {
	for id, inv := range t.data.invitations {
		if inv.TableID == tableID {
			delete(t.data.invitations, id)
		}
	}
	return nil
}

func (t *memTx) AppendChat(msg *models.ChatMessage) error {
	msg.ID = t.data.nextChatID
	t.data.nextChatID++
	t.data.chats = append(t.data.chats, *msg)
	return nil
}

func (t *memTx) AppendNotification(n *models.Notification) error {
	n.ID = t.data.nextNoteID
	t.data.nextNoteID++
	t.data.notes = append(t.data.notes, *n)
	return nil
}

func (t *memTx) SaveGameRecord(rec *models.GameRecord) error {
	t.data.games = append(t.data.games, *rec)
	return nil
}

// room/room.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/state"
)

// Room 是游戏大厅的核心结构：玩家集合加一组桌子。
//
// A room only gates on capacity; it has no invitation concept. Like Table,
// the membership and table set are mutated by fanout events, not directly by
// request handlers.
type Room struct {
	ID        string
	Name      string
	Tier      string
	Capacity  int
	CreatedAt time.Time

	mutex   sync.RWMutex
	members map[string]bool
	tables  map[string]*Table // table id -> table
	policy  state.Policy
}

// NewRoom 创建一个新房间
func NewRoom(id, name, tier string, capacity int, policy state.Policy) *Room {
	return &Room{
		ID:        id,
		Name:      name,
		Tier:      tier,
		Capacity:  capacity,
		CreatedAt: time.Now(),
		members:   make(map[string]bool),
		tables:    make(map[string]*Table),
		policy:    policy,
	}
}

// CanAccess 房间只有容量门槛：成员直接放行，否则看是否还有空位
func (r *Room) CanAccess(playerID string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.members[playerID] {
		return true
	}
	return len(r.members) < r.Capacity
}

// CheckJoin validates a join request; joining twice is fine.
func (r *Room) CheckJoin(playerID string) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.members[playerID] {
		return nil
	}
	if len(r.members) >= r.Capacity {
		return errs.E(errs.CodeCapacity, "room %s is full", r.ID)
	}
	return nil
}

// IsMember reports room membership.
func (r *Room) IsMember(playerID string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.members[playerID]
}

// MemberCount 当前成员数
func (r *Room) MemberCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.members)
}

// Members returns the sorted member ids.
func (r *Room) Members() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]string, 0, len(r.members))
	for m := range r.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ApplyMemberJoined 添加成员（幂等）
func (r *Room) ApplyMemberJoined(playerID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.members[playerID] = true
}

// ApplyMemberLeft 移除成员（幂等）
func (r *Room) ApplyMemberLeft(playerID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.members, playerID)
}

// NextTableNumber allocates the smallest unused positive table number.
// Numbers are recycled when tables are deleted; the linear scan is fine at
// per-room table counts.
func (r *Room) NextTableNumber() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	used := make(map[int]bool, len(r.tables))
	for _, t := range r.tables {
		used[t.Number] = true
	}
	for n := 1; ; n++ {
		if !used[n] {
			return n
		}
	}
}

// ApplyTableCreated 挂载一张新桌子（幂等）
func (r *Room) ApplyTableCreated(t *Table) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.tables[t.ID]; exists {
		return
	}
	r.tables[t.ID] = t
}

// ApplyTableRemoved 摘除桌子（幂等）
func (r *Room) ApplyTableRemoved(tableID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.tables, tableID)
}

// Table 按ID取桌子
func (r *Room) Table(tableID string) (*Table, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	t, ok := r.tables[tableID]
	return t, ok
}

// TableByNumber 按桌号取桌子
func (r *Room) TableByNumber(number int) (*Table, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, t := range r.tables {
		if t.Number == number {
			return t, true
		}
	}
	return nil, false
}

// Tables returns all tables ordered by table number.
func (r *Room) Tables() []*Table {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// TablesOf returns the tables the player is seated at (normally at most one).
func (r *Room) TablesOf(playerID string) []*Table {
	var out []*Table
	for _, t := range r.Tables() {
		if t.SeatOf(playerID) != 0 {
			out = append(out, t)
		}
	}
	return out
}

// State 返回客户端视图
func (r *Room) State() models.RoomState {
	rs := models.RoomState{
		ID:       r.ID,
		Name:     r.Name,
		Tier:     r.Tier,
		Capacity: r.Capacity,
		Members:  r.Members(),
	}
	for _, t := range r.Tables() {
		rs.Tables = append(rs.Tables, t.Number)
	}
	return rs
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms    map[string]*Room
	mutex    sync.RWMutex
	capacity int
	policy   state.Policy
}

// NewManager 创建一个新的房间管理器
func NewManager(capacity int, policy state.Policy) *Manager {
	return &Manager{
		rooms:    make(map[string]*Room),
		capacity: capacity,
		policy:   policy,
	}
}

// GetOrCreate returns the room, creating it on first reference. Rooms are
// never reaped on emptiness; only Remove (the administrative path) deletes
// one.
func (m *Manager) GetOrCreate(id, name, tier string) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if r, exists := m.rooms[id]; exists {
		return r
	}
	r := NewRoom(id, name, tier, m.capacity, m.policy)
	m.rooms[id] = r
	return r
}

// Get 取房间
func (m *Manager) Get(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	r, exists := m.rooms[id]
	return r, exists
}

// Remove 仅供管理接口显式销毁房间
func (m *Manager) Remove(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.rooms, id)
}

// Rooms returns all rooms, sorted by id.
func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Policy exposes the readiness policy rooms are built with.
func (m *Manager) Policy() state.Policy {
	return m.policy
}

// FindTable locates a table across all rooms.
func (m *Manager) FindTable(tableID string) (*Room, *Table, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, r := range m.rooms {
		if t, ok := r.Table(tableID); ok {
			return r, t, true
		}
	}
	return nil, nil, false
}

// SeatOfPlayer scans every room for the player's seat; the one-seat-per-player
// invariant means at most one hit.
func (m *Manager) SeatOfPlayer(playerID string) (*Room, *Table, int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, r := range m.rooms {
		for _, t := range r.Tables() {
			if seat := t.SeatOf(playerID); seat != 0 {
				return r, t, seat
			}
		}
	}
	return nil, nil, 0
}

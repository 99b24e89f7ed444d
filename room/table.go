// room/table.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/state"
)

const (
	// SeatsPerTable 每桌固定8个座位
	SeatsPerTable = 8
	// TeamSize 每队2个座位
	TeamSize = 2
)

// TeamOf derives the team number of a seat: seats are paired, giving four
// teams of two.
func TeamOf(seatNumber int) int {
	return (seatNumber + TeamSize - 1) / TeamSize
}

// Table 是一张8座桌子的聚合，持有座位、访问模式和当前对局。
//
// The request path only reads a table (Check* methods); all mutation happens
// through the Apply* methods driven by fanout events, so every process
// converges on the same state regardless of which one committed the change.
type Table struct {
	ID        string
	RoomID    string
	Number    int
	Ephemeral bool // auto-created tables are reaped when the last player leaves

	mutex      sync.RWMutex
	accessMode models.AccessMode
	rated      bool
	hostID     string
	seats      [SeatsPerTable]string // seat index -> player id, "" when empty
	readiness  map[string]*models.PlayerReadiness
	pending    map[string]string // invitee id -> invitation id
	grants     map[string]bool   // invitee ids holding an ACCEPTED invitation

	gameID        string
	gameStartedAt time.Time
	machine       *state.BaseStateMachine
	policy        state.Policy
}

// NewTable 创建一张新桌子，开启一局处于等待阶段的对局
func NewTable(id, roomID string, number int, mode models.AccessMode, rated bool, hostID string, policy state.Policy) *Table {
	t := &Table{
		ID:         id,
		RoomID:     roomID,
		Number:     number,
		accessMode: mode,
		rated:      rated,
		hostID:     hostID,
		readiness:  make(map[string]*models.PlayerReadiness),
		pending:    make(map[string]string),
		grants:     make(map[string]bool),
		policy:     policy,
	}
	t.machine = state.NewPhaseMachine(&tableGame{t: t}, policy)
	return t
}

// tableGame adapts a Table to state.GameContext. It is only ever invoked
// while the table mutex is already held by an Apply* caller, so it uses the
// unlocked internals.
type tableGame struct {
	t *Table
}

func (g *tableGame) GameID() string               { return g.t.gameID }
func (g *tableGame) Seated() []state.SeatedPlayer { return g.t.seatedLocked() }

func (g *tableGame) SetAllPlaying(playing bool) {
	for _, r := range g.t.readiness {
		r.IsPlaying = playing
	}
}

func (g *tableGame) ClearReady() {
	for _, r := range g.t.readiness {
		r.IsReady = false
	}
}

// --- 读取方法 ---

func (t *Table) AccessMode() models.AccessMode {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.accessMode
}

func (t *Table) Rated() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.rated
}

func (t *Table) HostID() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.hostID
}

func (t *Table) GameID() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.gameID
}

func (t *Table) GameStartedAt() time.Time {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.gameStartedAt
}

// Phase 返回当前对局阶段
func (t *Table) Phase() models.GamePhase {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return models.GamePhase(t.machine.GetCurrentState().GetID())
}

// SeatOf returns the seat number the player occupies at this table, 0 if
// none.
func (t *Table) SeatOf(playerID string) int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.seatOfLocked(playerID)
}

func (t *Table) seatOfLocked(playerID string) int {
	for i, p := range t.seats {
		if p == playerID && p != "" {
			return i + 1
		}
	}
	return 0
}

// PlayerAt returns the occupant of a seat, "" when empty.
func (t *Table) PlayerAt(seatNumber int) string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if seatNumber < 1 || seatNumber > SeatsPerTable {
		return ""
	}
	return t.seats[seatNumber-1]
}

// OccupiedCount 已占座位数
func (t *Table) OccupiedCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	count := 0
	for _, p := range t.seats {
		if p != "" {
			count++
		}
	}
	return count
}

// IsEmpty reports whether nobody is seated.
func (t *Table) IsEmpty() bool {
	return t.OccupiedCount() == 0
}

// Seated returns the phase-machine view of all occupied seats.
func (t *Table) Seated() []state.SeatedPlayer {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.seatedLocked()
}

func (t *Table) seatedLocked() []state.SeatedPlayer {
	var out []state.SeatedPlayer
	for i, p := range t.seats {
		if p == "" {
			continue
		}
		sp := state.SeatedPlayer{PlayerID: p, Seat: i + 1, Team: TeamOf(i + 1)}
		if r, ok := t.readiness[p]; ok {
			sp.Ready = r.IsReady
			sp.Playing = r.IsPlaying
		}
		out = append(out, sp)
	}
	return out
}

// Readiness returns the flag pair for a seated player.
func (t *Table) Readiness(playerID string) (models.PlayerReadiness, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	r, ok := t.readiness[playerID]
	if !ok {
		return models.PlayerReadiness{}, false
	}
	return *r, true
}

// HasGrant reports whether the player holds an accepted invitation.
func (t *Table) HasGrant(playerID string) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.grants[playerID]
}

// PendingInvitation returns the pending invitation id for an invitee, "" if
// none.
func (t *Table) PendingInvitation(inviteeID string) string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.pending[inviteeID]
}

// CanSit applies the access gate: PUBLIC admits any room member, PROTECTED
// and PRIVATE require being the host or holding an accepted invitation.
func (t *Table) CanSit(playerID string) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.canSitLocked(playerID)
}

func (t *Table) canSitLocked(playerID string) bool {
	if t.accessMode == models.AccessPublic {
		return true
	}
	return playerID == t.hostID || t.grants[playerID]
}

// CanWatch gates non-seated observation; only PRIVATE tables restrict it.
func (t *Table) CanWatch(playerID string) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.accessMode != models.AccessPrivate {
		return true
	}
	return playerID == t.hostID || t.grants[playerID]
}

// State 返回客户端视图
func (t *Table) State() models.TableState {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	ts := models.TableState{
		ID:         t.ID,
		RoomID:     t.RoomID,
		Number:     t.Number,
		AccessMode: t.accessMode,
		Rated:      t.rated,
		HostID:     t.hostID,
		Phase:      models.GamePhase(t.machine.GetCurrentState().GetID()),
	}
	for i, p := range t.seats {
		ts.Seats = append(ts.Seats, models.SeatState{
			Number:   i + 1,
			Team:     TeamOf(i + 1),
			PlayerID: p,
		})
	}
	return ts
}

// --- 请求路径校验（只读） ---

// CheckOccupy validates a sit request against current mirror state. The
// durable store re-checks at commit time; this is the fast early rejection.
func (t *Table) CheckOccupy(seatNumber int, playerID string) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if seatNumber < 1 || seatNumber > SeatsPerTable {
		return errs.E(errs.CodeNotFound, "seat %d not found", seatNumber)
	}
	if phase := models.GamePhase(t.machine.GetCurrentState().GetID()); phase == models.PhasePlaying {
		return errs.E(errs.CodeStateConflict, "table %d is mid-game", t.Number)
	}
	if occupant := t.seats[seatNumber-1]; occupant != "" {
		if occupant == playerID {
			return errs.E(errs.CodeStateConflict, "already seated at seat %d", seatNumber)
		}
		return errs.E(errs.CodeConflict, "seat %d is occupied", seatNumber)
	}
	if t.seatOfLocked(playerID) != 0 {
		return errs.E(errs.CodeStateConflict, "stand up before changing seats")
	}
	if !t.canSitLocked(playerID) {
		return errs.E(errs.CodeForbidden, "table %d requires an invitation", t.Number)
	}
	return nil
}

// CheckBoot validates a host booting the target player.
func (t *Table) CheckBoot(callerID, targetID string) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if callerID != t.hostID {
		return errs.E(errs.CodeForbidden, "only the host may boot players")
	}
	if targetID == t.hostID {
		return errs.E(errs.CodeValidation, "the host cannot be booted")
	}
	if t.seatOfLocked(targetID) == 0 {
		return errs.E(errs.CodeNotFound, "player is not seated at this table")
	}
	return nil
}

// HostSuccessor picks the deterministic replacement host when the current
// host leaves: the remaining player on the lowest seat number. Empty when
// nobody else is seated.
func (t *Table) HostSuccessor(leavingID string) string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	for _, p := range t.seats {
		if p != "" && p != leavingID {
			return p
		}
	}
	return ""
}

// Grandfathees lists seated non-host players, the grant set created when the
// table tightens from PUBLIC.
func (t *Table) Grandfathees() []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	var out []string
	for _, p := range t.seats {
		if p != "" && p != t.hostID {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// --- 事件应用（幂等） ---

// ApplySeatOccupied seats the player and opens their readiness record.
// Applying the same event twice is a no-op.
func (t *Table) ApplySeatOccupied(seatNumber int, playerID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if seatNumber < 1 || seatNumber > SeatsPerTable {
		return
	}
	idx := seatNumber - 1
	if t.seats[idx] != "" && t.seats[idx] != playerID {
		// 座位已被其他玩家占用，重复/过期事件不得覆盖
		return
	}
	t.seats[idx] = playerID
	if _, ok := t.readiness[playerID]; !ok {
		t.readiness[playerID] = &models.PlayerReadiness{}
	}
	if t.hostID == "" {
		t.hostID = playerID
	}
}

// ApplySeatVacated clears the seat and drops the readiness record.
func (t *Table) ApplySeatVacated(seatNumber int, playerID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if seatNumber < 1 || seatNumber > SeatsPerTable {
		return
	}
	idx := seatNumber - 1
	if t.seats[idx] != playerID {
		return
	}
	t.seats[idx] = ""
	delete(t.readiness, playerID)
	delete(t.grants, playerID)
	delete(t.pending, playerID)
}

// ApplyHostChanged 更换桌主
func (t *Table) ApplyHostChanged(hostID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.hostID = hostID
}

// ApplyReady flips a seated player's ready flag.
func (t *Table) ApplyReady(playerID string, ready bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if r, ok := t.readiness[playerID]; ok {
		r.IsReady = ready
	}
}

// ApplyAccessChanged updates the access mode and unions in the grandfathered
// grant set.
func (t *Table) ApplyAccessChanged(mode models.AccessMode, rated bool, grantees []string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.accessMode = mode
	t.rated = rated
	for _, g := range grantees {
		t.grants[g] = true
	}
}

// ApplyInvitationCreated records a pending invitation.
func (t *Table) ApplyInvitationCreated(inviteeID, invitationID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.pending[inviteeID] = invitationID
}

// ApplyInvitationAccepted moves an invitee into the grant set.
func (t *Table) ApplyInvitationAccepted(inviteeID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.pending, inviteeID)
	t.grants[inviteeID] = true
}

// ApplyInvitationDeclined drops the pending invitation.
func (t *Table) ApplyInvitationDeclined(inviteeID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.pending, inviteeID)
}

// ApplyInvitationRevoked removes any grant or pending invitation for the
// invitee (leave/boot cleanup).
func (t *Table) ApplyInvitationRevoked(inviteeID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.pending, inviteeID)
	delete(t.grants, inviteeID)
}

// ApplyPhase drives the phase machine. A phase event for an unknown (newer)
// game id opens a fresh round; an illegal transition from a replayed event is
// ignored.
func (t *Table) ApplyPhase(gameID string, phase models.GamePhase, startedAt time.Time) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if gameID != t.gameID {
		// 新一局：重建状态机
		t.gameID = gameID
		t.gameStartedAt = startedAt
		t.machine = state.NewPhaseMachine(&tableGame{t: t}, t.policy)
		if phase == models.PhaseWaiting {
			return
		}
	}
	if phase == models.PhasePlaying && t.gameStartedAt.IsZero() {
		t.gameStartedAt = startedAt
	}
	_ = t.machine.ChangeState(state.StateFor(phase, &tableGame{t: t}))
}

// services/table_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/puzzleserver/broadcast"
	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/invite"
	"github.com/wfunc/puzzleserver/logger"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/monitor"
	"github.com/wfunc/puzzleserver/persistence"
	"github.com/wfunc/puzzleserver/room"
	"github.com/wfunc/puzzleserver/state"
	"github.com/wfunc/puzzleserver/timer"
)

// TableService is the transactional application layer: every mutating action
// validates against the mirror, runs one all-or-nothing store transaction
// (seat rows, invitation rows, chat and notification appends together), and
// on commit publishes exactly one canonical event per logical action to the
// fanout bridge. The mirror is only ever updated by those events coming back.
type TableService struct {
	store   persistence.Store
	bridge  broadcast.Bridge
	rooms   *room.Manager
	policy  state.Policy
	monitor *monitor.Monitor

	countdown    time.Duration
	timerManager *timer.TimerManager

	cdMutex    sync.Mutex
	countdowns map[string]int64 // table id -> countdown timer id
}

func NewTableService(store persistence.Store, bridge broadcast.Bridge, rooms *room.Manager,
	policy state.Policy, countdown time.Duration, tm *timer.TimerManager) *TableService {
	return &TableService{
		store:        store,
		bridge:       bridge,
		rooms:        rooms,
		policy:       policy,
		countdown:    countdown,
		timerManager: tm,
		countdowns:   make(map[string]int64),
	}
}

// SetMonitor attaches optional metrics.
func (s *TableService) SetMonitor(m *monitor.Monitor) {
	s.monitor = m
}

// publish stamps and publishes one canonical event. Broker unavailability is
// fatal to the operation.
func (s *TableService) publish(ctx context.Context, ev *models.Event) error {
	ev.ID = uuid.New().String()
	ev.CreatedAt = time.Now()

	channel := models.ChannelRoom(ev.RoomID)
	if ev.TableID != "" {
		channel = models.ChannelTable(ev.TableID)
	}
	if err := s.bridge.Publish(ctx, channel, ev); err != nil {
		logger.Log.Errorf("publish %s on %s failed: %v", ev.Kind, channel, err)
		return err
	}
	if s.monitor != nil {
		s.monitor.IncEventsPublished()
	}
	return nil
}

// --- 房间 ---

// JoinRoom adds the player to a room, creating the room on first reference.
// Joining a room one is already in is a no-op.
func (s *TableService) JoinRoom(ctx context.Context, roomID, roomName, tier, playerID string) error {
	r := s.rooms.GetOrCreate(roomID, roomName, tier)
	if r.IsMember(playerID) {
		return nil
	}
	if err := r.CheckJoin(playerID); err != nil {
		return err
	}

	// 容量在事务内按成员行重验，并发抢最后一个名额在存储层串行化
	err := s.store.Transaction(func(tx persistence.Tx) error {
		if err := tx.SaveRoom(&models.RoomRecord{
			ID:       r.ID,
			Name:     r.Name,
			Tier:     r.Tier,
			Capacity: r.Capacity,
		}); err != nil {
			return err
		}
		count, err := tx.CountRoomMembers(r.ID)
		if err != nil {
			return err
		}
		if count >= r.Capacity {
			return errs.E(errs.CodeCapacity, "room %s is full", r.ID)
		}
		return tx.CreateRoomMember(&models.RoomMemberRecord{
			RoomID:   r.ID,
			PlayerID: playerID,
		})
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		// 已有成员行：另一条路径先写入，加入视为幂等
		return nil
	}
	if err != nil {
		return err
	}

	return s.publish(ctx, &models.Event{
		Kind:     models.EventRoomMembersChanged,
		RoomID:   roomID,
		PlayerID: playerID,
		Joined:   true,
	})
}

// LeaveRoom stands the player up from any table they occupy, clears their
// pending invitations in the room, then drops membership. Leaving a room one
// is not in is a no-op.
func (s *TableService) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	r, ok := s.rooms.Get(roomID)
	if !ok || !r.IsMember(playerID) {
		return nil
	}

	for _, t := range r.TablesOf(playerID) {
		if err := s.Stand(ctx, t.ID, playerID); err != nil {
			return err
		}
	}
	for _, t := range r.Tables() {
		if invID := t.PendingInvitation(playerID); invID != "" {
			if err := s.revokeInvitation(ctx, r, t, invID, playerID); err != nil {
				return err
			}
		}
	}

	err := s.store.Transaction(func(tx persistence.Tx) error {
		return tx.DeleteRoomMember(roomID, playerID)
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, &models.Event{
		Kind:     models.EventRoomMembersChanged,
		RoomID:   roomID,
		PlayerID: playerID,
		Joined:   false,
	})
}

// DestroyRoom is the administrative removal path; rooms are never reaped on
// emptiness.
func (s *TableService) DestroyRoom(ctx context.Context, roomID string) error {
	if _, ok := s.rooms.Get(roomID); !ok {
		return errs.E(errs.CodeNotFound, "room %s not found", roomID)
	}
	err := s.store.Transaction(func(tx persistence.Tx) error {
		return tx.DeleteRoomMembersForRoom(roomID)
	})
	if err != nil {
		return err
	}
	return s.publish(ctx, &models.Event{
		Kind:   models.EventRoomRemoved,
		RoomID: roomID,
	})
}

// --- 建桌 ---

// CreateTable allocates a table on the lowest unused number of the room.
func (s *TableService) CreateTable(ctx context.Context, roomID, playerID string,
	mode models.AccessMode, rated bool) (string, error) {
	r, ok := s.rooms.Get(roomID)
	if !ok || !r.IsMember(playerID) {
		return "", errs.E(errs.CodeForbidden, "join the room before creating a table")
	}
	return s.createTable(ctx, r, playerID, mode, rated, false)
}

func (s *TableService) createTable(ctx context.Context, r *room.Room, hostID string,
	mode models.AccessMode, rated, ephemeral bool) (string, error) {
	tableID := uuid.New().String()
	gameID := uuid.New().String()
	number := r.NextTableNumber()

	err := s.store.Transaction(func(tx persistence.Tx) error {
		return tx.SaveTable(&models.TableRecord{
			ID:         tableID,
			RoomID:     r.ID,
			Number:     number,
			AccessMode: mode,
			Rated:      rated,
			HostID:     hostID,
		})
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return "", errs.E(errs.CodeConflict, "table number %d was just taken", number)
		}
		return "", err
	}

	err = s.publish(ctx, &models.Event{
		Kind:        models.EventTableCreated,
		RoomID:      r.ID,
		TableID:     tableID,
		TableNumber: number,
		HostID:      hostID,
		AccessMode:  mode,
		Rated:       rated,
		Ephemeral:   ephemeral,
		GameID:      gameID,
	})
	return tableID, err
}

// --- 入座 / 起身 ---

// Sit occupies a seat. The mirror check rejects early; the unique constraints
// inside the transaction decide races, so at most one concurrent occupy of
// the same seat commits.
func (s *TableService) Sit(ctx context.Context, tableID string, seatNumber int, playerID string) error {
	r, t, ok := s.rooms.FindTable(tableID)
	if !ok {
		return errs.E(errs.CodeNotFound, "table %s not found", tableID)
	}
	if !r.IsMember(playerID) {
		return errs.E(errs.CodeForbidden, "join the room before sitting")
	}
	if err := t.CheckOccupy(seatNumber, playerID); err != nil {
		return err
	}
	if _, other, seat := s.rooms.SeatOfPlayer(playerID); seat != 0 && other.ID != tableID {
		return errs.E(errs.CodeStateConflict, "stand up at table %d first", other.Number)
	}

	err := s.sitTx(t, seatNumber, playerID)
	if err != nil {
		return err
	}

	return s.publish(ctx, &models.Event{
		Kind:       models.EventSeatOccupied,
		RoomID:     r.ID,
		TableID:    tableID,
		PlayerID:   playerID,
		SeatNumber: seatNumber,
	})
}

// sitTx writes the seat row plus its chat announcement atomically,
// re-checking preconditions against the authoritative store.
func (s *TableService) sitTx(t *room.Table, seatNumber int, playerID string) error {
	err := s.store.Transaction(func(tx persistence.Tx) error {
		if _, err := tx.GetSeatForPlayer(playerID); err == nil {
			return errs.E(errs.CodeStateConflict, "already seated elsewhere")
		} else if !errors.Is(err, persistence.ErrRecordNotFound) {
			return err
		}
		if err := tx.CreateSeatAssignment(&models.SeatAssignment{
			TableID:    t.ID,
			SeatNumber: seatNumber,
			PlayerID:   playerID,
		}); err != nil {
			return err
		}
		return tx.AppendChat(&models.ChatMessage{
			Scope:   "table",
			ScopeID: t.ID,
			Body:    fmt.Sprintf("%s sat down at seat %d", playerID, seatNumber),
		})
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return errs.E(errs.CodeConflict, "seat %d is occupied", seatNumber)
	}
	return err
}

// Stand vacates the player's seat; idempotent when not seated. Reassigns the
// host deterministically, closes empty ephemeral tables and ends a running
// round abnormally when team diversity drops below the policy floor.
func (s *TableService) Stand(ctx context.Context, tableID, playerID string) error {
	return s.vacate(ctx, tableID, playerID, "", "stood up")
}

// Boot is the host-only removal of another seated player. One transaction
// covers the seat row, the target's invitations, the chat event and the
// notification to the target.
func (s *TableService) Boot(ctx context.Context, tableID, callerID, targetID string) error {
	_, t, ok := s.rooms.FindTable(tableID)
	if !ok {
		return errs.E(errs.CodeNotFound, "table %s not found", tableID)
	}
	if err := t.CheckBoot(callerID, targetID); err != nil {
		return err
	}
	return s.vacate(ctx, tableID, targetID, callerID, "was booted")
}

func (s *TableService) vacate(ctx context.Context, tableID, playerID, bootedBy, chatVerb string) error {
	r, t, ok := s.rooms.FindTable(tableID)
	if !ok {
		return errs.E(errs.CodeNotFound, "table %s not found", tableID)
	}
	seatNumber := t.SeatOf(playerID)
	if seatNumber == 0 {
		return nil
	}

	phase := t.Phase()
	newHost := ""
	if t.HostID() == playerID {
		newHost = t.HostSuccessor(playerID)
	}
	remaining := len(t.Seated()) - 1
	tableClosed := t.Ephemeral && remaining == 0 && phase != models.PhasePlaying

	err := s.store.Transaction(func(tx persistence.Tx) error {
		if err := tx.DeleteSeatAssignment(tableID, seatNumber); err != nil {
			return err
		}
		if inv, err := tx.GetInvitationByInvitee(tableID, playerID); err == nil {
			if err := tx.DeleteInvitation(inv.ID); err != nil {
				return err
			}
		} else if !errors.Is(err, persistence.ErrRecordNotFound) {
			return err
		}
		if tableClosed {
			if err := tx.DeleteInvitationsForTable(tableID); err != nil {
				return err
			}
			if err := tx.DeleteTable(tableID); err != nil {
				return err
			}
		} else if newHost != "" || t.HostID() == playerID {
			if err := tx.SaveTable(&models.TableRecord{
				ID:         tableID,
				RoomID:     r.ID,
				Number:     t.Number,
				AccessMode: t.AccessMode(),
				Rated:      t.Rated(),
				HostID:     newHost,
			}); err != nil {
				return err
			}
		}
		if err := tx.AppendChat(&models.ChatMessage{
			Scope:   "table",
			ScopeID: tableID,
			Body:    fmt.Sprintf("%s %s", playerID, chatVerb),
		}); err != nil {
			return err
		}
		if bootedBy != "" {
			return tx.AppendNotification(&models.Notification{
				PlayerID: playerID,
				Kind:     "booted",
				Body:     fmt.Sprintf("you were removed from table %d", t.Number),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	reason := ""
	if bootedBy != "" {
		reason = "booted"
	}
	if err := s.publish(ctx, &models.Event{
		Kind:        models.EventSeatVacated,
		RoomID:      r.ID,
		TableID:     tableID,
		PlayerID:    playerID,
		SeatNumber:  seatNumber,
		HostID:      newHost,
		TableClosed: tableClosed,
		Reason:      reason,
	}); err != nil {
		return err
	}

	// 中途离席若破坏队伍底线，本局异常结束
	if !tableClosed && (phase == models.PhaseCountdown || phase == models.PhasePlaying) {
		left := excludePlayer(t.Seated(), playerID)
		if state.TeamsBelowMinimum(left, s.policy) {
			return s.endGame(ctx, r, t, nil, true)
		}
	}
	return nil
}

func excludePlayer(players []state.SeatedPlayer, playerID string) []state.SeatedPlayer {
	var out []state.SeatedPlayer
	for _, p := range players {
		if p.PlayerID != playerID {
			out = append(out, p)
		}
	}
	return out
}

// --- 访问模式 ---

// ChangeTableAccess switches the table's access mode. Tightening from PUBLIC
// grandfathers every seated non-host player with an accepted invitation,
// written transactionally with the system chat message.
func (s *TableService) ChangeTableAccess(ctx context.Context, tableID, callerID string,
	mode models.AccessMode, rated bool) error {
	r, t, ok := s.rooms.FindTable(tableID)
	if !ok {
		return errs.E(errs.CodeNotFound, "table %s not found", tableID)
	}
	if callerID != t.HostID() {
		return errs.E(errs.CodeForbidden, "only the host may change the table type")
	}

	var grantees []string
	if t.AccessMode() == models.AccessPublic && mode != models.AccessPublic {
		grantees = t.Grandfathees()
	}

	err := s.store.Transaction(func(tx persistence.Tx) error {
		if err := tx.SaveTable(&models.TableRecord{
			ID:         tableID,
			RoomID:     r.ID,
			Number:     t.Number,
			AccessMode: mode,
			Rated:      rated,
			HostID:     t.HostID(),
		}); err != nil {
			return err
		}
		for _, g := range grantees {
			err := tx.CreateInvitation(&models.InvitationRecord{
				ID:        uuid.New().String(),
				RoomID:    r.ID,
				TableID:   tableID,
				InviterID: callerID,
				InviteeID: g,
				Status:    models.InvitationAccepted,
			})
			if err != nil && !errors.Is(err, persistence.ErrDuplicate) {
				return err
			}
		}
		return tx.AppendChat(&models.ChatMessage{
			Scope:   "table",
			ScopeID: tableID,
			Body:    fmt.Sprintf("table %d is now %s", t.Number, strings.ToLower(string(mode))),
		})
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, &models.Event{
		Kind:       models.EventTableAccessChanged,
		RoomID:     r.ID,
		TableID:    tableID,
		AccessMode: mode,
		Rated:      rated,
		Grantees:   grantees,
	})
}

// --- 自动入座 ---

// PlayNow seats the requester by the deterministic auto-seat algorithm:
// emptiest eligible public table first, empty-team seats preferred, fixed
// seat priority. Creates a fresh public rated table when no table qualifies.
func (s *TableService) PlayNow(ctx context.Context, roomID, playerID string) (string, int, error) {
	r, ok := s.rooms.Get(roomID)
	if !ok || !r.IsMember(playerID) {
		return "", 0, errs.E(errs.CodeForbidden, "join the room before playing")
	}
	if _, _, seat := s.rooms.SeatOfPlayer(playerID); seat != 0 {
		return "", 0, errs.E(errs.CodeStateConflict, "stand up before playing again")
	}

	for _, t := range r.AutoSeatCandidates(playerID) {
		seat, err := room.PickAutoSeat(t)
		if err != nil {
			continue
		}
		if err := s.sitTx(t, seat, playerID); err != nil {
			if errs.CodeOf(err) == errs.CodeConflict {
				continue // lost the race, try the next candidate
			}
			return "", 0, err
		}
		if err := s.publish(ctx, &models.Event{
			Kind:       models.EventSeatOccupied,
			RoomID:     r.ID,
			TableID:    t.ID,
			PlayerID:   playerID,
			SeatNumber: seat,
		}); err != nil {
			return "", 0, err
		}
		return t.ID, seat, nil
	}

	// 没有可用桌子时新开一张公开积分桌
	tableID, err := s.createTable(ctx, r, playerID, models.AccessPublic, true, true)
	if err != nil {
		return "", 0, err
	}
	seat := 1 // empty table: first seat of the priority order
	if err := s.sitTxByID(tableID, seat, playerID); err != nil {
		return "", 0, err
	}
	err = s.publish(ctx, &models.Event{
		Kind:       models.EventSeatOccupied,
		RoomID:     r.ID,
		TableID:    tableID,
		PlayerID:   playerID,
		SeatNumber: seat,
	})
	return tableID, seat, err
}

func (s *TableService) sitTxByID(tableID string, seatNumber int, playerID string) error {
	err := s.store.Transaction(func(tx persistence.Tx) error {
		if err := tx.CreateSeatAssignment(&models.SeatAssignment{
			TableID:    tableID,
			SeatNumber: seatNumber,
			PlayerID:   playerID,
		}); err != nil {
			return err
		}
		return tx.AppendChat(&models.ChatMessage{
			Scope:   "table",
			ScopeID: tableID,
			Body:    fmt.Sprintf("%s sat down at seat %d", playerID, seatNumber),
		})
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return errs.E(errs.CodeConflict, "seat %d is occupied", seatNumber)
	}
	return err
}

// --- 准备 / 对局阶段 ---

// SetReady flips the caller's ready flag. All seated players ready with
// enough players and team diversity starts the countdown; dropping a flag
// during the countdown cancels it back to waiting.
func (s *TableService) SetReady(ctx context.Context, tableID, playerID string, ready bool) error {
	r, t, ok := s.rooms.FindTable(tableID)
	if !ok {
		return errs.E(errs.CodeNotFound, "table %s not found", tableID)
	}
	if t.SeatOf(playerID) == 0 {
		return errs.E(errs.CodeStateConflict, "sit down before readying up")
	}
	phase := t.Phase()
	if phase == models.PhasePlaying || phase == models.PhaseGameOver {
		return errs.E(errs.CodeStateConflict, "the round is already running")
	}

	// 阶段转换由镜像套用事件后的回调评估（见 EvaluateReadiness），
	// 本地请求视角不裁决
	return s.publish(ctx, &models.Event{
		Kind:     models.EventReadyChanged,
		RoomID:   r.ID,
		TableID:  tableID,
		PlayerID: playerID,
		Ready:    ready,
	})
}

// EvaluateReadiness runs after the mirror has applied a ready flag. It judges
// countdown eligibility on the merged event-stream state, so two players
// readying up from different processes converge once both events land.
// Concurrent evaluators may each publish the phase change; application is
// idempotent per gameID.
func (s *TableService) EvaluateReadiness(roomID, tableID string) {
	r, t, ok := s.rooms.FindTable(tableID)
	if !ok {
		return
	}

	var err error
	eligible := state.CountdownEligible(t.Seated(), s.policy)
	switch {
	case t.Phase() == models.PhaseWaiting && eligible:
		err = s.startCountdown(context.Background(), r, t)
	case t.Phase() == models.PhaseCountdown && !eligible:
		err = s.cancelCountdown(context.Background(), r, t)
	}
	if err != nil {
		logger.Log.Errorf("readiness evaluation for table %s failed: %v", tableID, err)
	}
}

func (s *TableService) startCountdown(ctx context.Context, r *room.Room, t *room.Table) error {
	gameID := t.GameID()
	if err := s.publish(ctx, &models.Event{
		Kind:    models.EventGamePhaseChanged,
		RoomID:  r.ID,
		TableID: t.ID,
		GameID:  gameID,
		Phase:   models.PhaseCountdown,
	}); err != nil {
		return err
	}

	s.cdMutex.Lock()
	defer s.cdMutex.Unlock()
	if tid, ok := s.countdowns[t.ID]; ok {
		s.timerManager.RemoveTimer(tid)
	}
	s.countdowns[t.ID] = s.timerManager.AddTimer(s.countdown, 0, func() {
		s.finishCountdown(t.ID, gameID)
	})
	return nil
}

func (s *TableService) cancelCountdown(ctx context.Context, r *room.Room, t *room.Table) error {
	s.cdMutex.Lock()
	if tid, ok := s.countdowns[t.ID]; ok {
		s.timerManager.RemoveTimer(tid)
		delete(s.countdowns, t.ID)
	}
	s.cdMutex.Unlock()

	return s.publish(ctx, &models.Event{
		Kind:    models.EventGamePhaseChanged,
		RoomID:  r.ID,
		TableID: t.ID,
		GameID:  t.GameID(),
		Phase:   models.PhaseWaiting,
	})
}

// finishCountdown fires on countdown expiry: if the same round is still
// counting down, the game starts and every seated player is marked playing.
func (s *TableService) finishCountdown(tableID, gameID string) {
	s.cdMutex.Lock()
	delete(s.countdowns, tableID)
	s.cdMutex.Unlock()

	r, t, ok := s.rooms.FindTable(tableID)
	if !ok || t.GameID() != gameID || t.Phase() != models.PhaseCountdown {
		return
	}
	err := s.publish(context.Background(), &models.Event{
		Kind:    models.EventGamePhaseChanged,
		RoomID:  r.ID,
		TableID: tableID,
		GameID:  gameID,
		Phase:   models.PhasePlaying,
	})
	if err != nil {
		logger.Log.Errorf("countdown expiry for table %s failed: %v", tableID, err)
	}
}

// GameOver is the entry point for the board-matching engine's winner
// determination.
func (s *TableService) GameOver(ctx context.Context, tableID string, winners []string) error {
	r, t, ok := s.rooms.FindTable(tableID)
	if !ok {
		return errs.E(errs.CodeNotFound, "table %s not found", tableID)
	}
	if t.Phase() != models.PhasePlaying {
		return errs.E(errs.CodeStateConflict, "no round is running")
	}
	return s.endGame(ctx, r, t, winners, false)
}

// endGame archives the round, announces GAME_OVER and opens a fresh waiting
// round for the table.
func (s *TableService) endGame(ctx context.Context, r *room.Room, t *room.Table,
	winners []string, abnormal bool) error {
	gameID := t.GameID()
	var players []string
	for _, p := range t.Seated() {
		players = append(players, p.PlayerID)
	}

	err := s.store.Transaction(func(tx persistence.Tx) error {
		return tx.SaveGameRecord(&models.GameRecord{
			ID:        gameID,
			TableID:   t.ID,
			RoomID:    r.ID,
			Players:   strings.Join(players, ","),
			Winners:   strings.Join(winners, ","),
			Abnormal:  abnormal,
			StartedAt: t.GameStartedAt(),
			EndedAt:   time.Now(),
		})
	})
	if err != nil {
		return err
	}

	if err := s.publish(ctx, &models.Event{
		Kind:    models.EventGamePhaseChanged,
		RoomID:  r.ID,
		TableID: t.ID,
		GameID:  gameID,
		Phase:   models.PhaseGameOver,
		Winners: winners,
	}); err != nil {
		return err
	}

	// 新一局
	return s.publish(ctx, &models.Event{
		Kind:    models.EventGamePhaseChanged,
		RoomID:  r.ID,
		TableID: t.ID,
		GameID:  uuid.New().String(),
		Phase:   models.PhaseWaiting,
	})
}

// --- 邀请协议 ---

// Invite creates a table invitation. Host only; at most one non-declined
// invitation per (table, invitee); inviting an already-seated grandfathered
// player yields an immediately accepted grant.
func (s *TableService) Invite(ctx context.Context, tableID, inviterID, inviteeID string) (string, error) {
	r, t, ok := s.rooms.FindTable(tableID)
	if !ok {
		return "", errs.E(errs.CodeNotFound, "table %s not found", tableID)
	}
	if inviterID != t.HostID() {
		return "", errs.E(errs.CodeForbidden, "only the host may invite players")
	}
	if inviteeID == inviterID {
		return "", errs.E(errs.CodeValidation, "cannot invite yourself")
	}
	if !r.IsMember(inviteeID) {
		return "", errs.E(errs.CodeNotFound, "player %s is not in this room", inviteeID)
	}
	if t.PendingInvitation(inviteeID) != "" || t.HasGrant(inviteeID) {
		return "", errs.E(errs.CodeConflict, "player already has an invitation to this table")
	}

	status := models.InvitationPending
	if t.SeatOf(inviteeID) != 0 {
		status = models.InvitationAccepted
	}
	invitationID := uuid.New().String()

	err := s.store.Transaction(func(tx persistence.Tx) error {
		if existing, err := tx.GetInvitationByInvitee(tableID, inviteeID); err == nil {
			if existing.Status != models.InvitationDeclined {
				return errs.E(errs.CodeConflict, "player already has an invitation to this table")
			}
		} else if !errors.Is(err, persistence.ErrRecordNotFound) {
			return err
		}
		if err := tx.CreateInvitation(&models.InvitationRecord{
			ID:        invitationID,
			RoomID:    r.ID,
			TableID:   tableID,
			InviterID: inviterID,
			InviteeID: inviteeID,
			Status:    status,
		}); err != nil {
			return err
		}
		return tx.AppendNotification(&models.Notification{
			PlayerID: inviteeID,
			Kind:     "invited",
			Body:     fmt.Sprintf("%s invited you to table %d", inviterID, t.Number),
		})
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return "", errs.E(errs.CodeConflict, "player already has an invitation to this table")
	}
	if err != nil {
		return "", err
	}

	kind := models.EventInvitationCreated
	if status == models.InvitationAccepted {
		kind = models.EventInvitationAccepted
	}
	return invitationID, s.publish(ctx, &models.Event{
		Kind:         kind,
		RoomID:       r.ID,
		TableID:      tableID,
		InvitationID: invitationID,
		InviterID:    inviterID,
		InviteeID:    inviteeID,
	})
}

// AcceptInvite moves a pending invitation to ACCEPTED, granting seat
// eligibility, with the system chat message and inviter notification in the
// same transaction.
func (s *TableService) AcceptInvite(ctx context.Context, invitationID, playerID string) error {
	var rec *models.InvitationRecord
	err := s.store.Transaction(func(tx persistence.Tx) error {
		var err error
		rec, err = tx.GetInvitation(invitationID)
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return errs.E(errs.CodeNotFound, "invitation not found")
		}
		if err != nil {
			return err
		}
		if rec.InviteeID != playerID {
			return errs.E(errs.CodeForbidden, "this invitation is not yours")
		}
		inv := invite.FromRecord(rec)
		if err := inv.Accept(); err != nil {
			return err
		}
		rec = inv.Record()
		if err := tx.UpdateInvitation(rec); err != nil {
			return err
		}
		if err := tx.AppendChat(&models.ChatMessage{
			Scope:   "table",
			ScopeID: rec.TableID,
			Body:    fmt.Sprintf("%s accepted an invitation", playerID),
		}); err != nil {
			return err
		}
		return tx.AppendNotification(&models.Notification{
			PlayerID: rec.InviterID,
			Kind:     "invite-accepted",
			Body:     fmt.Sprintf("%s accepted your invitation", playerID),
		})
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, &models.Event{
		Kind:         models.EventInvitationAccepted,
		RoomID:       rec.RoomID,
		TableID:      rec.TableID,
		InvitationID: rec.ID,
		InviterID:    rec.InviterID,
		InviteeID:    rec.InviteeID,
	})
}

// DeclineInvite moves a pending invitation to DECLINED. A decline of an
// already-accepted invitation is a state conflict, never a silent flip. The
// declined row is deleted so the invitee can be invited again later.
func (s *TableService) DeclineInvite(ctx context.Context, invitationID, playerID, reason string) error {
	var rec *models.InvitationRecord
	err := s.store.Transaction(func(tx persistence.Tx) error {
		var err error
		rec, err = tx.GetInvitation(invitationID)
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return errs.E(errs.CodeNotFound, "invitation not found")
		}
		if err != nil {
			return err
		}
		if rec.InviteeID != playerID {
			return errs.E(errs.CodeForbidden, "this invitation is not yours")
		}
		inv := invite.FromRecord(rec)
		if err := inv.Decline(reason); err != nil {
			return err
		}
		if err := tx.DeleteInvitation(rec.ID); err != nil {
			return err
		}
		body := fmt.Sprintf("%s declined your invitation", playerID)
		if reason != "" {
			body = fmt.Sprintf("%s declined your invitation: %s", playerID, reason)
		}
		return tx.AppendNotification(&models.Notification{
			PlayerID: rec.InviterID,
			Kind:     "invite-declined",
			Body:     body,
		})
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, &models.Event{
		Kind:         models.EventInvitationDeclined,
		RoomID:       rec.RoomID,
		TableID:      rec.TableID,
		InvitationID: rec.ID,
		InviterID:    rec.InviterID,
		InviteeID:    rec.InviteeID,
		Reason:       reason,
	})
}

func (s *TableService) revokeInvitation(ctx context.Context, r *room.Room, t *room.Table,
	invitationID, inviteeID string) error {
	err := s.store.Transaction(func(tx persistence.Tx) error {
		return tx.DeleteInvitation(invitationID)
	})
	if err != nil {
		return err
	}
	return s.publish(ctx, &models.Event{
		Kind:         models.EventInvitationRevoked,
		RoomID:       r.ID,
		TableID:      t.ID,
		InvitationID: invitationID,
		InviteeID:    inviteeID,
	})
}

// --- 聊天 ---

// SendChat appends a chat line to a room or table stream.
func (s *TableService) SendChat(ctx context.Context, roomID, tableID, playerID, body string) error {
	if strings.TrimSpace(body) == "" {
		return errs.E(errs.CodeValidation, "empty message")
	}
	r, ok := s.rooms.Get(roomID)
	if !ok || !r.IsMember(playerID) {
		return errs.E(errs.CodeForbidden, "join the room before chatting")
	}
	scope, scopeID := "room", roomID
	if tableID != "" {
		scope, scopeID = "table", tableID
	}

	err := s.store.Transaction(func(tx persistence.Tx) error {
		return tx.AppendChat(&models.ChatMessage{
			Scope:    scope,
			ScopeID:  scopeID,
			PlayerID: playerID,
			Body:     body,
		})
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, &models.Event{
		Kind:     models.EventChatMessage,
		RoomID:   roomID,
		TableID:  tableID,
		PlayerID: playerID,
		Message:  body,
	})
}

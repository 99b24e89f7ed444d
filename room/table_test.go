package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/state"
)

func newTestTable(mode models.AccessMode, hostID string) *Table {
	return NewTable("t1", "room1", 1, mode, true, hostID, state.DefaultPolicy())
}

func TestTeamOf(t *testing.T) {
	expected := map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 5: 3, 6: 3, 7: 4, 8: 4}
	for seat, team := range expected {
		assert.Equal(t, team, TeamOf(seat), "seat %d", seat)
	}
}

func TestCheckOccupyTaxonomy(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	tab.ApplySeatOccupied(1, "p1")

	err := tab.CheckOccupy(0, "p2")
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
	err = tab.CheckOccupy(9, "p2")
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))

	err = tab.CheckOccupy(1, "p2")
	assert.Equal(t, errs.CodeConflict, errs.CodeOf(err))

	// 同一玩家重复坐同一座位
	err = tab.CheckOccupy(1, "p1")
	assert.Equal(t, errs.CodeStateConflict, errs.CodeOf(err))

	// 换座前必须先起身
	err = tab.CheckOccupy(2, "p1")
	assert.Equal(t, errs.CodeStateConflict, errs.CodeOf(err))

	assert.NoError(t, tab.CheckOccupy(2, "p2"))
}

func TestCheckOccupyMidGame(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	tab.ApplySeatOccupied(1, "p1")
	tab.ApplySeatOccupied(3, "p2")
	tab.ApplyPhase("g1", models.PhaseWaiting, time.Now())
	tab.ApplyReady("p1", true)
	tab.ApplyReady("p2", true)
	tab.ApplyPhase("g1", models.PhaseCountdown, time.Now())
	tab.ApplyPhase("g1", models.PhasePlaying, time.Now())

	err := tab.CheckOccupy(5, "p3")
	assert.Equal(t, errs.CodeStateConflict, errs.CodeOf(err))
}

func TestAccessGate(t *testing.T) {
	tab := newTestTable(models.AccessProtected, "host")

	err := tab.CheckOccupy(1, "stranger")
	assert.Equal(t, errs.CodeForbidden, errs.CodeOf(err))

	// 桌主自己随时可坐
	assert.NoError(t, tab.CheckOccupy(1, "host"))

	// 接受邀请后放行
	tab.ApplyInvitationCreated("guest", "inv1")
	tab.ApplyInvitationAccepted("guest")
	assert.NoError(t, tab.CheckOccupy(2, "guest"))

	// 撤销后重新关门
	tab.ApplyInvitationRevoked("guest")
	err = tab.CheckOccupy(2, "guest")
	assert.Equal(t, errs.CodeForbidden, errs.CodeOf(err))
}

func TestCanWatch(t *testing.T) {
	public := newTestTable(models.AccessPublic, "host")
	assert.True(t, public.CanWatch("anyone"))

	protected := newTestTable(models.AccessProtected, "host")
	assert.True(t, protected.CanWatch("anyone"))

	private := newTestTable(models.AccessPrivate, "host")
	assert.False(t, private.CanWatch("anyone"))
	assert.True(t, private.CanWatch("host"))
	private.ApplyInvitationAccepted("guest")
	assert.True(t, private.CanWatch("guest"))
}

func TestApplySeatOccupiedIdempotent(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")

	tab.ApplySeatOccupied(1, "p1")
	tab.ApplySeatOccupied(1, "p1")
	assert.Equal(t, "p1", tab.PlayerAt(1))
	assert.Equal(t, 1, tab.OccupiedCount())

	// 过期事件不得覆盖现任占用者
	tab.ApplySeatOccupied(1, "p2")
	assert.Equal(t, "p1", tab.PlayerAt(1))

	// 首位入座者成为桌主
	assert.Equal(t, "p1", tab.HostID())
}

func TestApplySeatVacatedClearsPlayerState(t *testing.T) {
	tab := newTestTable(models.AccessProtected, "host")
	tab.ApplySeatOccupied(1, "host")
	tab.ApplyInvitationCreated("p2", "inv1")
	tab.ApplyInvitationAccepted("p2")
	tab.ApplySeatOccupied(3, "p2")
	tab.ApplyReady("p2", true)

	tab.ApplySeatVacated(3, "p2")
	assert.Equal(t, "", tab.PlayerAt(3))
	assert.False(t, tab.HasGrant("p2"))
	_, ok := tab.Readiness("p2")
	assert.False(t, ok)

	// 重复应用与错配玩家都是空操作
	tab.ApplySeatVacated(3, "p2")
	tab.ApplySeatVacated(1, "p2")
	assert.Equal(t, "host", tab.PlayerAt(1))
}

func TestHostSuccessorLowestSeat(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	tab.ApplySeatOccupied(5, "host")
	tab.ApplySeatOccupied(7, "p7")
	tab.ApplySeatOccupied(2, "p2")

	assert.Equal(t, "p2", tab.HostSuccessor("host"))

	solo := newTestTable(models.AccessPublic, "")
	solo.ApplySeatOccupied(1, "host")
	assert.Equal(t, "", solo.HostSuccessor("host"))
}

func TestGrandfathees(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	tab.ApplySeatOccupied(1, "host")
	tab.ApplySeatOccupied(2, "bob")
	tab.ApplySeatOccupied(3, "alice")

	assert.Equal(t, []string{"alice", "bob"}, tab.Grandfathees())
}

func TestCheckBoot(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	tab.ApplySeatOccupied(1, "host")
	tab.ApplySeatOccupied(2, "p2")

	assert.Equal(t, errs.CodeForbidden, errs.CodeOf(tab.CheckBoot("p2", "host")))
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(tab.CheckBoot("host", "host")))
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(tab.CheckBoot("host", "ghost")))
	assert.NoError(t, tab.CheckBoot("host", "p2"))
}

func TestApplyPhaseNewGameRebuildsMachine(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	tab.ApplySeatOccupied(1, "p1")
	tab.ApplySeatOccupied(3, "p2")
	tab.ApplyPhase("g1", models.PhaseWaiting, time.Now())
	tab.ApplyReady("p1", true)
	tab.ApplyReady("p2", true)
	tab.ApplyPhase("g1", models.PhaseCountdown, time.Now())
	tab.ApplyPhase("g1", models.PhasePlaying, time.Now())
	tab.ApplyPhase("g1", models.PhaseGameOver, time.Now())
	assert.Equal(t, models.PhaseGameOver, tab.Phase())

	// 结束后准备标志清空
	r, ok := tab.Readiness("p1")
	require.True(t, ok)
	assert.False(t, r.IsReady)

	// 新 game id 开启新一局
	tab.ApplyPhase("g2", models.PhaseWaiting, time.Now())
	assert.Equal(t, models.PhaseWaiting, tab.Phase())
	assert.Equal(t, "g2", tab.GameID())

	// 重放旧事件不产生非法转换
	tab.ApplyPhase("g2", models.PhaseWaiting, time.Now())
	assert.Equal(t, models.PhaseWaiting, tab.Phase())
}

func TestPlayingSetsPlayingFlags(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	tab.ApplySeatOccupied(1, "p1")
	tab.ApplySeatOccupied(3, "p2")
	tab.ApplyPhase("g1", models.PhaseWaiting, time.Now())
	tab.ApplyReady("p1", true)
	tab.ApplyReady("p2", true)
	tab.ApplyPhase("g1", models.PhaseCountdown, time.Now())
	tab.ApplyPhase("g1", models.PhasePlaying, time.Now())

	r, ok := tab.Readiness("p1")
	require.True(t, ok)
	assert.True(t, r.IsPlaying)
}

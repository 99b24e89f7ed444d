package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/state"
)

func TestPickAutoSeatEmptyTable(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	seat, err := PickAutoSeat(tab)
	require.NoError(t, err)
	assert.Equal(t, 1, seat)
}

func TestPickAutoSeatPrefersEmptyTeams(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	// 1队有人，2队空：应选3号而不是2号
	tab.ApplySeatOccupied(1, "p1")
	seat, err := PickAutoSeat(tab)
	require.NoError(t, err)
	assert.Equal(t, 3, seat)

	tab.ApplySeatOccupied(3, "p2")
	seat, err = PickAutoSeat(tab)
	require.NoError(t, err)
	assert.Equal(t, 5, seat)
}

func TestPickAutoSeatFallsBackToAnyEmpty(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	// 四个队各有一人，没有整队空位，按优先序取2号
	tab.ApplySeatOccupied(1, "p1")
	tab.ApplySeatOccupied(3, "p2")
	tab.ApplySeatOccupied(5, "p3")
	tab.ApplySeatOccupied(7, "p4")

	seat, err := PickAutoSeat(tab)
	require.NoError(t, err)
	assert.Equal(t, 2, seat)
}

func TestPickAutoSeatFullTable(t *testing.T) {
	tab := newTestTable(models.AccessPublic, "")
	for i := 1; i <= SeatsPerTable; i++ {
		tab.ApplySeatOccupied(i, "p"+string(rune('0'+i)))
	}
	_, err := PickAutoSeat(tab)
	assert.Equal(t, errs.CodeCapacity, errs.CodeOf(err))
}

func TestAutoSeatCandidatesOrdering(t *testing.T) {
	r := newTestRoom(16)
	policy := state.DefaultPolicy()

	busy := NewTable("t1", r.ID, 1, models.AccessPublic, true, "", policy)
	busy.ApplySeatOccupied(1, "a")
	busy.ApplySeatOccupied(3, "b")
	quiet := NewTable("t2", r.ID, 2, models.AccessPublic, true, "", policy)
	quiet.ApplySeatOccupied(1, "c")
	private := NewTable("t3", r.ID, 3, models.AccessPrivate, true, "c", policy)
	r.ApplyTableCreated(busy)
	r.ApplyTableCreated(quiet)
	r.ApplyTableCreated(private)

	got := r.AutoSeatCandidates("newcomer")
	require.Len(t, got, 2)
	// 空位多的优先，私密桌排除
	assert.Equal(t, "t2", got[0].ID)
	assert.Equal(t, "t1", got[1].ID)
}

func TestAutoSeatCandidatesSkipsPlayingAndOwnTable(t *testing.T) {
	r := newTestRoom(16)
	policy := state.DefaultPolicy()

	playing := NewTable("t1", r.ID, 1, models.AccessPublic, true, "", policy)
	playing.ApplySeatOccupied(1, "a")
	playing.ApplySeatOccupied(3, "b")
	playing.ApplyPhase("g1", models.PhaseWaiting, r.CreatedAt)
	playing.ApplyReady("a", true)
	playing.ApplyReady("b", true)
	playing.ApplyPhase("g1", models.PhaseCountdown, r.CreatedAt)
	playing.ApplyPhase("g1", models.PhasePlaying, r.CreatedAt)

	own := NewTable("t2", r.ID, 2, models.AccessPublic, true, "", policy)
	own.ApplySeatOccupied(1, "me")

	r.ApplyTableCreated(playing)
	r.ApplyTableCreated(own)

	assert.Empty(t, r.AutoSeatCandidates("me"))
}

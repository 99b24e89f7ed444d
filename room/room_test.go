package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/state"
)

func newTestRoom(capacity int) *Room {
	return NewRoom("room1", "Room One", "bronze", capacity, state.DefaultPolicy())
}

func TestRoomJoinCapacity(t *testing.T) {
	r := newTestRoom(2)

	require.NoError(t, r.CheckJoin("p1"))
	r.ApplyMemberJoined("p1")
	require.NoError(t, r.CheckJoin("p2"))
	r.ApplyMemberJoined("p2")

	err := r.CheckJoin("p3")
	require.Error(t, err)
	assert.Equal(t, errs.CodeCapacity, errs.CodeOf(err))

	// 已是成员的重复加入不受容量限制
	assert.NoError(t, r.CheckJoin("p1"))
}

func TestRoomMembershipIdempotent(t *testing.T) {
	r := newTestRoom(8)

	r.ApplyMemberJoined("p1")
	r.ApplyMemberJoined("p1")
	assert.Equal(t, 1, r.MemberCount())

	r.ApplyMemberLeft("p1")
	r.ApplyMemberLeft("p1")
	assert.Equal(t, 0, r.MemberCount())
}

func TestNextTableNumberRecycled(t *testing.T) {
	r := newTestRoom(8)
	policy := state.DefaultPolicy()

	assert.Equal(t, 1, r.NextTableNumber())
	r.ApplyTableCreated(NewTable("t1", r.ID, 1, models.AccessPublic, true, "p1", policy))
	r.ApplyTableCreated(NewTable("t2", r.ID, 2, models.AccessPublic, true, "p1", policy))
	r.ApplyTableCreated(NewTable("t3", r.ID, 3, models.AccessPublic, true, "p1", policy))
	assert.Equal(t, 4, r.NextTableNumber())

	// 2号桌删除后，桌号回收复用
	r.ApplyTableRemoved("t2")
	assert.Equal(t, 2, r.NextTableNumber())
}

func TestManagerFindTableAndSeat(t *testing.T) {
	m := NewManager(8, state.DefaultPolicy())
	r := m.GetOrCreate("room1", "Room One", "bronze")
	tab := NewTable("t1", r.ID, 1, models.AccessPublic, true, "", m.Policy())
	r.ApplyTableCreated(tab)
	tab.ApplySeatOccupied(3, "p1")

	foundRoom, foundTable, ok := m.FindTable("t1")
	require.True(t, ok)
	assert.Equal(t, r.ID, foundRoom.ID)
	assert.Equal(t, tab.ID, foundTable.ID)

	seatRoom, seatTable, seat := m.SeatOfPlayer("p1")
	require.NotNil(t, seatRoom)
	assert.Equal(t, tab.ID, seatTable.ID)
	assert.Equal(t, 3, seat)

	_, _, seat = m.SeatOfPlayer("nobody")
	assert.Equal(t, 0, seat)
}

func TestManagerGetOrCreateReturnsExisting(t *testing.T) {
	m := NewManager(8, state.DefaultPolicy())
	r1 := m.GetOrCreate("room1", "Room One", "bronze")
	r1.ApplyMemberJoined("p1")

	r2 := m.GetOrCreate("room1", "ignored", "ignored")
	assert.Same(t, r1, r2)
	assert.True(t, r2.IsMember("p1"))
}

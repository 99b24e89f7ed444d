package invite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/models"
)

func pendingInvitation(id string) *Invitation {
	return &Invitation{
		ID:        id,
		RoomID:    "room1",
		TableID:   "t1",
		InviterID: "host",
		InviteeID: "guest",
		Status:    models.InvitationPending,
		CreatedAt: time.Now(),
	}
}

func TestAccept(t *testing.T) {
	inv := pendingInvitation("inv1")
	require.NoError(t, inv.Accept())
	assert.Equal(t, models.InvitationAccepted, inv.Status)

	// 重复接受是空操作
	require.NoError(t, inv.Accept())
	assert.Equal(t, models.InvitationAccepted, inv.Status)
}

func TestAcceptDeclined(t *testing.T) {
	inv := pendingInvitation("inv1")
	require.NoError(t, inv.Decline("busy"))

	err := inv.Accept()
	assert.Equal(t, errs.CodeStateConflict, errs.CodeOf(err))
	assert.Equal(t, models.InvitationDeclined, inv.Status)
}

func TestDecline(t *testing.T) {
	inv := pendingInvitation("inv1")
	require.NoError(t, inv.Decline("not now"))
	assert.Equal(t, models.InvitationDeclined, inv.Status)
	assert.Equal(t, "not now", inv.Reason)
}

func TestDeclineAcceptedIsStateConflict(t *testing.T) {
	inv := pendingInvitation("inv1")
	require.NoError(t, inv.Accept())

	// 已接受的邀请不能拒绝，不得静默翻转
	err := inv.Decline("changed my mind")
	assert.Equal(t, errs.CodeStateConflict, errs.CodeOf(err))
	assert.Equal(t, models.InvitationAccepted, inv.Status)
}

func TestRecordRoundTrip(t *testing.T) {
	inv := pendingInvitation("inv1")
	got := FromRecord(inv.Record())
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, inv.InviteeID, got.InviteeID)
	assert.Equal(t, inv.Status, got.Status)
}

func TestManagerTracking(t *testing.T) {
	host := NewManager()

	inv := pendingInvitation("inv1")
	host.Track("host", inv)

	require.Len(t, host.Sent(), 1)
	require.Len(t, host.Received(), 0)

	guest := NewManager()
	guest.Track("guest", inv)
	require.Len(t, guest.Received(), 1)
	require.Len(t, guest.Sent(), 0)
}

func TestManagerSetStatusDropsDeclined(t *testing.T) {
	m := NewManager()
	m.Track("guest", pendingInvitation("inv1"))
	m.Track("guest", &Invitation{
		ID: "inv2", InviterID: "host", InviteeID: "guest",
		Status: models.InvitationPending, CreatedAt: time.Now().Add(time.Second),
	})

	m.SetStatus("inv1", models.InvitationAccepted, "")
	require.Len(t, m.Received(), 2)
	assert.Equal(t, models.InvitationAccepted, m.Received()[0].Status)

	// 拒绝后离开活跃集合
	m.SetStatus("inv2", models.InvitationDeclined, "busy")
	require.Len(t, m.Received(), 1)
	assert.Equal(t, "inv1", m.Received()[0].ID)
}

func TestManagerDrop(t *testing.T) {
	m := NewManager()
	m.Track("guest", pendingInvitation("inv1"))
	m.Drop("inv1")
	assert.Empty(t, m.Received())
	// 再次丢弃未知ID是空操作
	m.Drop("inv1")
}

package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/puzzleserver/models"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	s := NewMemStore()

	err := s.Transaction(func(tx Tx) error {
		require.NoError(t, tx.CreateSeatAssignment(&models.SeatAssignment{
			TableID: "t1", SeatNumber: 1, PlayerID: "p1",
		}))
		return errors.New("boom")
	})
	require.Error(t, err)

	// 失败事务的写入不可见
	assert.Empty(t, s.Seats())
}

func TestSeatUniqueConstraints(t *testing.T) {
	s := NewMemStore()

	require.NoError(t, s.Transaction(func(tx Tx) error {
		return tx.CreateSeatAssignment(&models.SeatAssignment{
			TableID: "t1", SeatNumber: 1, PlayerID: "p1",
		})
	}))

	// 同桌同座
	err := s.Transaction(func(tx Tx) error {
		return tx.CreateSeatAssignment(&models.SeatAssignment{
			TableID: "t1", SeatNumber: 1, PlayerID: "p2",
		})
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	// 同一玩家第二个座位，跨桌也不行
	err = s.Transaction(func(tx Tx) error {
		return tx.CreateSeatAssignment(&models.SeatAssignment{
			TableID: "t2", SeatNumber: 4, PlayerID: "p1",
		})
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestInvitationUniquePerInvitee(t *testing.T) {
	s := NewMemStore()

	require.NoError(t, s.Transaction(func(tx Tx) error {
		return tx.CreateInvitation(&models.InvitationRecord{
			ID: "inv1", RoomID: "room1", TableID: "t1",
			InviterID: "host", InviteeID: "guest",
			Status: models.InvitationPending,
		})
	}))

	err := s.Transaction(func(tx Tx) error {
		return tx.CreateInvitation(&models.InvitationRecord{
			ID: "inv2", RoomID: "room1", TableID: "t1",
			InviterID: "host", InviteeID: "guest",
			Status: models.InvitationPending,
		})
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	// 删除后可以重新邀请
	require.NoError(t, s.Transaction(func(tx Tx) error {
		return tx.DeleteInvitation("inv1")
	}))
	require.NoError(t, s.Transaction(func(tx Tx) error {
		return tx.CreateInvitation(&models.InvitationRecord{
			ID: "inv3", RoomID: "room1", TableID: "t1",
			InviterID: "host", InviteeID: "guest",
			Status: models.InvitationPending,
		})
	}))
}

func TestGetSeatForPlayer(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Transaction(func(tx Tx) error {
		return tx.CreateSeatAssignment(&models.SeatAssignment{
			TableID: "t1", SeatNumber: 3, PlayerID: "p1",
		})
	}))

	require.NoError(t, s.Transaction(func(tx Tx) error {
		seat, err := tx.GetSeatForPlayer("p1")
		require.NoError(t, err)
		assert.Equal(t, 3, seat.SeatNumber)

		_, err = tx.GetSeatForPlayer("ghost")
		assert.ErrorIs(t, err, ErrRecordNotFound)
		return nil
	}))
}

// room/autoseat.go
package room

import (
	"sort"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/models"
)

// seatPriority is the fixed pick order: odd seats (first slot of each team)
// before even ones, so newcomers spread across teams before pairing up.
var seatPriority = [SeatsPerTable]int{1, 3, 5, 7, 2, 4, 6, 8}

// PickAutoSeat selects the seat the "play now" flow assigns on a table.
// Seats on fully-empty teams are preferred; within the pool the fixed
// priority order decides. This is the one implementation shared by the
// auto-seat entry points.
func PickAutoSeat(t *Table) (int, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	teamOccupied := make(map[int]bool)
	for i, p := range t.seats {
		if p != "" {
			teamOccupied[TeamOf(i+1)] = true
		}
	}

	pool := make(map[int]bool)
	for i, p := range t.seats {
		seat := i + 1
		if p == "" && !teamOccupied[TeamOf(seat)] {
			pool[seat] = true
		}
	}
	if len(pool) == 0 {
		// 没有整队空位时退回到所有空座位
		for i, p := range t.seats {
			if p == "" {
				pool[i+1] = true
			}
		}
	}

	for _, seat := range seatPriority {
		if pool[seat] {
			return seat, nil
		}
	}
	return 0, errs.E(errs.CodeCapacity, "no seats available on table %d", t.Number)
}

// AutoSeatCandidates returns the room's tables eligible for "play now":
// public, not mid-game, and not already containing the requester; emptier
// tables first, table number as the deterministic tie-break.
func (r *Room) AutoSeatCandidates(playerID string) []*Table {
	var out []*Table
	for _, t := range r.Tables() {
		if t.AccessMode() != models.AccessPublic {
			continue
		}
		if t.Phase() == models.PhasePlaying {
			continue
		}
		if t.SeatOf(playerID) != 0 {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := out[i].OccupiedCount(), out[j].OccupiedCount()
		if oi != oj {
			return oi < oj
		}
		return out[i].Number < out[j].Number
	})
	return out
}

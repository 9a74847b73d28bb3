// Package turn maintains the rotation order and advantage window of
// turn-based rooms.
package turn

import (
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
)

// Initialize builds the rotation from the room's contestants in join order.
// The first turn is assigned but its advantage window has not started.
func Initialize(room *models.Room) (*models.TurnState, error) {
	contestants := room.Contestants()
	if len(contestants) == 0 {
		return nil, roomerr.Validation("cannot initialize rotation in room %s: no players", room.Code)
	}

	order := make([]string, len(contestants))
	for i, p := range contestants {
		order[i] = p.ID
	}
	room.Turn = &models.TurnState{
		Order:           order,
		TurnNumber:      1,
		CurrentPlayerID: order[0],
		NextIndex:       1 % len(order),
	}
	return room.Turn, nil
}

// Advance moves the rotation to the next player still in the room and opens
// their advantage window. Departed players are skipped but keep their slot in
// the order. On error the turn state is left untouched.
func Advance(room *models.Room, now time.Time) (*models.TurnState, error) {
	t := room.Turn
	if t == nil || len(t.Order) == 0 {
		return nil, roomerr.Validation("turn rotation not initialized in room %s", room.Code)
	}

	n := len(t.Order)
	for step := 1; step <= n; step++ {
		number := t.TurnNumber + step
		candidate := t.Order[(number-1)%n]
		if _, ok := room.Players[candidate]; !ok {
			continue
		}
		t.TurnNumber = number
		t.CurrentPlayerID = candidate
		t.NextIndex = number % n
		t.ItemID = ""
		open(t, now)
		return t, nil
	}
	return nil, roomerr.Validation("no remaining players in rotation of room %s", room.Code)
}

// Begin opens the turn that serves itemID. A turn that has not served an
// item yet (the first turn after Initialize, or one started by Advance) is
// reused and its advantage window restarts; otherwise the rotation advances.
func Begin(room *models.Room, itemID string, now time.Time) (*models.TurnState, error) {
	t := room.Turn
	if t == nil {
		return nil, roomerr.Validation("turn rotation not initialized in room %s", room.Code)
	}
	if t.ItemID == "" {
		if _, ok := room.Players[t.CurrentPlayerID]; ok {
			open(t, now)
			t.ItemID = itemID
			return t, nil
		}
	}
	if _, err := Advance(room, now); err != nil {
		return nil, err
	}
	t.ItemID = itemID
	return t, nil
}

// EndAdvantage closes the advantage window of turnNumber. It reports false
// when the window already closed or another turn has started since.
func EndAdvantage(room *models.Room, turnNumber int) bool {
	t := room.Turn
	if t == nil || t.TurnNumber != turnNumber || !t.AdvantagePhase {
		return false
	}
	t.AdvantagePhase = false
	return true
}

// AdvantageDeadline returns when the advantage window of the current turn ends.
func AdvantageDeadline(room *models.Room) time.Time {
	return room.Turn.StartedAt.Add(time.Duration(room.GameMode.Settings.AdvantageSeconds) * time.Second)
}

func open(t *models.TurnState, now time.Time) {
	t.StartedAt = now
	t.AdvantagePhase = true
}

package score

import (
	"testing"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/mcdev12/buzzroom/go/internal/room/roomtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func win(room *models.Room, pid string) {
	room.Winner = &models.WinnerRecord{ParticipantID: pid, ParticipantName: pid, Timestamp: roomtest.Epoch}
	room.SignalEnabled = false
	room.Phase = models.PhaseSignalReceived
}

func TestAdjudicate_CorrectThenWrong(t *testing.T) {
	room := roomtest.Room("S", models.ModeClassic, "P")
	now := roomtest.Epoch.Add(time.Minute)

	win(room, "P")
	res, err := Adjudicate(room, models.VerdictCorrect, now)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Player.Points)
	assert.Equal(t, 1, res.Player.CurrentStreak)
	assert.Equal(t, 10, res.Delta)
	assert.Nil(t, room.Winner)
	assert.False(t, room.SignalEnabled)
	assert.Equal(t, models.PhaseAdjudicated, room.Phase)

	win(room, "P")
	res, err = Adjudicate(room, models.VerdictWrong, now)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Player.Points)
	assert.Equal(t, 0, res.Player.CurrentStreak)
	assert.Equal(t, 1, res.Player.BestStreak)
	assert.Equal(t, 1, res.Player.CorrectCount)
	assert.Equal(t, 1, res.Player.WrongCount)
	assert.Equal(t, -5, res.Delta)
}

func TestAdjudicate_PointsNeverNegative(t *testing.T) {
	room := roomtest.Room("S", models.ModeClassic, "P")
	room.Players["P"].Points = 3

	win(room, "P")
	res, err := Adjudicate(room, models.VerdictWrong, roomtest.Epoch)
	require.NoError(t, err)
	assert.Zero(t, res.Player.Points)
	assert.Equal(t, -3, res.Delta)

	win(room, "P")
	res, err = Adjudicate(room, models.VerdictWrong, roomtest.Epoch)
	require.NoError(t, err)
	assert.Zero(t, res.Player.Points)
}

func TestAdjudicate_ExcellentAndStreaks(t *testing.T) {
	room := roomtest.Room("S", models.ModeClassic, "P")
	for i := 0; i < 3; i++ {
		win(room, "P")
		_, err := Adjudicate(room, models.VerdictExcellent, roomtest.Epoch)
		require.NoError(t, err)
	}
	p := room.Players["P"]
	assert.Equal(t, 60, p.Points)
	assert.Equal(t, 3, p.CurrentStreak)
	assert.Equal(t, 3, p.BestStreak)
	assert.NotNil(t, p.LastAnswerAt)
}

func TestAdjudicate_RejectedClearsAttempt(t *testing.T) {
	room := roomtest.Open(roomtest.Room("S", models.ModeExpert, "P", "Q"), "item-1")
	room.RecordAttempt("item-1", "P")
	room.RecordAttempt("item-1", "Q")
	win(room, "P")

	res, err := Adjudicate(room, models.VerdictRejected, roomtest.Epoch)
	require.NoError(t, err)
	assert.Zero(t, res.Delta)
	assert.Zero(t, res.Player.Points)
	assert.Nil(t, res.Player.LastAnswerAt)
	assert.False(t, room.HasAttempted("item-1", "P"))
	assert.True(t, room.HasAttempted("item-1", "Q"))
	assert.Nil(t, room.Winner)
}

func TestAdjudicate_Invalid(t *testing.T) {
	room := roomtest.Room("S", models.ModeClassic, "P")

	_, err := Adjudicate(room, models.VerdictCorrect, roomtest.Epoch)
	assert.ErrorIs(t, err, roomerr.ErrValidation)

	win(room, "P")
	_, err = Adjudicate(room, "maybe", roomtest.Epoch)
	assert.ErrorIs(t, err, roomerr.ErrValidation)
	assert.NotNil(t, room.Winner)

	delete(room.Players, "P")
	_, err = Adjudicate(room, models.VerdictCorrect, roomtest.Epoch)
	assert.ErrorIs(t, err, roomerr.ErrValidation)
}

func TestTeamStandingsAndLeaderboard(t *testing.T) {
	room := roomtest.Room("S", models.ModeTeams, "a", "b", "c", "d")
	room.Players["a"].Team, room.Players["a"].Points = "red", 10
	room.Players["b"].Team, room.Players["b"].Points = "blue", 30
	room.Players["c"].Team, room.Players["c"].Points = "red", 25
	room.Players["d"].Points = 30
	room.Players["d"].BestStreak = 2

	standings := TeamStandings(room)
	require.Len(t, standings, 2)
	assert.Equal(t, TeamStanding{Team: "red", Points: 35, Members: []string{"a", "c"}}, standings[0])
	assert.Equal(t, "blue", standings[1].Team)

	board := Leaderboard(room)
	ids := make([]string, len(board))
	for i, p := range board {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids)
}

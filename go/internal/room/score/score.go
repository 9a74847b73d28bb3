// Package score applies host verdicts to players.
package score

import (
	"sort"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
)

// Result describes the effect of one adjudication.
type Result struct {
	Player  *models.Player
	Verdict models.Verdict
	Delta   int // change in points, negative for a penalty
}

// Adjudicate applies verdict to the current winner of room and clears the
// winner. Signaling is not re-opened. Points never drop below zero.
func Adjudicate(room *models.Room, verdict models.Verdict, now time.Time) (*Result, error) {
	if !verdict.Valid() {
		return nil, roomerr.Validation("unknown verdict %q", verdict)
	}
	if room.Winner == nil {
		return nil, roomerr.Validation("no winner to adjudicate in room %s", room.Code)
	}
	p, ok := room.Players[room.Winner.ParticipantID]
	if !ok {
		return nil, roomerr.Validation("winner %s is no longer in room %s", room.Winner.ParticipantID, room.Code)
	}

	s := room.GameMode.Settings
	before := p.Points
	switch verdict {
	case models.VerdictCorrect:
		p.Points += s.PointsCorrect
		hit(p)
	case models.VerdictExcellent:
		p.Points += s.PointsExcellent
		hit(p)
	case models.VerdictWrong:
		p.Points = max(0, p.Points-s.PointsWrong)
		p.CurrentStreak = 0
		p.WrongCount++
	case models.VerdictRejected:
		room.ClearAttempt(room.CurrentItemID, p.ID)
	}
	if verdict != models.VerdictRejected {
		at := now
		p.LastAnswerAt = &at
	}

	room.Winner = nil
	room.SignalEnabled = false
	room.Phase = models.PhaseAdjudicated
	room.UpdatedAt = now

	return &Result{Player: p, Verdict: verdict, Delta: p.Points - before}, nil
}

func hit(p *models.Player) {
	p.CurrentStreak++
	p.BestStreak = max(p.BestStreak, p.CurrentStreak)
	p.CorrectCount++
}

// TeamStanding is the combined score of one team.
type TeamStanding struct {
	Team    string   `json:"team"`
	Points  int      `json:"points"`
	Members []string `json:"members"`
}

// TeamStandings sums points per team, highest first. Players without a team
// are left out.
func TeamStandings(room *models.Room) []TeamStanding {
	byTeam := make(map[string]*TeamStanding)
	for _, p := range room.Contestants() {
		if p.Team == "" {
			continue
		}
		ts, ok := byTeam[p.Team]
		if !ok {
			ts = &TeamStanding{Team: p.Team}
			byTeam[p.Team] = ts
		}
		ts.Points += p.Points
		ts.Members = append(ts.Members, p.ID)
	}

	out := make([]TeamStanding, 0, len(byTeam))
	for _, ts := range byTeam {
		out = append(out, *ts)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Team < out[j].Team
	})
	return out
}

// Leaderboard ranks contestants by points, then best streak, then name.
func Leaderboard(room *models.Room) []*models.Player {
	players := room.Contestants()
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.BestStreak != b.BestStreak {
			return a.BestStreak > b.BestStreak
		}
		return a.Name < b.Name
	})
	return players
}

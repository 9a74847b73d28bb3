package models

import "time"

// Player is a participant registered in a room.
type Player struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	IsHost        bool       `json:"is_host"`
	Points        int        `json:"points"`
	Team          string     `json:"team,omitempty"`
	CurrentStreak int        `json:"current_streak"`
	BestStreak    int        `json:"best_streak"`
	CorrectCount  int        `json:"correct_count"`
	WrongCount    int        `json:"wrong_count"`
	LastAnswerAt  *time.Time `json:"last_answer_at,omitempty"`
	JoinedAt      time.Time  `json:"joined_at"`
}

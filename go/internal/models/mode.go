package models

import "fmt"

// Mode names a ruleset selecting gating and scoring policy.
type Mode string

const (
	ModeClassic   Mode = "classic"
	ModeEasy      Mode = "easy"
	ModeExpert    Mode = "expert"
	ModeSpeed     Mode = "speed"
	ModeTurnBased Mode = "turnBased"
	ModeTeams     Mode = "teams"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeClassic, ModeEasy, ModeExpert, ModeSpeed, ModeTurnBased, ModeTeams:
		return true
	}
	return false
}

// ModeSettings holds the tunables of a mode.
type ModeSettings struct {
	PointsCorrect    int `json:"points_correct" yaml:"points_correct"`
	PointsWrong      int `json:"points_wrong" yaml:"points_wrong"`
	PointsExcellent  int `json:"points_excellent" yaml:"points_excellent"`
	BuzzDelaySeconds int `json:"buzz_delay_seconds,omitempty" yaml:"buzz_delay_seconds"` // easy
	AdvantageSeconds int `json:"advantage_seconds,omitempty" yaml:"advantage_seconds"`   // turnBased
	CountdownSteps   int `json:"countdown_steps" yaml:"countdown_steps"`
}

// GameMode is the active mode together with its settings.
type GameMode struct {
	Mode     Mode         `json:"mode"`
	Settings ModeSettings `json:"settings"`
}

const (
	DefaultPointsCorrect    = 10
	DefaultPointsWrong      = 5
	DefaultPointsExcellent  = 20
	DefaultBuzzDelaySeconds = 3
	DefaultAdvantageSeconds = 10
	DefaultCountdownSteps   = 3
)

// DefaultSettings returns the built-in settings.
func DefaultSettings() ModeSettings {
	return ModeSettings{
		PointsCorrect:    DefaultPointsCorrect,
		PointsWrong:      DefaultPointsWrong,
		PointsExcellent:  DefaultPointsExcellent,
		BuzzDelaySeconds: DefaultBuzzDelaySeconds,
		AdvantageSeconds: DefaultAdvantageSeconds,
		CountdownSteps:   DefaultCountdownSteps,
	}
}

// Validate checks that a game mode can be activated.
func (g GameMode) Validate() error {
	if !g.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", g.Mode)
	}
	s := g.Settings
	if s.PointsCorrect < 0 || s.PointsWrong < 0 || s.PointsExcellent < 0 {
		return fmt.Errorf("points must not be negative")
	}
	if s.CountdownSteps < 0 {
		return fmt.Errorf("countdown_steps must not be negative")
	}
	if g.Mode == ModeEasy && s.BuzzDelaySeconds < 0 {
		return fmt.Errorf("buzz_delay_seconds must not be negative")
	}
	if g.Mode == ModeTurnBased && s.AdvantageSeconds <= 0 {
		return fmt.Errorf("advantage_seconds must be positive for turn-based mode")
	}
	return nil
}

// Verdict is the host's judgement of a winner's answer.
type Verdict string

const (
	VerdictCorrect   Verdict = "correct"
	VerdictWrong     Verdict = "wrong"
	VerdictExcellent Verdict = "excellent"
	VerdictRejected  Verdict = "rejected"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictCorrect, VerdictWrong, VerdictExcellent, VerdictRejected:
		return true
	}
	return false
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
	StatusAbandoned  Status = "abandoned"
)

func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAbandoned
}

type GameResult string

const (
	ResultCompleted  GameResult = "completed"
	ResultTimeout    GameResult = "timeout"
	ResultPlayerLeft GameResult = "player_left"
)

type Player struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"username"`
	Avatar      *string   `json:"avatar"`
	IsReady     bool      `json:"isReady"`
}

type Winner struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"username"`
}

// GameSession is the authoritative in-memory representation of a single duel.
// The durable games row mirrors it; timeRemaining and live ready flags are
// owned here, finalized fields are owned by the store.
type GameSession struct {
	ID            uuid.UUID  `json:"id"`
	Player1       Player     `json:"player1"`
	Player2       Player     `json:"player2"`
	Status        Status     `json:"status"`
	Duration      int64      `json:"duration"`
	TimeRemaining int64      `json:"timeRemaining"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	GameResult    GameResult `json:"gameResult,omitempty"`
	Winner        *Winner    `json:"winner,omitempty"`
}

func NewGameSession(id uuid.UUID, player1, player2 Player, duration time.Duration) *GameSession {
	return &GameSession{
		ID:            id,
		Player1:       player1,
		Player2:       player2,
		Status:        StatusWaiting,
		Duration:      duration.Milliseconds(),
		TimeRemaining: duration.Milliseconds(),
	}
}

func (s *GameSession) HasPlayer(userID uuid.UUID) bool {
	return s.Player1.ID == userID || s.Player2.ID == userID
}

func (s *GameSession) Opponent(userID uuid.UUID) (Player, error) {
	switch userID {
	case s.Player1.ID:
		return s.Player2, nil
	case s.Player2.ID:
		return s.Player1, nil
	default:
		return Player{}, fmt.Errorf("user '%s' is not a participant in session '%s'", userID, s.ID)
	}
}

// SetReady marks the caller's slot ready. Idempotent.
func (s *GameSession) SetReady(userID uuid.UUID) error {
	switch userID {
	case s.Player1.ID:
		s.Player1.IsReady = true
	case s.Player2.ID:
		s.Player2.IsReady = true
	default:
		return fmt.Errorf("user '%s' is not a participant in session '%s'", userID, s.ID)
	}

	return nil
}

func (s *GameSession) BothReady() bool {
	return s.Player1.IsReady && s.Player2.IsReady
}

// Start records the countdown anchor and moves the session to in_progress.
func (s *GameSession) Start(now time.Time) {
	s.Status = StatusInProgress
	s.StartTime = &now
	s.TimeRemaining = s.Duration
}

// RemainingAt computes the countdown value at the given instant. Never
// negative.
func (s *GameSession) RemainingAt(now time.Time) int64 {
	if s.StartTime == nil {
		return s.Duration
	}

	elapsed := now.Sub(*s.StartTime).Milliseconds()
	if elapsed >= s.Duration {
		return 0
	}

	return s.Duration - elapsed
}

// ElapsedAt is the wall-clock duration the duel actually ran for.
func (s *GameSession) ElapsedAt(now time.Time) int64 {
	if s.StartTime == nil {
		return 0
	}

	elapsed := now.Sub(*s.StartTime).Milliseconds()
	if elapsed < 0 {
		return 0
	}

	return elapsed
}

// MarkFinalized applies the terminal transition in memory. Callers hold the
// session lock and have already checked Terminal.
func (s *GameSession) MarkFinalized(result GameResult, winnerID *uuid.UUID) {
	if result == ResultPlayerLeft {
		s.Status = StatusAbandoned
	} else {
		s.Status = StatusFinished
	}

	s.GameResult = result
	s.TimeRemaining = 0

	if winnerID == nil {
		return
	}

	switch *winnerID {
	case s.Player1.ID:
		s.Winner = &Winner{ID: s.Player1.ID, DisplayName: s.Player1.DisplayName}
	case s.Player2.ID:
		s.Winner = &Winner{ID: s.Player2.ID, DisplayName: s.Player2.DisplayName}
	}
}

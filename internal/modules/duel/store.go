package duel

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
)

// ErrPairActive means one of the two players is already in a non-terminal
// game. Backed by the partial unique index on the unordered player pair.
var ErrPairActive = errors.New("a participant is already in an active game")

// GameStore is the durable mirror of the session registry.
type GameStore struct {
	db *sql.DB
}

func NewGameStore(db *sql.DB) *GameStore {
	return &GameStore{db}
}

type gameRow struct {
	ID            uuid.UUID     `db:"id"`
	Player1ID     uuid.UUID     `db:"player1_id"`
	Player1Name   string        `db:"player1_name"`
	Player1Avatar *string       `db:"player1_avatar"`
	Player1Ready  bool          `db:"player1_ready"`
	Player2ID     uuid.UUID     `db:"player2_id"`
	Player2Name   string        `db:"player2_name"`
	Player2Avatar *string       `db:"player2_avatar"`
	Player2Ready  bool          `db:"player2_ready"`
	Status        string        `db:"status"`
	DurationMs    int64         `db:"duration_ms"`
	StartTime     *time.Time    `db:"start_time"`
	EndTime       *time.Time    `db:"end_time"`
	WinnerID      uuid.NullUUID `db:"winner_id"`
	WinnerName    *string       `db:"winner_name"`
	GameResult    *string       `db:"game_result"`
}

const gameSelect = `
	SELECT
		g.id,
		g.player1_id, u1.login AS player1_name, u1.avatar AS player1_avatar, g.player1_ready,
		g.player2_id, u2.login AS player2_name, u2.avatar AS player2_avatar, g.player2_ready,
		g.status, g.duration_ms, g.start_time, g.end_time, g.winner_id,
		w.login AS winner_name, g.game_result
	FROM
		games g
		JOIN users u1 ON u1.id = g.player1_id
		JOIN users u2 ON u2.id = g.player2_id
		LEFT JOIN users w ON w.id = g.winner_id`

func (r gameRow) toSession() *domain.GameSession {
	session := &domain.GameSession{
		ID: r.ID,
		Player1: domain.Player{
			ID:          r.Player1ID,
			DisplayName: r.Player1Name,
			Avatar:      r.Player1Avatar,
			IsReady:     r.Player1Ready,
		},
		Player2: domain.Player{
			ID:          r.Player2ID,
			DisplayName: r.Player2Name,
			Avatar:      r.Player2Avatar,
			IsReady:     r.Player2Ready,
		},
		Status:        domain.Status(r.Status),
		Duration:      r.DurationMs,
		TimeRemaining: r.DurationMs,
		StartTime:     r.StartTime,
	}

	if r.GameResult != nil {
		session.GameResult = domain.GameResult(*r.GameResult)
	}

	if r.WinnerID.Valid {
		winner := &domain.Winner{ID: r.WinnerID.UUID}
		if r.WinnerName != nil {
			winner.DisplayName = *r.WinnerName
		}
		session.Winner = winner
	}

	if session.Status.Terminal() {
		session.TimeRemaining = 0
		if r.StartTime != nil && r.EndTime != nil {
			session.Duration = r.EndTime.Sub(*r.StartTime).Milliseconds()
		}
	}

	return session
}

func (s *GameStore) Insert(ctx context.Context, session *domain.GameSession) error {
	const stmt = `
		INSERT INTO
			games (id, player1_id, player2_id, player1_ready, player2_ready, status, duration_ms, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := tql.Exec(
		ctx,
		s.db,
		stmt,
		session.ID,
		session.Player1.ID,
		session.Player2.ID,
		session.Player1.IsReady,
		session.Player2.IsReady,
		string(session.Status),
		session.Duration,
		time.Now().UTC(),
	)
	if err != nil && core.IsUniqueViolation(err) {
		return ErrPairActive
	}

	return err
}

func (s *GameStore) UpdateReadyFlags(ctx context.Context, id uuid.UUID, player1Ready, player2Ready bool) error {
	const stmt = `
		UPDATE
			games
		SET
			player1_ready = $1, player2_ready = $2
		WHERE
			id = $3;`
	_, err := tql.Exec(ctx, s.db, stmt, player1Ready, player2Ready, id)
	return err
}

func (s *GameStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	const stmt = `
		UPDATE
			games
		SET
			status = $1
		WHERE
			id = $2;`
	_, err := tql.Exec(ctx, s.db, stmt, string(status), id)
	return err
}

func (s *GameStore) MarkStarted(ctx context.Context, id uuid.UUID, startTime time.Time) error {
	const stmt = `
		UPDATE
			games
		SET
			status = $1, start_time = $2
		WHERE
			id = $3;`
	_, err := tql.Exec(ctx, s.db, stmt, string(domain.StatusInProgress), startTime, id)
	return err
}

// FinalizeGame applies the terminal transition durably. The status guard in
// the WHERE clause makes it first-writer-wins - a second finalize attempt
// reports applied == false and performs no side effects.
func (s *GameStore) FinalizeGame(
	ctx context.Context,
	id uuid.UUID,
	status domain.Status,
	result domain.GameResult,
	winnerID *uuid.UUID,
) (applied bool, err error) {
	const stmt = `
		UPDATE
			games
		SET
			status = $1, game_result = $2, winner_id = $3, end_time = NOW()
		WHERE
			id = $4 AND status IN ('waiting', 'ready', 'in_progress');`

	var winner uuid.NullUUID
	if winnerID != nil {
		winner = uuid.NullUUID{UUID: *winnerID, Valid: true}
	}

	res, err := tql.Exec(ctx, s.db, stmt, string(status), string(result), winner, id)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// HasActiveForPlayers checks durable state for any non-terminal game
// involving either player. Memory may be stale across restarts, so invite
// acceptance cross-checks here.
func (s *GameStore) HasActiveForPlayers(ctx context.Context, a, b uuid.UUID) (bool, error) {
	const query = `
		SELECT
			COUNT(*)
		FROM
			games
		WHERE
			(player1_id IN ($1, $2) OR player2_id IN ($1, $2))
			AND status IN ('waiting', 'ready', 'in_progress');`

	count, err := tql.QuerySingle[int](ctx, s.db, query, a, b)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (s *GameStore) Load(ctx context.Context, id uuid.UUID) (*domain.GameSession, error) {
	query := gameSelect + `
	WHERE
		g.id = $1;`

	row, err := tql.QuerySingle[gameRow](ctx, s.db, query, id)
	if err != nil {
		return nil, err
	}

	return row.toSession(), nil
}

// LoadActive returns every non-terminal game, display metadata included.
// The recovery loader rebuilds the in-memory registry from this.
func (s *GameStore) LoadActive(ctx context.Context) ([]*domain.GameSession, error) {
	query := gameSelect + `
	WHERE
		g.status IN ('waiting', 'ready', 'in_progress');`

	rows, err := tql.Query[gameRow](ctx, s.db, query)
	if err != nil {
		return nil, err
	}

	return core.Map(rows, func(r gameRow) *domain.GameSession { return r.toSession() }), nil
}

package stats

import (
	"context"
	"database/sql"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
)

// Recorder is the user-stats collaborator. A finished duel counts a game
// for both duelists and a win for the winner; abandoned sessions touch
// neither counter.
type Recorder interface {
	RecordDuelOutcome(ctx context.Context, player1ID, player2ID uuid.UUID, winnerID *uuid.UUID) error
}

type SQLRecorder struct {
	db *sql.DB
}

var _ Recorder = (*SQLRecorder)(nil)

func NewSQLRecorder(db *sql.DB) *SQLRecorder {
	return &SQLRecorder{db}
}

// RecordDuelOutcome applies all counter updates in one transaction, so a
// crash mid-way never records a win without the matching games-played.
func (r *SQLRecorder) RecordDuelOutcome(
	ctx context.Context,
	player1ID, player2ID uuid.UUID,
	winnerID *uuid.UUID,
) error {
	return core.Tx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		const gamesStmt = `
			UPDATE
				users
			SET
				games_count = COALESCE(games_count, 0) + 1
			WHERE
				id IN ($1, $2);`
		if _, err := tql.Exec(ctx, tx, gamesStmt, player1ID, player2ID); err != nil {
			return err
		}

		if winnerID == nil {
			return nil
		}

		const winsStmt = `
			UPDATE
				users
			SET
				wins_count = COALESCE(wins_count, 0) + 1
			WHERE
				id = $1;`
		_, err := tql.Exec(ctx, tx, winsStmt, *winnerID)
		return err
	})
}

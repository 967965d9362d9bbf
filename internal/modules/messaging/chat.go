package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ChatAnnotator mirrors the invite lifecycle into the chat transcript. The
// invite registry stays authoritative - these annotations exist for audit
// and for clients rendering invite cards in chat history.
type ChatAnnotator struct {
	db *sql.DB
}

func NewChatAnnotator(db *sql.DB) *ChatAnnotator {
	return &ChatAnnotator{db}
}

type inviteArtifact struct {
	InviteID     uuid.UUID `json:"invite_id"`
	FromUserID   uuid.UUID `json:"from_user_id"`
	FromUsername string    `json:"from_username"`
	FromAvatar   *string   `json:"from_avatar"`
	ToUserID     uuid.UUID `json:"to_user_id"`
	ToUsername   string    `json:"to_username"`
	ToAvatar     *string   `json:"to_avatar"`
	Status       string    `json:"status"`
}

// RecordInviteMessage posts the invite artifact as a chat message.
func (a *ChatAnnotator) RecordInviteMessage(ctx context.Context, invite domain.GameInvite) error {
	artifact := inviteArtifact{
		InviteID:     invite.ID,
		FromUserID:   invite.FromUserID,
		FromUsername: invite.FromDisplayName,
		FromAvatar:   invite.FromAvatar,
		ToUserID:     invite.ToUserID,
		ToUsername:   invite.ToDisplayName,
		ToAvatar:     invite.ToAvatar,
		Status:       string(invite.Status),
	}

	payload, err := json.Marshal(artifact)
	if err != nil {
		return err
	}

	const stmt = `
		INSERT INTO
			messages (id, chat_id, user_id, text, message_type, game_invite_data, created_at)
		VALUES
			($1, $2, $3, $4, 'game_invite', $5, $6);`
	_, err = tql.Exec(
		ctx,
		a.db,
		stmt,
		uuid.New(),
		invite.ChatID,
		invite.FromUserID,
		fmt.Sprintf("Game invite from %s", invite.FromDisplayName),
		payload,
		time.Now().UTC(),
	)
	return err
}

// SetInviteStatus rewrites the status annotation on the invite's chat
// message.
func (a *ChatAnnotator) SetInviteStatus(ctx context.Context, inviteID uuid.UUID, status domain.InviteStatus) error {
	const stmt = `
		UPDATE
			messages
		SET
			game_invite_data = jsonb_set(game_invite_data, '{status}', to_jsonb($1::text))
		WHERE
			game_invite_data->>'invite_id' = $2;`
	_, err := tql.Exec(ctx, a.db, stmt, string(status), inviteID.String())
	return err
}

// AbandonAcceptedInvites flips every accepted invite artifact between the
// two players to abandoned and returns the affected invite ids so callers
// can notify the rooms showing them.
func (a *ChatAnnotator) AbandonAcceptedInvites(ctx context.Context, player1ID, player2ID uuid.UUID) ([]uuid.UUID, error) {
	const stmt = `
		UPDATE
			messages
		SET
			game_invite_data = jsonb_set(game_invite_data, '{status}', '"abandoned"')
		WHERE
			game_invite_data->>'from_user_id' = ANY($1)
			AND game_invite_data->>'status' = 'accepted'
		RETURNING
			(game_invite_data->>'invite_id')::uuid;`

	ids := []string{player1ID.String(), player2ID.String()}
	return tql.Query[uuid.UUID](ctx, a.db, stmt, pq.Array(ids))
}

// SharedRooms lists the chat rooms both players participate in.
func (a *ChatAnnotator) SharedRooms(ctx context.Context, player1ID, player2ID uuid.UUID) ([]string, error) {
	const query = `
		SELECT
			chat_id
		FROM
			chat_participants
		WHERE
			user_id::text = ANY($1)
		GROUP BY
			chat_id
		HAVING
			COUNT(DISTINCT user_id) = 2;`

	ids := []string{player1ID.String(), player2ID.String()}
	return tql.Query[string](ctx, a.db, query, pq.Array(ids))
}

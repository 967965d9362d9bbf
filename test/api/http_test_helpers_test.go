package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	ID        uuid.UUID
	Login     string
	SessionID uuid.UUID
}

// seedUser inserts a user with a valid connection session and returns both
// ids. Requests authenticate with the session cookie.
func seedUser(t *testing.T) testUser {
	t.Helper()

	user := testUser{
		ID:        uuid.New(),
		Login:     uuid.New().String(),
		SessionID: uuid.New(),
	}

	_, err := fixture.db.Exec(
		`INSERT INTO users (id, login) VALUES ($1, $2);`,
		user.ID,
		user.Login,
	)
	require.NoError(t, err)

	_, err = fixture.db.Exec(
		`INSERT INTO user_sessions (id, user_id, expires_at) VALUES ($1, $2, $3);`,
		user.SessionID,
		user.ID,
		time.Now().Add(time.Hour),
	)
	require.NoError(t, err)

	return user
}

func seedChat(t *testing.T, participants ...testUser) uuid.UUID {
	t.Helper()

	chatID := uuid.New()

	_, err := fixture.db.Exec(`INSERT INTO chats (id) VALUES ($1);`, chatID)
	require.NoError(t, err)

	for _, participant := range participants {
		_, err = fixture.db.Exec(
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2);`,
			chatID,
			participant.ID,
		)
		require.NoError(t, err)
	}

	return chatID
}

func seedTask(t *testing.T, difficulty string, level int) int64 {
	t.Helper()

	var taskID int64
	err := fixture.db.QueryRow(
		`INSERT INTO
			game_tasks (title, description, input_example, output_example, difficulty, level, code_templates, function_signature, test_cases)
		VALUES
			($1, $2, '1', '42', $3, $4, $5, 'solve(a)', $6)
		RETURNING id;`,
		uuid.New().String(),
		"return the answer",
		difficulty,
		level,
		`{"102": "function solve(a) {\n}"}`,
		`[{"input": "1", "expected": "42"}]`,
	).Scan(&taskID)
	require.NoError(t, err)

	return taskID
}

// sendAs issues an authenticated request as the given user and decodes the
// JSON response.
func sendAs[TReq any, TResp any](
	t *testing.T,
	user testUser,
	method string,
	path string,
	request TReq,
) (TResp, *http.Response) {
	t.Helper()

	var response TResp

	payload, err := json.Marshal(request)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(method, fmt.Sprintf("%s%s", fixture.baseURL, path), bytes.NewReader(payload))
	require.NoError(t, err)

	httpReq.AddCookie(&http.Cookie{Name: "duel-session", Value: user.SessionID.String()})

	httpResp, err := fixture.client.Do(httpReq)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, httpResp.Body.Close())
	}()

	_ = json.NewDecoder(httpResp.Body).Decode(&response)

	return response, httpResp
}

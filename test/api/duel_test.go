package main

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	duelcommands "github.com/eskrenkovic/code-duel-go/internal/modules/duel/commands"
	dueldomain "github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	duelqueries "github.com/eskrenkovic/code-duel-go/internal/modules/duel/queries"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// startGracePeriod comfortably covers the 100ms test ready grace.
const startGracePeriod = 500 * time.Millisecond

func seedTaskPool(t *testing.T) {
	t.Helper()

	seedTask(t, "easy", 1)
	seedTask(t, "medium", 1)
	seedTask(t, "hard", 2)
}

func sendInvite(t *testing.T, from, to testUser, chatID uuid.UUID) dueldomain.GameInvite {
	t.Helper()

	command := duelcommands.SendInviteCommand{ToUserID: to.ID, ChatID: chatID.String()}
	response, resp := sendAs[duelcommands.SendInviteCommand, duelcommands.SendInviteResponse](
		t, from, http.MethodPost, "/duels/invites", command,
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return response.Invite
}

func acceptInvite(t *testing.T, user testUser, inviteID uuid.UUID) dueldomain.GameSession {
	t.Helper()

	response, resp := sendAs[struct{}, duelcommands.AcceptInviteResponse](
		t, user, http.MethodPost, fmt.Sprintf("/duels/invites/%s/actions/accept", inviteID), struct{}{},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return response.Session
}

func setReady(t *testing.T, user testUser, sessionID uuid.UUID) dueldomain.GameSession {
	t.Helper()

	response, resp := sendAs[struct{}, duelcommands.SetReadyResponse](
		t, user, http.MethodPut, fmt.Sprintf("/duels/%s/actions/ready", sessionID), struct{}{},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return response.Session
}

func joinSession(t *testing.T, user testUser, sessionID uuid.UUID) (dueldomain.GameSession, *http.Response) {
	t.Helper()

	return sendAs[struct{}, dueldomain.GameSession](
		t, user, http.MethodGet, fmt.Sprintf("/duels/%s", sessionID), struct{}{},
	)
}

func getProgress(t *testing.T, user testUser, sessionID uuid.UUID) duelqueries.GetProgressResponse {
	t.Helper()

	response, resp := sendAs[struct{}, duelqueries.GetProgressResponse](
		t, user, http.MethodGet, fmt.Sprintf("/duels/%s/progress", sessionID), struct{}{},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return response
}

func submit(t *testing.T, user testUser, sessionID uuid.UUID, taskID int64, code string, isTest bool) duelcommands.SubmitSolutionResponse {
	t.Helper()

	command := duelcommands.SubmitSolutionCommand{
		TaskID:   taskID,
		Language: "javascript",
		Code:     code,
		IsTest:   isTest,
	}
	response, resp := sendAs[duelcommands.SubmitSolutionCommand, duelcommands.SubmitSolutionResponse](
		t, user, http.MethodPost, fmt.Sprintf("/duels/%s/submissions", sessionID), command,
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return response
}

// startDuel runs the whole pre-game flow and returns an in_progress session.
func startDuel(t *testing.T) (testUser, testUser, uuid.UUID) {
	t.Helper()

	seedTaskPool(t)

	player1 := seedUser(t)
	player2 := seedUser(t)
	chatID := seedChat(t, player1, player2)

	invite := sendInvite(t, player1, player2, chatID)
	session := acceptInvite(t, player2, invite.ID)

	setReady(t, player1, session.ID)
	setReady(t, player2, session.ID)

	time.Sleep(startGracePeriod)

	started, resp := joinSession(t, player1, session.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, dueldomain.StatusInProgress, started.Status)

	return player1, player2, session.ID
}

func Test_SendInvite_Returns_Invite_And_Records_Chat_Artifact(t *testing.T) {
	// Arrange
	from := seedUser(t)
	to := seedUser(t)
	chatID := seedChat(t, from, to)

	// Act
	invite := sendInvite(t, from, to, chatID)

	// Assert
	require.NotEqual(t, uuid.Nil, invite.ID)
	require.Equal(t, from.ID, invite.FromUserID)
	require.Equal(t, to.ID, invite.ToUserID)
	require.Equal(t, dueldomain.InviteStatusPending, invite.Status)

	var messageCount int
	err := fixture.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE game_invite_data ->> 'invite_id' = $1;`,
		invite.ID.String(),
	).Scan(&messageCount)
	require.NoError(t, err)
	require.Equal(t, 1, messageCount)
}

func Test_SendInvite_Rejects_Self_Invite(t *testing.T) {
	// Arrange
	user := seedUser(t)
	chatID := seedChat(t, user)

	command := duelcommands.SendInviteCommand{ToUserID: user.ID, ChatID: chatID.String()}

	// Act
	_, resp := sendAs[duelcommands.SendInviteCommand, duelcommands.SendInviteResponse](
		t, user, http.MethodPost, "/duels/invites", command,
	)

	// Assert
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_SendInvite_Supersedes_Previous_Pending_Invite(t *testing.T) {
	// Arrange
	from := seedUser(t)
	to := seedUser(t)
	chatID := seedChat(t, from, to)

	first := sendInvite(t, from, to, chatID)

	// Act
	second := sendInvite(t, from, to, chatID)

	// Assert - the superseded invite is gone, the new one is acceptable.
	_, resp := sendAs[struct{}, duelcommands.AcceptInviteResponse](
		t, to, http.MethodPost, fmt.Sprintf("/duels/invites/%s/actions/accept", first.ID), struct{}{},
	)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	session := acceptInvite(t, to, second.ID)
	require.Equal(t, dueldomain.StatusWaiting, session.Status)
}

func Test_AcceptInvite_Creates_Waiting_Session_For_Both_Players(t *testing.T) {
	// Arrange
	from := seedUser(t)
	to := seedUser(t)
	chatID := seedChat(t, from, to)

	invite := sendInvite(t, from, to, chatID)

	// Act
	session := acceptInvite(t, to, invite.ID)

	// Assert
	require.Equal(t, dueldomain.StatusWaiting, session.Status)
	require.Equal(t, from.ID, session.Player1.ID)
	require.Equal(t, to.ID, session.Player2.ID)
	require.False(t, session.Player1.IsReady)
	require.False(t, session.Player2.IsReady)

	for _, player := range []testUser{from, to} {
		joined, resp := joinSession(t, player, session.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, session.ID, joined.ID)
	}
}

func Test_AcceptInvite_Returns_403_For_Non_Recipient(t *testing.T) {
	// Arrange
	from := seedUser(t)
	to := seedUser(t)
	chatID := seedChat(t, from, to)

	invite := sendInvite(t, from, to, chatID)

	// Act - the sender tries to accept their own invite.
	_, resp := sendAs[struct{}, duelcommands.AcceptInviteResponse](
		t, from, http.MethodPost, fmt.Sprintf("/duels/invites/%s/actions/accept", invite.ID), struct{}{},
	)

	// Assert
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func Test_DeclineInvite_Prevents_A_Later_Accept(t *testing.T) {
	// Arrange
	from := seedUser(t)
	to := seedUser(t)
	chatID := seedChat(t, from, to)

	invite := sendInvite(t, from, to, chatID)

	// Act
	_, resp := sendAs[struct{}, struct{}](
		t, to, http.MethodPost, fmt.Sprintf("/duels/invites/%s/actions/decline", invite.ID), struct{}{},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Assert
	_, resp = sendAs[struct{}, duelcommands.AcceptInviteResponse](
		t, to, http.MethodPost, fmt.Sprintf("/duels/invites/%s/actions/accept", invite.ID), struct{}{},
	)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_SendInvite_Returns_409_When_Sender_Already_In_A_Game(t *testing.T) {
	// Arrange
	player1, _, _ := startDuel(t)
	bystander := seedUser(t)
	chatID := seedChat(t, player1, bystander)

	command := duelcommands.SendInviteCommand{ToUserID: bystander.ID, ChatID: chatID.String()}

	// Act
	_, resp := sendAs[duelcommands.SendInviteCommand, duelcommands.SendInviteResponse](
		t, player1, http.MethodPost, "/duels/invites", command,
	)

	// Assert
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func Test_SetReady_By_Both_Players_Starts_The_Countdown(t *testing.T) {
	// Arrange
	from := seedUser(t)
	to := seedUser(t)
	chatID := seedChat(t, from, to)
	seedTaskPool(t)

	invite := sendInvite(t, from, to, chatID)
	session := acceptInvite(t, to, invite.ID)

	// Act
	afterFirst := setReady(t, from, session.ID)
	afterSecond := setReady(t, to, session.ID)

	// Assert
	require.Equal(t, dueldomain.StatusWaiting, afterFirst.Status)
	require.Equal(t, dueldomain.StatusReady, afterSecond.Status)

	time.Sleep(startGracePeriod)

	started, resp := joinSession(t, from, session.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, dueldomain.StatusInProgress, started.Status)
	require.NotNil(t, started.StartTime)
	require.Greater(t, started.TimeRemaining, int64(0))
	require.LessOrEqual(t, started.TimeRemaining, started.Duration)
}

func Test_JoinSession_Returns_403_For_Stranger(t *testing.T) {
	// Arrange
	_, _, sessionID := startDuel(t)
	stranger := seedUser(t)

	// Act
	_, resp := joinSession(t, stranger, sessionID)

	// Assert
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func Test_JoinSession_Returns_404_For_Unknown_Session(t *testing.T) {
	// Arrange
	user := seedUser(t)

	// Act
	_, resp := joinSession(t, user, uuid.New())

	// Assert
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_GetProgress_Assigns_A_Task_Both_Players_See(t *testing.T) {
	// Arrange
	player1, player2, sessionID := startDuel(t)

	// Act
	progress1 := getProgress(t, player1, sessionID)
	progress2 := getProgress(t, player2, sessionID)

	// Assert
	require.Equal(t, 1, progress1.PlayerLevel)
	require.Equal(t, 1, progress1.OpponentLevel)
	require.Equal(t, 1, progress1.CurrentLevel)
	require.NotZero(t, progress1.CurrentTask.ID)
	require.Equal(t, progress1.CurrentTask.ID, progress2.CurrentTask.ID)
}

func Test_SubmitSolution_Failing_Code_Does_Not_Level_Up(t *testing.T) {
	// Arrange
	player1, _, sessionID := startDuel(t)
	progress := getProgress(t, player1, sessionID)

	// Act
	result := submit(t, player1, sessionID, progress.CurrentTask.ID, "function solve(a) { return 0; }", false)

	// Assert
	require.False(t, result.Passed)
	require.False(t, result.LevelUp)
	require.False(t, result.GameFinished)

	after := getProgress(t, player1, sessionID)
	require.Equal(t, 1, after.PlayerLevel)
}

func Test_SubmitSolution_In_Test_Mode_Does_Not_Score(t *testing.T) {
	// Arrange
	player1, _, sessionID := startDuel(t)
	progress := getProgress(t, player1, sessionID)

	// Act
	result := submit(t, player1, sessionID, progress.CurrentTask.ID, "function solve(a) { return correct; }", true)

	// Assert
	require.True(t, result.Passed)
	require.False(t, result.LevelUp)
	require.False(t, result.GameFinished)

	after := getProgress(t, player1, sessionID)
	require.Equal(t, 1, after.PlayerLevel)
}

func Test_SubmitSolution_Wins_The_Duel_After_Required_Levels(t *testing.T) {
	// Arrange
	player1, player2, sessionID := startDuel(t)

	// Act - solve the level 1 task.
	progress := getProgress(t, player1, sessionID)
	first := submit(t, player1, sessionID, progress.CurrentTask.ID, "function solve(a) { return correct; }", false)

	require.True(t, first.Passed)
	require.True(t, first.LevelUp)
	require.False(t, first.GameFinished)

	// Solve the level 2 task.
	progress = getProgress(t, player1, sessionID)
	require.Equal(t, 2, progress.PlayerLevel)
	require.Len(t, progress.SolvedTaskIDs, 1)

	second := submit(t, player1, sessionID, progress.CurrentTask.ID, "function solve(a) { return correct; }", false)

	// Assert
	require.True(t, second.Passed)
	require.True(t, second.GameFinished)

	final, resp := joinSession(t, player2, sessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, dueldomain.StatusFinished, final.Status)
	require.Equal(t, dueldomain.ResultCompleted, final.GameResult)
	require.NotNil(t, final.Winner)
	require.Equal(t, player1.ID, final.Winner.ID)
}

func Test_Resubmitting_The_Same_Task_Does_Not_Level_Up_Twice(t *testing.T) {
	// Arrange
	player1, _, sessionID := startDuel(t)
	progress := getProgress(t, player1, sessionID)

	first := submit(t, player1, sessionID, progress.CurrentTask.ID, "function solve(a) { return correct; }", false)
	require.True(t, first.LevelUp)

	// Act
	second := submit(t, player1, sessionID, progress.CurrentTask.ID, "function solve(a) { return correct; }", false)

	// Assert
	require.True(t, second.Passed)
	require.False(t, second.LevelUp)
	require.False(t, second.GameFinished)
}

func Test_LeaveGame_Abandons_The_Session_With_Opponent_As_Winner(t *testing.T) {
	// Arrange
	player1, player2, sessionID := startDuel(t)

	// Act
	_, resp := sendAs[struct{}, struct{}](
		t, player1, http.MethodPut, fmt.Sprintf("/duels/%s/actions/leave", sessionID), struct{}{},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Assert
	final, resp := joinSession(t, player2, sessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, dueldomain.StatusAbandoned, final.Status)
	require.Equal(t, dueldomain.ResultPlayerLeft, final.GameResult)
	require.NotNil(t, final.Winner)
	require.Equal(t, player2.ID, final.Winner.ID)
}

func Test_GetTaskTemplate_Returns_The_Language_Template(t *testing.T) {
	// Arrange
	user := seedUser(t)
	taskID := seedTask(t, "easy", 1)

	// Act
	response, resp := sendAs[struct{}, duelqueries.GetTaskTemplateResponse](
		t, user, http.MethodGet, fmt.Sprintf("/tasks/%d/template?language=javascript", taskID), struct{}{},
	)

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "function solve(a) {\n}", response.Template)
	require.Equal(t, "solve(a)", response.FunctionSignature)
}

func Test_Unauthenticated_Request_Returns_401(t *testing.T) {
	// Act
	resp, err := fixture.client.Get(fmt.Sprintf("%s/duels/%s", fixture.baseURL, uuid.New()))

	// Assert
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

package duel

import (
	"context"

	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	"github.com/eskrenkovic/code-duel-go/internal/modules/messaging"
	"github.com/eskrenkovic/code-duel-go/internal/modules/tasks"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// progressSource resolves a player's standing within one duel.
type progressSource interface {
	Progress(ctx context.Context, gameID, playerID uuid.UUID) (tasks.Progress, error)
}

// Notifier pushes session and progress snapshots to the player rooms.
type Notifier struct {
	sessions  *domain.SessionRegistry
	store     *GameStore
	tasks     progressSource
	publisher messaging.Publisher
	logger    *zap.Logger
}

func NewNotifier(
	sessions *domain.SessionRegistry,
	store *GameStore,
	tasks progressSource,
	publisher messaging.Publisher,
	logger *zap.Logger,
) *Notifier {
	return &Notifier{
		sessions:  sessions,
		store:     store,
		tasks:     tasks,
		publisher: publisher,
		logger:    logger,
	}
}

// PublishSession broadcasts the session snapshot to both player rooms.
func (n *Notifier) PublishSession(event string, session domain.GameSession) {
	n.publisher.Publish(messaging.UserRoom(session.Player1.ID), event, session)
	n.publisher.Publish(messaging.UserRoom(session.Player2.ID), event, session)
}

type progressPayload struct {
	GameID        uuid.UUID `json:"gameId"`
	PlayerLevel   int       `json:"playerLevel"`
	OpponentLevel int       `json:"opponentLevel"`
}

// PublishProgress emits each player a view of the level race from their own
// perspective.
func (n *Notifier) PublishProgress(ctx context.Context, sessionID uuid.UUID) error {
	session, ok := n.sessions.Snapshot(sessionID)
	if !ok {
		loaded, err := n.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		session = *loaded
	}

	player1Progress, err := n.tasks.Progress(ctx, sessionID, session.Player1.ID)
	if err != nil {
		return err
	}

	player2Progress, err := n.tasks.Progress(ctx, sessionID, session.Player2.ID)
	if err != nil {
		return err
	}

	n.publisher.Publish(
		messaging.UserRoom(session.Player1.ID),
		messaging.EventGameProgressUpdate,
		progressPayload{GameID: sessionID, PlayerLevel: player1Progress.Level, OpponentLevel: player2Progress.Level},
	)
	n.publisher.Publish(
		messaging.UserRoom(session.Player2.ID),
		messaging.EventGameProgressUpdate,
		progressPayload{GameID: sessionID, PlayerLevel: player2Progress.Level, OpponentLevel: player1Progress.Level},
	)

	return nil
}

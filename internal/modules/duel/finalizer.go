package duel

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	"github.com/eskrenkovic/code-duel-go/internal/modules/messaging"
	"github.com/eskrenkovic/code-duel-go/internal/modules/stats"
	"github.com/eskrenkovic/code-duel-go/internal/modules/tasks"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errAlreadyFinalized = errors.New("session already finalized")

// purgeGrace keeps a finalized session resident long enough for late
// join-session reads to see the final snapshot from memory.
const purgeGrace = 500 * time.Millisecond

// Finalizer owns the terminal transition. Every path out of a live session -
// leave, timeout, win - funnels through Finalize, which applies the
// transition exactly once and runs the side-effect pipeline.
type Finalizer struct {
	sessions  *domain.SessionRegistry
	timers    *domain.CountdownSet
	store     *GameStore
	tasks     *tasks.Store
	stats     stats.Recorder
	chat      *messaging.ChatAnnotator
	publisher messaging.Publisher
	notifier  *Notifier

	// settle delays the final broadcast so in-flight progress updates land
	// on clients before the end-of-game payload.
	settle time.Duration

	logger *zap.Logger
}

func NewFinalizer(
	sessions *domain.SessionRegistry,
	timers *domain.CountdownSet,
	store *GameStore,
	tasks *tasks.Store,
	stats stats.Recorder,
	chat *messaging.ChatAnnotator,
	publisher messaging.Publisher,
	notifier *Notifier,
	settle time.Duration,
	logger *zap.Logger,
) *Finalizer {
	return &Finalizer{
		sessions:  sessions,
		timers:    timers,
		store:     store,
		tasks:     tasks,
		stats:     stats,
		chat:      chat,
		publisher: publisher,
		notifier:  notifier,
		settle:    settle,
		logger:    logger,
	}
}

// Finalize moves the session to its terminal status and runs the finish
// pipeline. Safe to call from competing paths - the in-memory terminal guard
// and the durable status guard together make the transition first-writer-wins.
func (f *Finalizer) Finalize(
	ctx context.Context,
	sessionID uuid.UUID,
	result domain.GameResult,
	winnerID *uuid.UUID,
) error {
	f.timers.Cancel(sessionID)

	now := time.Now()

	var snapshot domain.GameSession
	err := f.sessions.With(sessionID, func(s *domain.GameSession) error {
		if s.Status.Terminal() {
			return errAlreadyFinalized
		}

		s.MarkFinalized(result, winnerID)
		if s.StartTime != nil {
			s.Duration = s.ElapsedAt(now)
		}

		snapshot = *s
		return nil
	})

	switch {
	case errors.Is(err, errAlreadyFinalized):
		return nil
	case errors.Is(err, domain.ErrSessionNotFound):
		// Not resident - a restart may have dropped it. Durable state decides.
		loaded, loadErr := f.store.Load(ctx, sessionID)
		if loadErr != nil {
			if errors.Is(loadErr, sql.ErrNoRows) {
				return nil
			}
			return loadErr
		}
		if loaded.Status.Terminal() {
			return nil
		}

		loaded.MarkFinalized(result, winnerID)
		if loaded.StartTime != nil {
			loaded.Duration = loaded.ElapsedAt(now)
		}
		snapshot = *loaded
	case err != nil:
		return err
	}

	applied, err := f.store.FinalizeGame(ctx, sessionID, snapshot.Status, result, winnerID)
	if err != nil {
		// Memory already holds the terminal state, so live clients stay
		// consistent; the durable divergence is surfaced in the log.
		f.logger.Error(
			"failed to persist session finalize",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	} else if !applied {
		return nil
	}

	if snapshot.Status == domain.StatusFinished {
		f.recordStats(ctx, snapshot)
	}

	if err := f.notifier.PublishProgress(ctx, sessionID); err != nil {
		f.logger.Warn(
			"failed to publish final progress",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}

	time.Sleep(f.settle)

	f.notifier.PublishSession(messaging.EventGameSessionEnd, snapshot)
	f.notifyChatRooms(ctx, snapshot)
	f.abandonInviteArtifacts(ctx, snapshot)

	time.AfterFunc(purgeGrace, func() {
		f.sessions.Remove(sessionID)
	})

	return nil
}

// FinalizeTimeout resolves the timeout winner by solved-task count and
// finalizes. Used by the countdown expiry and by recovery of overdue
// sessions.
func (f *Finalizer) FinalizeTimeout(ctx context.Context, sessionID uuid.UUID) error {
	winnerID, err := f.timeoutWinner(ctx, sessionID)
	if err != nil {
		f.logger.Warn(
			"failed to resolve timeout winner, finalizing as draw",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}

	return f.Finalize(ctx, sessionID, domain.ResultTimeout, winnerID)
}

// ArmCountdown starts the session's countdown. Ticks broadcast the refreshed
// remaining time; expiry finalizes as a timeout.
func (f *Finalizer) ArmCountdown(session domain.GameSession) {
	if session.StartTime == nil {
		return
	}

	f.timers.Start(
		session.ID,
		*session.StartTime,
		time.Duration(session.Duration)*time.Millisecond,
		func(sessionID uuid.UUID, remaining time.Duration) {
			var snapshot domain.GameSession
			err := f.sessions.With(sessionID, func(s *domain.GameSession) error {
				if s.Status.Terminal() {
					return errAlreadyFinalized
				}

				s.TimeRemaining = remaining.Milliseconds()
				snapshot = *s
				return nil
			})
			if err != nil || remaining == 0 {
				return
			}

			f.notifier.PublishSession(messaging.EventGameSessionUpdate, snapshot)
		},
		func(sessionID uuid.UUID) {
			if err := f.FinalizeTimeout(context.Background(), sessionID); err != nil {
				f.logger.Error(
					"failed to finalize session on timeout",
					zap.String("session_id", sessionID.String()),
					zap.Error(err),
				)
			}
		},
	)
}

func (f *Finalizer) timeoutWinner(ctx context.Context, sessionID uuid.UUID) (*uuid.UUID, error) {
	session, ok := f.sessions.Snapshot(sessionID)
	if !ok {
		loaded, err := f.store.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		session = *loaded
	}

	player1Count, err := f.tasks.CompletionCount(ctx, sessionID, session.Player1.ID)
	if err != nil {
		return nil, err
	}

	player2Count, err := f.tasks.CompletionCount(ctx, sessionID, session.Player2.ID)
	if err != nil {
		return nil, err
	}

	return DecideTimeoutWinner(session.Player1.ID, session.Player2.ID, player1Count, player2Count), nil
}

// DecideTimeoutWinner picks the player with more solved tasks, or nobody on
// a tie.
func DecideTimeoutWinner(player1ID, player2ID uuid.UUID, player1Count, player2Count int) *uuid.UUID {
	switch {
	case player1Count > player2Count:
		return &player1ID
	case player2Count > player1Count:
		return &player2ID
	default:
		return nil
	}
}

func (f *Finalizer) recordStats(ctx context.Context, session domain.GameSession) {
	var winnerID *uuid.UUID
	if session.Winner != nil {
		winnerID = &session.Winner.ID
	}

	if err := f.stats.RecordDuelOutcome(ctx, session.Player1.ID, session.Player2.ID, winnerID); err != nil {
		f.logger.Warn(
			"failed to record duel outcome stats",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
	}
}

func (f *Finalizer) notifyChatRooms(ctx context.Context, session domain.GameSession) {
	rooms, err := f.chat.SharedRooms(ctx, session.Player1.ID, session.Player2.ID)
	if err != nil {
		f.logger.Warn(
			"failed to resolve shared chat rooms",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		return
	}

	payload := struct {
		GameID   uuid.UUID         `json:"gameId"`
		Reason   domain.GameResult `json:"reason"`
		Duration int64             `json:"duration"`
		Winner   *domain.Winner    `json:"winner,omitempty"`
	}{
		GameID:   session.ID,
		Reason:   session.GameResult,
		Duration: session.Duration,
		Winner:   session.Winner,
	}

	for _, room := range rooms {
		f.publisher.Publish(room, messaging.EventGameEndNotification, payload)
	}
}

func (f *Finalizer) abandonInviteArtifacts(ctx context.Context, session domain.GameSession) {
	inviteIDs, err := f.chat.AbandonAcceptedInvites(ctx, session.Player1.ID, session.Player2.ID)
	if err != nil {
		f.logger.Warn(
			"failed to abandon accepted invite artifacts",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		return
	}

	for _, inviteID := range inviteIDs {
		payload := struct {
			InviteID uuid.UUID `json:"inviteId"`
		}{InviteID: inviteID}

		f.publisher.Publish(messaging.UserRoom(session.Player1.ID), messaging.EventGameInviteAbandoned, payload)
		f.publisher.Publish(messaging.UserRoom(session.Player2.ID), messaging.EventGameInviteAbandoned, payload)
	}
}

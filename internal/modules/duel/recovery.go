package duel

import (
	"context"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"

	"go.uber.org/zap"
)

// RecoveryLoader rebuilds the in-memory session registry from durable state
// on startup. Countdown deadlines survive restarts because they are
// recomputed from start_time, not from the moment of re-arming.
type RecoveryLoader struct {
	store     *GameStore
	sessions  *domain.SessionRegistry
	finalizer *Finalizer
	logger    *zap.Logger
}

func NewRecoveryLoader(
	store *GameStore,
	sessions *domain.SessionRegistry,
	finalizer *Finalizer,
	logger *zap.Logger,
) *RecoveryLoader {
	return &RecoveryLoader{
		store:     store,
		sessions:  sessions,
		finalizer: finalizer,
		logger:    logger,
	}
}

func (l *RecoveryLoader) Load(ctx context.Context) error {
	active, err := l.store.LoadActive(ctx)
	if err != nil {
		return err
	}

	now := time.Now()

	var overdue []*domain.GameSession
	for _, session := range active {
		if session.Status == domain.StatusInProgress {
			session.TimeRemaining = session.RemainingAt(now)
		}

		l.sessions.Put(session)

		if session.Status != domain.StatusInProgress {
			continue
		}

		if session.TimeRemaining == 0 {
			overdue = append(overdue, session)
			continue
		}

		l.finalizer.ArmCountdown(*session)
	}

	l.logger.Info("recovered active sessions", zap.Int("count", len(active)))

	// Overdue sessions expired while the process was down. Finalized after
	// registration so join-session never observes a gap.
	for _, session := range overdue {
		go func(session domain.GameSession) {
			if err := l.finalizer.FinalizeTimeout(context.Background(), session.ID); err != nil {
				l.logger.Error(
					"failed to finalize overdue session during recovery",
					zap.String("session_id", session.ID.String()),
					zap.Error(err),
				)
			}
		}(*session)
	}

	return nil
}

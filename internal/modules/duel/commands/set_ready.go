package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	"github.com/eskrenkovic/code-duel-go/internal/modules/messaging"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SetReadyCommand struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

func (c SetReadyCommand) Validate() error {
	if c.SessionID == uuid.Nil {
		return fmt.Errorf("invalid SessionID - '%s'", c.SessionID)
	}

	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	return nil
}

type SetReadyResponse struct {
	Session domain.GameSession `json:"session"`
}

func HandleSetReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	command := SetReadyCommand{
		SessionID: sessionID,
		UserID:    core.Identity(ctx).UserID,
	}

	response, err := mediator.Send[SetReadyCommand, SetReadyResponse](ctx, command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type SetReadyCommandHandler struct {
	sessions   *domain.SessionRegistry
	store      *duel.GameStore
	notifier   *duel.Notifier
	finalizer  *duel.Finalizer
	readyGrace time.Duration
	logger     *zap.Logger
}

func NewSetReadyCommandHandler(
	sessions *domain.SessionRegistry,
	store *duel.GameStore,
	notifier *duel.Notifier,
	finalizer *duel.Finalizer,
	readyGrace time.Duration,
	logger *zap.Logger,
) *SetReadyCommandHandler {
	return &SetReadyCommandHandler{
		sessions:   sessions,
		store:      store,
		notifier:   notifier,
		finalizer:  finalizer,
		readyGrace: readyGrace,
		logger:     logger,
	}
}

func (h *SetReadyCommandHandler) Handle(
	ctx context.Context,
	request SetReadyCommand,
) (SetReadyResponse, error) {
	var snapshot domain.GameSession
	var becameReady bool

	err := h.sessions.With(request.SessionID, func(s *domain.GameSession) error {
		if s.Status.Terminal() {
			return core.NewCommandError(409, fmt.Errorf("session '%s' already ended", s.ID))
		}

		if s.Status == domain.StatusInProgress {
			// Ready-up after start is a stale client. Idempotent no-op.
			snapshot = *s
			return nil
		}

		if err := s.SetReady(request.UserID); err != nil {
			return core.NewCommandError(403, err)
		}

		if s.Status == domain.StatusWaiting && s.BothReady() {
			s.Status = domain.StatusReady
			becameReady = true
		}

		snapshot = *s
		return nil
	})

	switch {
	case err == domain.ErrSessionNotFound:
		return SetReadyResponse{}, core.NewCommandError(404, err)
	case err != nil:
		return SetReadyResponse{}, err
	}

	// Durable flags trail the in-memory state. A failed write costs the
	// flags on restart, never the live session.
	if err := h.store.UpdateReadyFlags(
		ctx,
		snapshot.ID,
		snapshot.Player1.IsReady,
		snapshot.Player2.IsReady,
	); err != nil {
		h.logger.Warn(
			"failed to persist ready flags",
			zap.String("session_id", snapshot.ID.String()),
			zap.Error(err),
		)
	}

	if becameReady {
		if err := h.store.UpdateStatus(ctx, snapshot.ID, domain.StatusReady); err != nil {
			h.logger.Warn(
				"failed to persist ready status",
				zap.String("session_id", snapshot.ID.String()),
				zap.Error(err),
			)
		}

		h.scheduleStart(snapshot.ID)
	}

	h.notifier.PublishSession(messaging.EventGameSessionUpdate, snapshot)

	return SetReadyResponse{Session: snapshot}, nil
}

// scheduleStart starts the countdown after the ready grace period, unless
// the session left the ready state in the meantime.
func (h *SetReadyCommandHandler) scheduleStart(sessionID uuid.UUID) {
	time.AfterFunc(h.readyGrace, func() {
		ctx := context.Background()

		var snapshot domain.GameSession
		err := h.sessions.With(sessionID, func(s *domain.GameSession) error {
			if s.Status != domain.StatusReady {
				return fmt.Errorf("session '%s' is no longer ready", s.ID)
			}

			s.Start(time.Now())
			snapshot = *s
			return nil
		})
		if err != nil {
			return
		}

		if err := h.store.MarkStarted(ctx, snapshot.ID, *snapshot.StartTime); err != nil {
			h.logger.Error(
				"failed to persist session start",
				zap.String("session_id", snapshot.ID.String()),
				zap.Error(err),
			)
		}

		h.notifier.PublishSession(messaging.EventGameSessionUpdate, snapshot)
		h.finalizer.ArmCountdown(snapshot)
	})
}

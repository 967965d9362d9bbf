package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type LeaveGameCommand struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

func (c LeaveGameCommand) Validate() error {
	if c.SessionID == uuid.Nil {
		return fmt.Errorf("invalid SessionID - '%s'", c.SessionID)
	}

	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	return nil
}

func HandleLeaveGame(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	command := LeaveGameCommand{
		SessionID: sessionID,
		UserID:    core.Identity(ctx).UserID,
	}

	_, err = mediator.Send[LeaveGameCommand, core.Unit](ctx, command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, nil)
}

type LeaveGameCommandHandler struct {
	sessions  *domain.SessionRegistry
	store     *duel.GameStore
	finalizer *duel.Finalizer
}

func NewLeaveGameCommandHandler(
	sessions *domain.SessionRegistry,
	store *duel.GameStore,
	finalizer *duel.Finalizer,
) *LeaveGameCommandHandler {
	return &LeaveGameCommandHandler{
		sessions:  sessions,
		store:     store,
		finalizer: finalizer,
	}
}

func (h *LeaveGameCommandHandler) Handle(
	ctx context.Context,
	request LeaveGameCommand,
) (core.Unit, error) {
	session, ok := h.sessions.Snapshot(request.SessionID)
	if !ok {
		loaded, err := h.store.Load(ctx, request.SessionID)
		if errors.Is(err, sql.ErrNoRows) {
			return core.Unit{}, core.NewCommandError(404, fmt.Errorf("session '%s' not found", request.SessionID))
		}
		if err != nil {
			return core.Unit{}, core.NewCommandError(500, err)
		}
		session = *loaded
	}

	if !session.HasPlayer(request.UserID) {
		err := fmt.Errorf("user '%s' is not a participant in session '%s'", request.UserID, session.ID)
		return core.Unit{}, core.NewCommandError(403, err)
	}

	// Leaving an already-ended session is a no-op, not an error.
	if session.Status.Terminal() {
		return core.Unit{}, nil
	}

	opponent, err := session.Opponent(request.UserID)
	if err != nil {
		return core.Unit{}, core.NewCommandError(403, err)
	}

	winnerID := opponent.ID
	if err := h.finalizer.Finalize(ctx, session.ID, domain.ResultPlayerLeft, &winnerID); err != nil {
		return core.Unit{}, core.NewCommandError(500, err)
	}

	return core.Unit{}, nil
}

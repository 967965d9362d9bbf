package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type JoinSessionQuery struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

func (q JoinSessionQuery) Validate() error {
	if q.SessionID == uuid.Nil {
		return fmt.Errorf("invalid SessionID - '%s'", q.SessionID)
	}

	if q.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", q.UserID)
	}

	return nil
}

func HandleJoinSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	query := JoinSessionQuery{
		SessionID: sessionID,
		UserID:    core.Identity(ctx).UserID,
	}

	session, err := mediator.Send[JoinSessionQuery, domain.GameSession](ctx, query)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, session)
}

type JoinSessionQueryHandler struct {
	sessions  *domain.SessionRegistry
	store     *duel.GameStore
	timers    *domain.CountdownSet
	finalizer *duel.Finalizer
}

func NewJoinSessionQueryHandler(
	sessions *domain.SessionRegistry,
	store *duel.GameStore,
	timers *domain.CountdownSet,
	finalizer *duel.Finalizer,
) *JoinSessionQueryHandler {
	return &JoinSessionQueryHandler{
		sessions:  sessions,
		store:     store,
		timers:    timers,
		finalizer: finalizer,
	}
}

// Handle returns the session snapshot a reconnecting participant resumes
// from. Durable state decides existence; memory owns the live countdown.
func (h *JoinSessionQueryHandler) Handle(
	ctx context.Context,
	request JoinSessionQuery,
) (domain.GameSession, error) {
	stored, err := h.store.Load(ctx, request.SessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, core.NewCommandError(
			404,
			fmt.Errorf("session '%s' not found", request.SessionID),
		)
	}
	if err != nil {
		return domain.GameSession{}, core.NewCommandError(500, err)
	}

	if !stored.HasPlayer(request.UserID) {
		err := fmt.Errorf("user '%s' is not a participant in session '%s'", request.UserID, stored.ID)
		return domain.GameSession{}, core.NewCommandError(403, err)
	}

	if stored.Status.Terminal() {
		return *stored, nil
	}

	session, ok := h.sessions.Snapshot(request.SessionID)
	if !ok {
		// Resident state lost - recover from durable state the same way the
		// startup loader does.
		now := time.Now()
		if stored.Status == domain.StatusInProgress {
			stored.TimeRemaining = stored.RemainingAt(now)
		}

		h.sessions.Put(stored)
		session = *stored
	}

	if session.Status == domain.StatusInProgress {
		session.TimeRemaining = session.RemainingAt(time.Now())

		if !h.timers.Active(session.ID) {
			h.finalizer.ArmCountdown(session)
		}
	}

	return session, nil
}

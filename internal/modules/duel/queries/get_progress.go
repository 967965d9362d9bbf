package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	"github.com/eskrenkovic/code-duel-go/internal/modules/tasks"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type GetProgressQuery struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

func (q GetProgressQuery) Validate() error {
	if q.SessionID == uuid.Nil {
		return fmt.Errorf("invalid SessionID - '%s'", q.SessionID)
	}

	if q.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", q.UserID)
	}

	return nil
}

type GetProgressResponse struct {
	PlayerLevel   int        `json:"playerLevel"`
	OpponentLevel int        `json:"opponentLevel"`
	CurrentLevel  int        `json:"currentLevel"`
	SolvedTaskIDs []int64    `json:"solvedTaskIds"`
	CurrentTask   tasks.Task `json:"currentTask"`
}

func HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	query := GetProgressQuery{
		SessionID: sessionID,
		UserID:    core.Identity(ctx).UserID,
	}

	response, err := mediator.Send[GetProgressQuery, GetProgressResponse](ctx, query)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type GetProgressQueryHandler struct {
	sessions       *domain.SessionRegistry
	store          *duel.GameStore
	tasks          *tasks.Store
	requiredLevels int
}

func NewGetProgressQueryHandler(
	sessions *domain.SessionRegistry,
	store *duel.GameStore,
	tasks *tasks.Store,
	requiredLevels int,
) *GetProgressQueryHandler {
	return &GetProgressQueryHandler{
		sessions:       sessions,
		store:          store,
		tasks:          tasks,
		requiredLevels: requiredLevels,
	}
}

func (h *GetProgressQueryHandler) Handle(
	ctx context.Context,
	request GetProgressQuery,
) (GetProgressResponse, error) {
	session, ok := h.sessions.Snapshot(request.SessionID)
	if !ok {
		loaded, err := h.store.Load(ctx, request.SessionID)
		if errors.Is(err, sql.ErrNoRows) {
			return GetProgressResponse{}, core.NewCommandError(
				404,
				fmt.Errorf("session '%s' not found", request.SessionID),
			)
		}
		if err != nil {
			return GetProgressResponse{}, core.NewCommandError(500, err)
		}
		session = *loaded
	}

	if !session.HasPlayer(request.UserID) {
		err := fmt.Errorf("user '%s' is not a participant in session '%s'", request.UserID, session.ID)
		return GetProgressResponse{}, core.NewCommandError(403, err)
	}

	opponent, err := session.Opponent(request.UserID)
	if err != nil {
		return GetProgressResponse{}, core.NewCommandError(403, err)
	}

	progress, err := h.tasks.Progress(ctx, session.ID, request.UserID)
	if err != nil {
		return GetProgressResponse{}, core.NewCommandError(500, err)
	}

	opponentProgress, err := h.tasks.Progress(ctx, session.ID, opponent.ID)
	if err != nil {
		return GetProgressResponse{}, core.NewCommandError(500, err)
	}

	// A player who solved the final level has no next task; they stay on the
	// last one for display purposes.
	currentLevel := progress.Level
	if currentLevel > h.requiredLevels {
		currentLevel = h.requiredLevels
	}

	currentTask, err := h.tasks.AssignedTask(ctx, session.ID, currentLevel)
	if err != nil {
		var commandErr core.CommandError
		if errors.As(err, &commandErr) {
			return GetProgressResponse{}, err
		}
		return GetProgressResponse{}, core.NewCommandError(500, err)
	}

	return GetProgressResponse{
		PlayerLevel:   progress.Level,
		OpponentLevel: opponentProgress.Level,
		CurrentLevel:  currentLevel,
		SolvedTaskIDs: progress.SolvedTaskIDs,
		CurrentTask:   currentTask,
	}, nil
}

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
	"github.com/eskrenkovic/code-duel-go/internal/modules/judge"
	"github.com/eskrenkovic/code-duel-go/internal/modules/tasks"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SubmitSolutionCommand struct {
	SessionID uuid.UUID `json:"-"`
	UserID    uuid.UUID `json:"-"`
	TaskID    int64     `json:"taskId"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`

	// IsTest runs the submission against the example case only, without
	// scoring.
	IsTest bool `json:"isTest"`
}

func (c SubmitSolutionCommand) Validate() error {
	if c.SessionID == uuid.Nil {
		return fmt.Errorf("invalid SessionID - '%s'", c.SessionID)
	}

	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	if c.TaskID == 0 {
		return fmt.Errorf("invalid TaskID - '%d'", c.TaskID)
	}

	if c.Code == "" {
		return fmt.Errorf("empty submission code")
	}

	return nil
}

type SubmitSolutionResponse struct {
	Passed       bool               `json:"passed"`
	LevelUp      bool               `json:"levelUp"`
	GameFinished bool               `json:"gameFinished"`
	Results      []judge.CaseResult `json:"testResults"`
}

func HandleSubmitSolution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	command, err := core.RequestBody[SubmitSolutionCommand](r)
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	command.SessionID = sessionID
	command.UserID = core.Identity(ctx).UserID

	response, err := mediator.Send[SubmitSolutionCommand, SubmitSolutionResponse](ctx, command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type SubmitSolutionCommandHandler struct {
	sessions       *domain.SessionRegistry
	tasks          *tasks.Store
	evaluator      *judge.Evaluator
	notifier       *duel.Notifier
	finalizer      *duel.Finalizer
	requiredLevels int
	logger         *zap.Logger
}

func NewSubmitSolutionCommandHandler(
	sessions *domain.SessionRegistry,
	tasks *tasks.Store,
	evaluator *judge.Evaluator,
	notifier *duel.Notifier,
	finalizer *duel.Finalizer,
	requiredLevels int,
	logger *zap.Logger,
) *SubmitSolutionCommandHandler {
	return &SubmitSolutionCommandHandler{
		sessions:       sessions,
		tasks:          tasks,
		evaluator:      evaluator,
		notifier:       notifier,
		finalizer:      finalizer,
		requiredLevels: requiredLevels,
		logger:         logger,
	}
}

func (h *SubmitSolutionCommandHandler) Handle(
	ctx context.Context,
	request SubmitSolutionCommand,
) (SubmitSolutionResponse, error) {
	session, ok := h.sessions.Snapshot(request.SessionID)
	if !ok {
		return SubmitSolutionResponse{}, core.NewCommandError(
			404,
			fmt.Errorf("session '%s' not found", request.SessionID),
		)
	}

	if !session.HasPlayer(request.UserID) {
		err := fmt.Errorf("user '%s' is not a participant in session '%s'", request.UserID, session.ID)
		return SubmitSolutionResponse{}, core.NewCommandError(403, err)
	}

	if session.Status != domain.StatusInProgress {
		err := fmt.Errorf("session '%s' is not in progress", session.ID)
		return SubmitSolutionResponse{}, core.NewCommandError(409, err)
	}

	task, err := h.tasks.GetTask(ctx, request.TaskID)
	if errors.Is(err, sql.ErrNoRows) {
		return SubmitSolutionResponse{}, core.NewCommandError(404, fmt.Errorf("task '%d' not found", request.TaskID))
	}
	if err != nil {
		return SubmitSolutionResponse{}, core.NewCommandError(500, err)
	}

	testCases := task.TestCases
	if request.IsTest {
		testCases = []tasks.TestCase{{Input: task.InputExample, Expected: task.OutputExample}}
	}

	evaluation := h.evaluator.Evaluate(ctx, request.Code, request.Language, testCases, task.FunctionSignature)

	response := SubmitSolutionResponse{
		Passed:  evaluation.Passed,
		Results: evaluation.Results,
	}

	if request.IsTest || !evaluation.Passed {
		return response, nil
	}

	// Judging took a sandbox round-trip per case; the session may have ended
	// underneath us. A finished game accepts no more scoring.
	session, ok = h.sessions.Snapshot(request.SessionID)
	if !ok || session.Status.Terminal() {
		return response, nil
	}

	levelUp, err := h.tasks.RecordCompletion(ctx, session.ID, request.UserID, task.ID)
	if err != nil {
		return SubmitSolutionResponse{}, core.NewCommandError(500, err)
	}

	response.LevelUp = levelUp
	if !levelUp {
		return response, nil
	}

	if err := h.notifier.PublishProgress(ctx, session.ID); err != nil {
		h.logger.Warn(
			"failed to publish progress update",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
	}

	completed, err := h.tasks.CompletionCount(ctx, session.ID, request.UserID)
	if err != nil {
		return SubmitSolutionResponse{}, core.NewCommandError(500, err)
	}

	if completed >= h.requiredLevels {
		winnerID := request.UserID
		if err := h.finalizer.Finalize(ctx, session.ID, domain.ResultCompleted, &winnerID); err != nil {
			return SubmitSolutionResponse{}, core.NewCommandError(500, err)
		}

		response.GameFinished = true
	}

	return response, nil
}

package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/judge"
	"github.com/eskrenkovic/code-duel-go/internal/modules/tasks"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
)

type GetTaskTemplateQuery struct {
	TaskID   int64
	Language string
}

func (q GetTaskTemplateQuery) Validate() error {
	if q.TaskID == 0 {
		return fmt.Errorf("invalid TaskID - '%d'", q.TaskID)
	}

	return nil
}

type GetTaskTemplateResponse struct {
	Template          string `json:"template"`
	FunctionSignature string `json:"functionSignature"`
}

func HandleGetTaskTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	query := GetTaskTemplateQuery{
		TaskID:   taskID,
		Language: r.URL.Query().Get("language"),
	}

	response, err := mediator.Send[GetTaskTemplateQuery, GetTaskTemplateResponse](ctx, query)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type GetTaskTemplateQueryHandler struct {
	tasks *tasks.Store
}

func NewGetTaskTemplateQueryHandler(tasks *tasks.Store) *GetTaskTemplateQueryHandler {
	return &GetTaskTemplateQueryHandler{tasks}
}

func (h *GetTaskTemplateQueryHandler) Handle(
	ctx context.Context,
	request GetTaskTemplateQuery,
) (GetTaskTemplateResponse, error) {
	template, signature, err := h.tasks.Template(ctx, request.TaskID, judge.TemplateKey(request.Language))
	if errors.Is(err, sql.ErrNoRows) {
		return GetTaskTemplateResponse{}, core.NewCommandError(
			404,
			fmt.Errorf("task '%d' not found", request.TaskID),
		)
	}
	if err != nil {
		return GetTaskTemplateResponse{}, core.NewCommandError(500, err)
	}

	return GetTaskTemplateResponse{
		Template:          template,
		FunctionSignature: signature,
	}, nil
}

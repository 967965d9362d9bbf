package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Progress is a player's standing within one duel, derived entirely from
// completion rows.
type Progress struct {
	Level         int     `json:"level"`
	SolvedTaskIDs []int64 `json:"solvedTaskIds"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db}
}

type taskRow struct {
	ID                int64  `db:"id"`
	Title             string `db:"title"`
	Description       string `db:"description"`
	InputExample      string `db:"input_example"`
	OutputExample     string `db:"output_example"`
	Difficulty        string `db:"difficulty"`
	Level             int    `db:"level"`
	CodeTemplates     []byte `db:"code_templates"`
	FunctionSignature string `db:"function_signature"`
	TestCases         []byte `db:"test_cases"`
}

func (r taskRow) toTask() (Task, error) {
	task := Task{
		ID:                r.ID,
		Title:             r.Title,
		Description:       r.Description,
		InputExample:      r.InputExample,
		OutputExample:     r.OutputExample,
		Difficulty:        r.Difficulty,
		Level:             r.Level,
		FunctionSignature: r.FunctionSignature,
	}

	if len(r.CodeTemplates) > 0 {
		if err := json.Unmarshal(r.CodeTemplates, &task.CodeTemplates); err != nil {
			return Task{}, fmt.Errorf("task %d: unmarshal code templates: %w", r.ID, err)
		}
	}

	if len(r.TestCases) > 0 {
		if err := json.Unmarshal(r.TestCases, &task.TestCases); err != nil {
			return Task{}, fmt.Errorf("task %d: unmarshal test cases: %w", r.ID, err)
		}
	}

	return task, nil
}

func (s *Store) GetTask(ctx context.Context, taskID int64) (Task, error) {
	const query = `
		SELECT
			id, title, description, input_example, output_example,
			difficulty, level, code_templates, function_signature, test_cases
		FROM
			game_tasks
		WHERE
			id = $1;`

	row, err := tql.QuerySingle[taskRow](ctx, s.db, query, taskID)
	if err != nil {
		return Task{}, err
	}

	return row.toTask()
}

// AssignedTask resolves the task both duelists see at the given level,
// creating the assignment lazily. The insert is insert-if-absent and the
// assignment is re-read afterwards, so when both players race the loser
// observes the winner's pick.
func (s *Store) AssignedTask(ctx context.Context, gameID uuid.UUID, level int) (Task, error) {
	taskID, err := s.assignedTaskID(ctx, gameID, level)
	if err == nil {
		return s.GetTask(ctx, taskID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Task{}, err
	}

	candidateID, err := s.pickTaskID(ctx, level)
	if err != nil {
		return Task{}, err
	}

	const insert = `
		INSERT INTO
			game_assigned_tasks (game_id, level, task_id)
		VALUES
			($1, $2, $3)
		ON CONFLICT (game_id, level) DO NOTHING;`
	if _, err := tql.Exec(ctx, s.db, insert, gameID, level, candidateID); err != nil {
		return Task{}, err
	}

	taskID, err = s.assignedTaskID(ctx, gameID, level)
	if err != nil {
		return Task{}, err
	}

	return s.GetTask(ctx, taskID)
}

func (s *Store) assignedTaskID(ctx context.Context, gameID uuid.UUID, level int) (int64, error) {
	const query = `
		SELECT
			task_id
		FROM
			game_assigned_tasks
		WHERE
			game_id = $1 AND level = $2;`
	return tql.QuerySingle[int64](ctx, s.db, query, gameID, level)
}

func (s *Store) pickTaskID(ctx context.Context, level int) (int64, error) {
	difficulties, pooled := DifficultyPool(level)

	if pooled {
		const query = `
			SELECT
				id
			FROM
				game_tasks
			WHERE
				difficulty = ANY($1)
			ORDER BY RANDOM()
			LIMIT 1;`
		id, err := tql.QuerySingle[int64](ctx, s.db, query, pq.Array(difficulties))
		if errors.Is(err, sql.ErrNoRows) {
			return 0, core.NewCommandError(404, err, core.WithReason(fmt.Sprintf("no task found for level %d", level)))
		}
		return id, err
	}

	const query = `
		SELECT
			id
		FROM
			game_tasks
		WHERE
			level = $1
		ORDER BY RANDOM()
		LIMIT 1;`
	id, err := tql.QuerySingle[int64](ctx, s.db, query, level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.NewCommandError(404, err, core.WithReason(fmt.Sprintf("no task found for level %d", level)))
	}
	return id, err
}

// Progress derives a player's level from completion count. Level is always
// count + 1.
func (s *Store) Progress(ctx context.Context, gameID uuid.UUID, playerID uuid.UUID) (Progress, error) {
	const query = `
		SELECT
			task_id
		FROM
			game_task_completions
		WHERE
			game_id = $1 AND player_id = $2;`

	solved, err := tql.Query[int64](ctx, s.db, query, gameID, playerID)
	if err != nil {
		return Progress{}, err
	}

	return Progress{
		Level:         len(solved) + 1,
		SolvedTaskIDs: solved,
	}, nil
}

// RecordCompletion appends a completion row if absent. Reports whether the
// row is new - repeated solves of the same task never level a player up
// twice.
func (s *Store) RecordCompletion(ctx context.Context, gameID, playerID uuid.UUID, taskID int64) (bool, error) {
	const stmt = `
		INSERT INTO
			game_task_completions (game_id, player_id, task_id)
		VALUES
			($1, $2, $3)
		ON CONFLICT (game_id, player_id, task_id) DO NOTHING;`

	result, err := tql.Exec(ctx, s.db, stmt, gameID, playerID, taskID)
	if err != nil {
		return false, err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return inserted > 0, nil
}

func (s *Store) CompletionCount(ctx context.Context, gameID, playerID uuid.UUID) (int, error) {
	const query = `
		SELECT
			COUNT(*)
		FROM
			game_task_completions
		WHERE
			game_id = $1 AND player_id = $2;`
	return tql.QuerySingle[int](ctx, s.db, query, gameID, playerID)
}

// Template returns the code template for a task in the given sandbox
// language id, falling back to the javascript template, then to any.
func (s *Store) Template(ctx context.Context, taskID int64, languageID string) (template string, functionSignature string, err error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return "", "", err
	}

	template, ok := task.CodeTemplates[languageID]
	if !ok {
		template = task.CodeTemplates["102"]
	}

	if template == "" {
		for _, t := range task.CodeTemplates {
			template = t
			break
		}
	}

	return template, task.FunctionSignature, nil
}

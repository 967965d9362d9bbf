package tasks

// TestCase is a single hidden input/expected pair for a task.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Task is read-only reference data. Managed by admin tooling outside the
// orchestrator.
type Task struct {
	ID                int64             `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	InputExample      string            `json:"inputExample"`
	OutputExample     string            `json:"outputExample"`
	Difficulty        string            `json:"difficulty"`
	Level             int               `json:"level"`
	CodeTemplates     map[string]string `json:"codeTemplates"`
	FunctionSignature string            `json:"functionSignature"`
	TestCases         []TestCase        `json:"testCases"`
}

// DifficultyPool returns the difficulty pool a level draws from. Levels 1
// and 2 use mixed pools; every later level selects by exact level match,
// signalled by ok == false.
func DifficultyPool(level int) (difficulties []string, ok bool) {
	switch level {
	case 1:
		return []string{"easy", "medium"}, true
	case 2:
		return []string{"medium", "hard"}, true
	default:
		return nil, false
	}
}

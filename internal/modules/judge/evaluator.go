package judge

import (
	"context"
	"strings"

	"github.com/eskrenkovic/code-duel-go/internal/modules/tasks"

	"go.uber.org/zap"
)

const (
	// Fixed sandbox resource limits for every submission.
	cpuTimeLimitSeconds = 5
	memoryLimitKB       = 128_000
)

type CaseResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

type Evaluation struct {
	Passed  bool         `json:"passed"`
	Results []CaseResult `json:"testResults"`
}

// Evaluator judges a submission against a set of test cases, one sandbox
// round-trip per case. A sandbox failure is recorded as a failed case and
// never retried.
type Evaluator struct {
	executor Executor
	logger   *zap.Logger
}

func NewEvaluator(executor Executor, logger *zap.Logger) *Evaluator {
	return &Evaluator{executor: executor, logger: logger}
}

func (e *Evaluator) Evaluate(
	ctx context.Context,
	sourceCode string,
	language string,
	testCases []tasks.TestCase,
	functionSignature string,
) Evaluation {
	evaluation := Evaluation{Passed: true}

	for _, testCase := range testCases {
		result := e.runCase(ctx, sourceCode, language, testCase, functionSignature)
		if !result.Passed {
			evaluation.Passed = false
		}

		evaluation.Results = append(evaluation.Results, result)
	}

	if len(testCases) == 0 {
		evaluation.Passed = false
	}

	return evaluation
}

func (e *Evaluator) runCase(
	ctx context.Context,
	sourceCode string,
	language string,
	testCase tasks.TestCase,
	functionSignature string,
) CaseResult {
	wrapped := WrapForTesting(sourceCode, language, testCase, functionSignature)

	response, err := e.executor.Execute(ctx, ExecutionRequest{
		SourceCode:   wrapped,
		LanguageID:   LanguageID(language),
		CPUTimeLimit: cpuTimeLimitSeconds,
		MemoryLimit:  memoryLimitKB,
	})
	if err != nil {
		e.logger.Warn("sandbox execution failed", zap.Error(err))
		return CaseResult{
			Input:    testCase.Input,
			Expected: testCase.Expected,
			Actual:   "Error: " + err.Error(),
			Passed:   false,
		}
	}

	var actual string
	switch {
	case response.Status.ID == statusAccepted && response.Stdout != "":
		actual = strings.TrimSpace(response.Stdout)
	case response.Stderr != "":
		actual = "Error: " + response.Stderr
	case response.CompileOutput != "":
		actual = "Compile Error: " + response.CompileOutput
	}

	// A run that produced nothing never passes, even against an expected
	// value that trims to the empty string.
	if actual == "" {
		return CaseResult{
			Input:    testCase.Input,
			Expected: testCase.Expected,
			Actual:   "No output",
			Passed:   false,
		}
	}

	normalizedActual := NormalizeOutput(actual)
	normalizedExpected := NormalizeOutput(strings.TrimSpace(testCase.Expected))

	return CaseResult{
		Input:    testCase.Input,
		Expected: testCase.Expected,
		Actual:   actual,
		Passed:   normalizedActual == normalizedExpected,
	}
}

package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ExecutionRequest is the payload sent to the external sandbox.
type ExecutionRequest struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin"`
	CPUTimeLimit float64 `json:"cpu_time_limit"`
	MemoryLimit  int     `json:"memory_limit"`
}

type ExecutionStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// statusAccepted is the sandbox status id for a clean run.
const statusAccepted = 3

type ExecutionResponse struct {
	Stdout        string          `json:"stdout"`
	Stderr        string          `json:"stderr"`
	CompileOutput string          `json:"compile_output"`
	Status        ExecutionStatus `json:"status"`
	Time          string          `json:"time"`
	Memory        int             `json:"memory"`
}

// Executor runs wrapped source in the external sandbox. The sandbox is
// opaque, possibly slow and possibly failing - callers treat an error as a
// failed test case, never as a system fault.
type Executor interface {
	Execute(ctx context.Context, request ExecutionRequest) (ExecutionResponse, error)
}

type Client struct {
	baseURL string
	client  *http.Client
}

var _ Executor = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Execute(ctx context.Context, request ExecutionRequest) (ExecutionResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return ExecutionResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return ExecutionResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ExecutionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ExecutionResponse{}, fmt.Errorf("sandbox returned %d: %s", resp.StatusCode, payload)
	}

	var response ExecutionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return ExecutionResponse{}, err
	}

	return response, nil
}

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/internal/config"
)

const (
	betaHeader     = "assistants=v2"
	defaultTimeout = 60 * time.Second
)

// Client talks to the Assistants v2 REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an Assistants API client.
func NewClient(log *slog.Logger, cfg config.OpenAIConfig) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultOpenAIBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.With(slog.String("service", "assistant")),
	}, nil
}

// CreateThread starts a new provider thread.
func (c *Client) CreateThread(ctx context.Context) (Thread, error) {
	var thread Thread
	if err := c.postJSON(ctx, "/threads", map[string]any{}, &thread); err != nil {
		return Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// AddMessage appends a user message with the given content blocks to a thread.
func (c *Client) AddMessage(ctx context.Context, threadID string, content []ContentBlock) (ThreadMessage, error) {
	payload := map[string]any{
		"role":    "user",
		"content": content,
	}
	var msg ThreadMessage
	if err := c.postJSON(ctx, "/threads/"+threadID+"/messages", payload, &msg); err != nil {
		return ThreadMessage{}, fmt.Errorf("add message to thread %s: %w", threadID, err)
	}
	return msg, nil
}

// CreateRun starts execution of the assistant against a thread. Tools, when
// non-empty, override the assistant's configured tool set for this run.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string, tools []Tool) (Run, error) {
	payload := map[string]any{
		"assistant_id": assistantID,
	}
	if len(tools) > 0 {
		payload["tools"] = tools
	}
	var run Run
	if err := c.postJSON(ctx, "/threads/"+threadID+"/runs", payload, &run); err != nil {
		return Run{}, fmt.Errorf("create run on thread %s: %w", threadID, err)
	}
	return run, nil
}

// GetRun fetches the current run state.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var run Run
	if err := c.getJSON(ctx, "/threads/"+threadID+"/runs/"+runID, &run); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// SubmitToolOutputs answers a paused run's tool calls and resumes it.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error) {
	payload := map[string]any{"tool_outputs": outputs}
	var run Run
	if err := c.postJSON(ctx, "/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", payload, &run); err != nil {
		return Run{}, fmt.Errorf("submit tool outputs for run %s: %w", runID, err)
	}
	return run, nil
}

// CancelRun requests cancellation of an in-flight run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	if err := c.postJSON(ctx, "/threads/"+threadID+"/runs/"+runID+"/cancel", map[string]any{}, nil); err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return nil
}

// ListMessages returns thread messages newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) (MessageList, error) {
	if limit <= 0 {
		limit = 10
	}
	path := fmt.Sprintf("/threads/%s/messages?order=desc&limit=%d", threadID, limit)
	var list MessageList
	if err := c.getJSON(ctx, path, &list); err != nil {
		return MessageList{}, fmt.Errorf("list messages on thread %s: %w", threadID, err)
	}
	return list, nil
}

// UploadFile streams a file to the provider's file store.
func (c *Client) UploadFile(ctx context.Context, filename string, data io.Reader, purpose string) (File, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return File{}, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return File{}, fmt.Errorf("copy file data: %w", err)
	}
	if err := writer.WriteField("purpose", purpose); err != nil {
		return File{}, fmt.Errorf("write purpose field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return File{}, fmt.Errorf("finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return File{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuth(req)

	var file File
	if err := c.do(req, &file); err != nil {
		return File{}, fmt.Errorf("upload file %s: %w", filename, err)
	}
	return file, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	return c.do(req, out)
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("assistants api error",
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)))
		return fmt.Errorf("assistants api: status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

package run

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/internal/action"
	"github.com/chatrelay/chatrelay/internal/assistant"
	"github.com/chatrelay/chatrelay/internal/config"
)

// ProviderClient is the Assistants API surface the engine drives.
type ProviderClient interface {
	CreateThread(ctx context.Context) (assistant.Thread, error)
	AddMessage(ctx context.Context, threadID string, content []assistant.ContentBlock) (assistant.ThreadMessage, error)
	CreateRun(ctx context.Context, threadID, assistantID string, tools []assistant.Tool) (assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (assistant.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistant.ToolOutput) (assistant.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	ListMessages(ctx context.Context, threadID string, limit int) (assistant.MessageList, error)
}

// Dispatcher resolves provider tool calls into textual outputs.
type Dispatcher interface {
	Dispatch(ctx context.Context, call action.Call) string
	OpenAITools() []assistant.Tool
}

// Engine executes AI turns. At most one turn runs per conversation at any
// instant; the conversation lock is held for the whole state machine,
// polling included, and released on every exit path.
type Engine struct {
	client       ProviderClient
	dispatcher   Dispatcher
	assistantID  string
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *slog.Logger
	locks        *lockTable
}

// NewEngine creates a run engine from the OpenAI configuration.
func NewEngine(log *slog.Logger, client ProviderClient, dispatcher Dispatcher, cfg config.OpenAIConfig) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		return nil, fmt.Errorf("assistant id is required")
	}
	pollInterval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Duration(config.DefaultPollInterval) * time.Second
	}
	runTimeout := time.Duration(cfg.RunTimeoutSeconds) * time.Second
	if runTimeout <= 0 {
		runTimeout = time.Duration(config.DefaultRunTimeout) * time.Second
	}
	return &Engine{
		client:       client,
		dispatcher:   dispatcher,
		assistantID:  cfg.AssistantID,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
		logger:       log.With(slog.String("service", "run")),
		locks:        newLockTable(),
	}, nil
}

// Execute runs one AI turn for a conversation. threadID may be empty, in
// which case a new provider thread is created and reported in the result.
// The returned error is non-nil exactly when the turn did not complete.
func (e *Engine) Execute(ctx context.Context, conversationID, threadID string, content []assistant.ContentBlock) (Result, error) {
	e.locks.acquire(conversationID)
	defer e.locks.release(conversationID)

	result, err := e.execute(ctx, conversationID, threadID, content)
	// Every turn ends in exactly one terminal state.
	if err != nil && !result.State.Terminal() {
		result.State = StateFailed
	}
	return result, err
}

func (e *Engine) execute(ctx context.Context, conversationID, threadID string, content []assistant.ContentBlock) (Result, error) {
	result := Result{State: StateIdle}
	log := e.logger.With(slog.String("conversation_id", conversationID))

	// THREAD_READY: reuse the bound thread or create one.
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		thread, err := e.client.CreateThread(ctx)
		if err != nil {
			result.State = StateFailed
			result.ErrorMsg = err.Error()
			return result, fmt.Errorf("create thread: %w", err)
		}
		threadID = thread.ID
	}
	result.ThreadID = threadID
	result.State = StateThreadReady

	// MESSAGE_ADDED: append this turn's content.
	if _, err := e.client.AddMessage(ctx, threadID, content); err != nil {
		result.State = StateFailed
		result.ErrorMsg = err.Error()
		return result, fmt.Errorf("add message: %w", err)
	}
	result.State = StateMessageAdded

	// RUN_STARTED: request execution with the registered tool catalog.
	var tools []assistant.Tool
	if e.dispatcher != nil {
		tools = e.dispatcher.OpenAITools()
	}
	providerRun, err := e.client.CreateRun(ctx, threadID, e.assistantID, tools)
	if err != nil {
		result.State = StateFailed
		result.ErrorMsg = err.Error()
		return result, fmt.Errorf("create run: %w", err)
	}
	result.RunID = providerRun.ID
	result.State = StateRunStarted
	log = log.With(slog.String("run_id", providerRun.ID))

	return e.poll(ctx, log, threadID, providerRun.ID, result)
}

// poll drives the run to a terminal state within the timeout.
func (e *Engine) poll(ctx context.Context, log *slog.Logger, threadID, runID string, result Result) (Result, error) {
	deadline := time.NewTimer(e.runTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	result.State = StatePolling
	for {
		select {
		case <-ctx.Done():
			e.cancelRemote(threadID, runID)
			result.State = StateCancelled
			result.ErrorMsg = ctx.Err().Error()
			return result, fmt.Errorf("run cancelled: %w", ctx.Err())

		case <-deadline.C:
			// Hard cap: expiry is a normal terminal outcome, not a hang.
			e.cancelRemote(threadID, runID)
			log.Warn("run exceeded timeout", slog.Duration("timeout", e.runTimeout))
			result.State = StateExpired
			result.ErrorMsg = fmt.Sprintf("run did not finish within %s", e.runTimeout)
			return result, fmt.Errorf("run expired after %s", e.runTimeout)

		case <-ticker.C:
			providerRun, err := e.client.GetRun(ctx, threadID, runID)
			if err != nil {
				// A cancellation landing while the fetch is in flight
				// surfaces as the fetch error; route it through the
				// cancelled exit so the provider-side run is stopped.
				if ctx.Err() != nil {
					e.cancelRemote(threadID, runID)
					result.State = StateCancelled
					result.ErrorMsg = ctx.Err().Error()
					return result, fmt.Errorf("run cancelled: %w", ctx.Err())
				}
				result.State = StateFailed
				result.ErrorMsg = err.Error()
				return result, fmt.Errorf("poll run: %w", err)
			}

			switch providerRun.Status {
			case assistant.StatusQueued, assistant.StatusInProgress, assistant.StatusCancelling:
				result.State = StatePolling

			case assistant.StatusRequiresAction:
				result.State = StateRequiresAction
				if err := e.submitToolOutputs(ctx, log, threadID, runID, providerRun); err != nil {
					result.State = StateFailed
					result.ErrorMsg = err.Error()
					return result, err
				}
				result.State = StateToolsSubmitted

			case assistant.StatusCompleted:
				reply, err := e.latestAssistantReply(ctx, threadID)
				if err != nil {
					result.State = StateFailed
					result.ErrorMsg = err.Error()
					return result, fmt.Errorf("fetch assistant reply: %w", err)
				}
				result.State = StateCompleted
				result.Reply = reply
				return result, nil

			case assistant.StatusFailed, assistant.StatusIncomplete:
				result.State = StateFailed
				result.ErrorMsg = runErrorDetail(providerRun)
				return result, fmt.Errorf("run failed: %s", result.ErrorMsg)

			case assistant.StatusExpired:
				result.State = StateExpired
				result.ErrorMsg = runErrorDetail(providerRun)
				return result, fmt.Errorf("run expired at provider")

			case assistant.StatusCancelled:
				result.State = StateCancelled
				result.ErrorMsg = runErrorDetail(providerRun)
				return result, fmt.Errorf("run cancelled at provider")

			default:
				result.State = StateFailed
				result.ErrorMsg = fmt.Sprintf("unknown run status %q", providerRun.Status)
				return result, fmt.Errorf("unknown run status %q", providerRun.Status)
			}
		}
	}
}

// submitToolOutputs dispatches every pending tool call and submits all
// outputs together. A failing call contributes an error string as its
// output; it never aborts its siblings.
func (e *Engine) submitToolOutputs(ctx context.Context, log *slog.Logger, threadID, runID string, providerRun assistant.Run) error {
	if providerRun.RequiredAction == nil || providerRun.RequiredAction.SubmitToolOutputs == nil {
		return fmt.Errorf("run requires action but carries no tool calls")
	}
	calls := providerRun.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs := make([]assistant.ToolOutput, 0, len(calls))
	for _, call := range calls {
		var output string
		if e.dispatcher == nil {
			output = fmt.Sprintf("error: no dispatcher configured for %q", call.Function.Name)
		} else {
			output = e.dispatcher.Dispatch(ctx, action.Call{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
		log.Debug("tool call dispatched",
			slog.String("tool", call.Function.Name),
			slog.String("tool_call_id", call.ID))
		outputs = append(outputs, assistant.ToolOutput{ToolCallID: call.ID, Output: output})
	}
	if _, err := e.client.SubmitToolOutputs(ctx, threadID, runID, outputs); err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	return nil
}

// latestAssistantReply returns the newest assistant message's text.
func (e *Engine) latestAssistantReply(ctx context.Context, threadID string) (string, error) {
	list, err := e.client.ListMessages(ctx, threadID, 10)
	if err != nil {
		return "", err
	}
	for _, msg := range list.Data {
		if msg.Role == "assistant" {
			return msg.PlainText(), nil
		}
	}
	return "", fmt.Errorf("no assistant message on thread %s", threadID)
}

// cancelRemote issues a best-effort cancellation, detached from the caller's
// (possibly dead) context.
func (e *Engine) cancelRemote(threadID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.client.CancelRun(ctx, threadID, runID); err != nil {
		e.logger.Warn("best-effort run cancellation failed",
			slog.String("run_id", runID),
			slog.Any("error", err))
	}
}

func runErrorDetail(r assistant.Run) string {
	if r.LastError != nil {
		return fmt.Sprintf("%s: %s", r.LastError.Code, r.LastError.Message)
	}
	return "provider reported status " + r.Status
}

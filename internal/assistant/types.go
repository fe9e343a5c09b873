// Package assistant is a client for the OpenAI Assistants v2 API surface
// used by the run pipeline: threads, messages, runs, tool outputs, and file
// uploads.
package assistant

// Run lifecycle status constants, as reported by the provider.
const (
	StatusQueued         = "queued"
	StatusInProgress     = "in_progress"
	StatusRequiresAction = "requires_action"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusExpired        = "expired"
	StatusCancelling     = "cancelling"
	StatusCancelled      = "cancelled"
	StatusIncomplete     = "incomplete"
)

// Thread is a provider-side conversational context.
type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// ContentBlock is one part of a multimodal message.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ImageFile *ImageFileBlock `json:"image_file,omitempty"`
}

// ImageFileBlock references an uploaded provider file.
type ImageFileBlock struct {
	FileID string `json:"file_id"`
	Detail string `json:"detail,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ImageBlock builds an image_file content block.
func ImageBlock(fileID string) ContentBlock {
	return ContentBlock{
		Type:      "image_file",
		ImageFile: &ImageFileBlock{FileID: fileID, Detail: "high"},
	}
}

// Run is one execution attempt against a thread.
type Run struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	AssistantID    string          `json:"assistant_id"`
	Status         string          `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *RunError       `json:"last_error,omitempty"`
}

// Terminal reports whether the run has reached a final provider status.
func (r Run) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled, StatusIncomplete:
		return true
	}
	return false
}

// RequiredAction carries the pending tool calls of a paused run.
type RequiredAction struct {
	Type              string             `json:"type"`
	SubmitToolOutputs *SubmitToolOutputs `json:"submit_tool_outputs,omitempty"`
}

type SubmitToolOutputs struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ToolCall is a provider-issued request to invoke a named function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolOutput answers one tool call.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// RunError is the provider's failure detail for a terminal run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ThreadMessage is one message stored on a thread.
type ThreadMessage struct {
	ID        string           `json:"id"`
	ThreadID  string           `json:"thread_id"`
	Role      string           `json:"role"`
	RunID     string           `json:"run_id,omitempty"`
	Content   []MessageContent `json:"content"`
	CreatedAt int64            `json:"created_at"`
}

// MessageContent is one content part of a thread message.
type MessageContent struct {
	Type      string          `json:"type"`
	Text      *MessageText    `json:"text,omitempty"`
	ImageFile *ImageFileBlock `json:"image_file,omitempty"`
}

type MessageText struct {
	Value string `json:"value"`
}

// PlainText concatenates the text parts of a thread message.
func (m ThreadMessage) PlainText() string {
	var out string
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			if out != "" {
				out += "\n"
			}
			out += c.Text.Value
		}
	}
	return out
}

// MessageList is a page of thread messages.
type MessageList struct {
	Data    []ThreadMessage `json:"data"`
	HasMore bool            `json:"has_more"`
	FirstID string          `json:"first_id"`
	LastID  string          `json:"last_id"`
}

// File is an uploaded provider file.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
	Status   string `json:"status"`
}

// Tool is a function-tool definition attached at run creation.
type Tool struct {
	Type     string        `json:"type"`
	Function *ToolFunction `json:"function,omitempty"`
}

// ToolFunction describes a callable function for the provider.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

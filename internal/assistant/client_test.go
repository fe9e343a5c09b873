package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatrelay/chatrelay/internal/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(nil, config.OpenAIConfig{APIKey: "sk-test", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := NewClient(nil, config.OpenAIConfig{}); err == nil {
		t.Fatalf("NewClient without api key should fail")
	}
}

func TestCreateThread(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("OpenAI-Beta"); got != "assistants=v2" {
			t.Errorf("OpenAI-Beta = %q", got)
		}
		_, _ = w.Write([]byte(`{"id":"thread_abc","created_at":1700000000}`))
	}))
	defer srv.Close()

	thread, err := newTestClient(t, srv.URL).CreateThread(context.Background())
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if thread.ID != "thread_abc" {
		t.Fatalf("thread = %+v", thread)
	}
}

func TestAddMessage(t *testing.T) {
	t.Parallel()
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/thread_abc/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"id":"msg_1","thread_id":"thread_abc","role":"user"}`))
	}))
	defer srv.Close()

	content := []ContentBlock{TextBlock("hello"), ImageBlock("file-1")}
	msg, err := newTestClient(t, srv.URL).AddMessage(context.Background(), "thread_abc", content)
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if msg.ID != "msg_1" {
		t.Fatalf("msg = %+v", msg)
	}
	if payload["role"] != "user" {
		t.Fatalf("role = %v", payload["role"])
	}
	blocks, ok := payload["content"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("content = %v", payload["content"])
	}
}

func TestCreateRun_ToolsOnlyWhenPresent(t *testing.T) {
	t.Parallel()
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"id":"run_1","thread_id":"thread_abc","status":"queued"}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	if _, err := c.CreateRun(context.Background(), "thread_abc", "asst_1", nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, ok := payload["tools"]; ok {
		t.Fatalf("tools field sent for empty tool set")
	}

	tools := []Tool{{Type: "function", Function: &ToolFunction{Name: "enable_live_chat"}}}
	if _, err := c.CreateRun(context.Background(), "thread_abc", "asst_1", tools); err != nil {
		t.Fatalf("CreateRun with tools: %v", err)
	}
	if _, ok := payload["tools"]; !ok {
		t.Fatalf("tools field missing")
	}
	if payload["assistant_id"] != "asst_1" {
		t.Fatalf("assistant_id = %v", payload["assistant_id"])
	}
}

func TestGetRun_RequiresAction(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "run_1",
			"status": "requires_action",
			"required_action": {
				"type": "submit_tool_outputs",
				"submit_tool_outputs": {
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "enable_live_chat", "arguments": "{\"phone_number\":\"+1555\"}"}}]
				}
			}
		}`))
	}))
	defer srv.Close()

	run, err := newTestClient(t, srv.URL).GetRun(context.Background(), "thread_abc", "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusRequiresAction {
		t.Fatalf("status = %q", run.Status)
	}
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		t.Fatalf("required action = %+v", run.RequiredAction)
	}
	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	if len(calls) != 1 || calls[0].Function.Name != "enable_live_chat" {
		t.Fatalf("tool calls = %+v", calls)
	}
}

func TestListMessages(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "order=desc&limit=10" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"msg_2","role":"assistant","content":[{"type":"text","text":{"value":"the reply"}}]}]}`))
	}))
	defer srv.Close()

	list, err := newTestClient(t, srv.URL).ListMessages(context.Background(), "thread_abc", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].PlainText() != "the reply" {
		t.Fatalf("list = %+v", list)
	}
}

func TestUploadFile(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("purpose"); got != "vision" {
			t.Errorf("purpose = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			defer file.Close()
			if header.Filename != "whatsapp_image_media-1.jpg" {
				t.Errorf("filename = %q", header.Filename)
			}
		}
		_, _ = w.Write([]byte(`{"id":"file-xyz","filename":"whatsapp_image_media-1.jpg","purpose":"vision"}`))
	}))
	defer srv.Close()

	file, err := newTestClient(t, srv.URL).UploadFile(context.Background(), "whatsapp_image_media-1.jpg", strings.NewReader("jpeg-bytes"), "vision")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if file.ID != "file-xyz" {
		t.Fatalf("file = %+v", file)
	}
}

func TestDo_ErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"No thread found"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).GetRun(context.Background(), "thread_missing", "run_1")
	if err == nil {
		t.Fatalf("GetRun against 404 should fail")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("err = %v", err)
	}
}

func TestPlainText_JoinsTextParts(t *testing.T) {
	t.Parallel()
	msg := ThreadMessage{Content: []MessageContent{
		{Type: "text", Text: &MessageText{Value: "line one"}},
		{Type: "image_file", ImageFile: &ImageFileBlock{FileID: "file-1"}},
		{Type: "text", Text: &MessageText{Value: "line two"}},
	}}
	if got := msg.PlainText(); got != "line one\nline two" {
		t.Fatalf("PlainText() = %q", got)
	}
}

func TestRunTerminal(t *testing.T) {
	t.Parallel()
	terminal := []string{StatusCompleted, StatusFailed, StatusExpired, StatusCancelled, StatusIncomplete}
	for _, status := range terminal {
		if !(Run{Status: status}).Terminal() {
			t.Errorf("Terminal() = false for %q", status)
		}
	}
	for _, status := range []string{StatusQueued, StatusInProgress, StatusRequiresAction, StatusCancelling} {
		if (Run{Status: status}).Terminal() {
			t.Errorf("Terminal() = true for %q", status)
		}
	}
}

package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newSeededRegistry(actions ...Action) *Registry {
	r := NewRegistry(nil, nil)
	for _, a := range actions {
		r.actions[a.Name] = a
	}
	return r
}

func TestDispatch_UnknownAction(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry()
	out := r.Dispatch(context.Background(), Call{ID: "call-1", Name: "nope", Arguments: "{}"})
	if !strings.Contains(out, "not registered") {
		t.Fatalf("output = %q, want not-registered error string", out)
	}
}

func TestDispatch_InvalidArguments(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry(Action{Name: "echo", Kind: KindLocal, FunctionKey: "echo"})
	out := r.Dispatch(context.Background(), Call{Name: "echo", Arguments: "{not json"})
	if !strings.Contains(out, "invalid arguments") {
		t.Fatalf("output = %q, want invalid-arguments error string", out)
	}
}

func TestDispatch_Local(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry(Action{Name: "echo", Kind: KindLocal, FunctionKey: "echo"})
	r.RegisterFunc("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"echoed": args["text"]}, nil
	})

	out := r.Dispatch(context.Background(), Call{Name: "echo", Arguments: `{"text":"hi"}`})
	if out != `{"echoed":"hi"}` {
		t.Fatalf("output = %q", out)
	}
}

func TestDispatch_LocalStringResultPassedThrough(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry(Action{Name: "plain", Kind: KindLocal, FunctionKey: "plain"})
	r.RegisterFunc("plain", func(ctx context.Context, args map[string]any) (any, error) {
		return "already text", nil
	})

	if out := r.Dispatch(context.Background(), Call{Name: "plain"}); out != "already text" {
		t.Fatalf("output = %q", out)
	}
}

func TestDispatch_LocalError(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry(Action{Name: "boom", Kind: KindLocal, FunctionKey: "boom"})
	r.RegisterFunc("boom", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, fmt.Errorf("conversation not found")
	})

	out := r.Dispatch(context.Background(), Call{Name: "boom"})
	if out != "error: conversation not found" {
		t.Fatalf("output = %q", out)
	}
}

func TestDispatch_LocalFunctionNotInstalled(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry(Action{Name: "ghost", Kind: KindLocal, FunctionKey: "missing"})
	out := r.Dispatch(context.Background(), Call{Name: "ghost"})
	if !strings.Contains(out, "not installed") {
		t.Fatalf("output = %q", out)
	}
}

func TestDispatch_Remote(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			t.Errorf("method = %s, want POST default", req.Method)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := req.Header.Get("X-Custom"); got != "yes" {
			t.Errorf("X-Custom = %q", got)
		}
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), `"order_id":"42"`) {
			t.Errorf("body = %s", body)
		}
		_, _ = w.Write([]byte(`{"status":"shipped"}`))
	}))
	defer srv.Close()

	r := newSeededRegistry(Action{
		Name:     "order_status",
		Kind:     KindRemote,
		URL:      srv.URL,
		Headers:  map[string]string{"X-Custom": "yes"},
		AuthType: "bearer",
		AuthKey:  "secret-key",
	})

	out := r.Dispatch(context.Background(), Call{Name: "order_status", Arguments: `{"order_id":"42"}`})
	if out != `{"status":"shipped"}` {
		t.Fatalf("output = %q", out)
	}
}

func TestDispatch_RemoteNon2xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	r := newSeededRegistry(Action{Name: "flaky", Kind: KindRemote, URL: srv.URL})
	out := r.Dispatch(context.Background(), Call{Name: "flaky"})
	if !strings.Contains(out, "status 502") || !strings.Contains(out, "upstream down") {
		t.Fatalf("output = %q", out)
	}
}

func TestDispatch_RemoteRawAuthHeader(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if got := req.Header.Get("Authorization"); got != "Token abc" {
			t.Errorf("Authorization = %q, want raw value", got)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	r := newSeededRegistry(Action{Name: "raw", Kind: KindRemote, URL: srv.URL, AuthType: "raw", AuthKey: "Token abc"})
	if out := r.Dispatch(context.Background(), Call{Name: "raw"}); out != "ok" {
		t.Fatalf("output = %q", out)
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry(Action{Name: "taken", Kind: KindLocal, FunctionKey: "fn"})

	tests := []struct {
		name   string
		action Action
	}{
		{name: "empty name", action: Action{Kind: KindLocal, FunctionKey: "fn"}},
		{name: "bad kind", action: Action{Name: "x", Kind: "weird"}},
		{name: "local without function key", action: Action{Name: "x", Kind: KindLocal}},
		{name: "remote without url", action: Action{Name: "x", Kind: KindRemote}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(context.Background(), tt.action); err == nil {
				t.Fatalf("Register(%+v) succeeded, want error", tt.action)
			}
		})
	}

	err := r.Register(context.Background(), Action{Name: "taken", Kind: KindLocal, FunctionKey: "fn"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry()
	if err := r.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestList_Sorted(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry(
		Action{Name: "zeta", Kind: KindLocal, FunctionKey: "z"},
		Action{Name: "alpha", Kind: KindLocal, FunctionKey: "a"},
	)
	list := r.List()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("list = %+v", list)
	}
}

func TestOpenAITools(t *testing.T) {
	t.Parallel()
	r := newSeededRegistry(Action{
		Name:        "enable_live_chat",
		Description: "Switch the conversation to a human agent",
		Kind:        KindLocal,
		FunctionKey: "enable_live_chat",
		Parameters: []Param{
			{Name: "phone_number", Type: "string", Description: "Customer phone number", Required: true},
			{Name: "reason", Type: "string", Description: "Why the handoff is requested"},
		},
	})

	tools := r.OpenAITools()
	if len(tools) != 1 {
		t.Fatalf("tools = %+v", tools)
	}
	tool := tools[0]
	if tool.Type != "function" || tool.Function == nil || tool.Function.Name != "enable_live_chat" {
		t.Fatalf("tool = %+v", tool)
	}
	params := tool.Function.Parameters
	if params["type"] != "object" {
		t.Fatalf("parameters type = %v", params["type"])
	}
	props, ok := params["properties"].(map[string]any)
	if !ok || len(props) != 2 {
		t.Fatalf("properties = %v", params["properties"])
	}
	required, ok := params["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "phone_number" {
		t.Fatalf("required = %v", params["required"])
	}
}

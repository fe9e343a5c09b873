package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/chatrelay/internal/assistant"
	dbpkg "github.com/chatrelay/chatrelay/internal/db"
)

const remoteCallTimeout = 30 * time.Second

// Registry is the catalog of callable tools. The catalog is read-mostly
// after startup; registration takes the write lock, dispatch the read lock.
type Registry struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	httpClient *http.Client

	mu      sync.RWMutex
	actions map[string]Action
	funcs   map[string]Func
}

// NewRegistry creates an empty registry. Call LoadCatalog before serving.
func NewRegistry(log *slog.Logger, pool *pgxpool.Pool) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		pool:       pool,
		logger:     log.With(slog.String("service", "actions")),
		httpClient: &http.Client{Timeout: remoteCallTimeout},
		actions:    make(map[string]Action),
		funcs:      make(map[string]Func),
	}
}

// RegisterFunc installs an in-process function under a key. The table is
// populated at startup, before any dispatch.
func (r *Registry) RegisterFunc(key string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key] = fn
}

// LoadCatalog reads the durable catalog from the database.
func (r *Registry) LoadCatalog(ctx context.Context) error {
	const query = `
		SELECT name, description, parameters, kind, function_key, url, method, headers, auth_type, auth_key
		FROM actions`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("load action catalog: %w", err)
	}
	defer rows.Close()

	loaded := make(map[string]Action)
	for rows.Next() {
		var (
			a                                  Action
			params, headers                    []byte
			functionKey, url, method, authType pgtype.Text
			authKey                            pgtype.Text
		)
		if err := rows.Scan(&a.Name, &a.Description, &params, &a.Kind, &functionKey, &url, &method, &headers, &authType, &authKey); err != nil {
			return fmt.Errorf("scan action row: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &a.Parameters); err != nil {
				r.logger.Warn("parse action parameters failed", slog.String("action", a.Name), slog.Any("error", err))
			}
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &a.Headers); err != nil {
				r.logger.Warn("parse action headers failed", slog.String("action", a.Name), slog.Any("error", err))
			}
		}
		a.FunctionKey = dbpkg.TextToString(functionKey)
		a.URL = dbpkg.TextToString(url)
		a.Method = dbpkg.TextToString(method)
		a.AuthType = dbpkg.TextToString(authType)
		a.AuthKey = dbpkg.TextToString(authKey)
		loaded[a.Name] = a
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read action catalog: %w", err)
	}

	r.mu.Lock()
	r.actions = loaded
	r.mu.Unlock()
	r.logger.Info("action catalog loaded", slog.Int("count", len(loaded)))
	return nil
}

// Register persists and installs a new action. Existing names are rejected,
// never overwritten.
func (r *Registry) Register(ctx context.Context, a Action) error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return fmt.Errorf("action name is required")
	}
	if a.Kind != KindLocal && a.Kind != KindRemote {
		return fmt.Errorf("invalid action kind %q", a.Kind)
	}
	if a.Kind == KindLocal && strings.TrimSpace(a.FunctionKey) == "" {
		return fmt.Errorf("local action requires a function key")
	}
	if a.Kind == KindRemote && strings.TrimSpace(a.URL) == "" {
		return fmt.Errorf("remote action requires a url")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[a.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, a.Name)
	}

	params, err := json.Marshal(paramsOrEmpty(a.Parameters))
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	headers, err := json.Marshal(headersOrEmpty(a.Headers))
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	const query = `
		INSERT INTO actions (name, description, parameters, kind, function_key, url, method, headers, auth_type, auth_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.pool.Exec(ctx, query,
		a.Name, a.Description, params, a.Kind,
		dbpkg.ToPgText(a.FunctionKey), dbpkg.ToPgText(a.URL), dbpkg.ToPgText(a.Method),
		headers, dbpkg.ToPgText(a.AuthType), dbpkg.ToPgText(a.AuthKey),
	)
	if err != nil {
		return fmt.Errorf("persist action %s: %w", a.Name, err)
	}
	r.actions[a.Name] = a
	return nil
}

// Delete removes an action from the catalog.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM actions WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete action %s: %w", name, err)
	}
	delete(r.actions, name)
	return nil
}

// Get returns the named action.
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// List returns all registered actions sorted by name.
func (r *Registry) List() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch executes one tool call and returns its textual output. Every
// failure mode — unknown name, malformed arguments, local panic-free error,
// remote non-2xx — is captured as an error string so a bad call never aborts
// its siblings or the run.
func (r *Registry) Dispatch(ctx context.Context, call Call) string {
	a, ok := r.Get(call.Name)
	if !ok {
		return fmt.Sprintf("error: action %q is not registered", call.Name)
	}

	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return fmt.Sprintf("error: invalid arguments for %q: %v", call.Name, err)
		}
	}

	switch a.Kind {
	case KindLocal:
		return r.dispatchLocal(ctx, a, args)
	case KindRemote:
		return r.dispatchRemote(ctx, a, args)
	default:
		return fmt.Sprintf("error: action %q has unknown kind %q", a.Name, a.Kind)
	}
}

func (r *Registry) dispatchLocal(ctx context.Context, a Action, args map[string]any) string {
	r.mu.RLock()
	fn, ok := r.funcs[a.FunctionKey]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("error: function %q for action %q is not installed", a.FunctionKey, a.Name)
	}
	result, err := fn(ctx, args)
	if err != nil {
		r.logger.Warn("local action failed", slog.String("action", a.Name), slog.Any("error", err))
		return fmt.Sprintf("error: %v", err)
	}
	return encodeResult(result)
}

func (r *Registry) dispatchRemote(ctx context.Context, a Action, args map[string]any) string {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("error: marshal arguments: %v", err)
	}
	method := strings.ToUpper(strings.TrimSpace(a.Method))
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, a.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("error: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	if a.AuthKey != "" {
		if strings.EqualFold(a.AuthType, "bearer") {
			req.Header.Set("Authorization", "Bearer "+a.AuthKey)
		} else {
			req.Header.Set("Authorization", a.AuthKey)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("remote action failed", slog.String("action", a.Name), slog.Any("error", err))
		return fmt.Sprintf("error: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("error: read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn("remote action non-2xx",
			slog.String("action", a.Name),
			slog.Int("status", resp.StatusCode))
		return fmt.Sprintf("error: %s returned status %d: %s", a.Name, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return string(respBody)
}

// OpenAITools converts the catalog into Assistants function-tool definitions.
func (r *Registry) OpenAITools() []assistant.Tool {
	actions := r.List()
	tools := make([]assistant.Tool, 0, len(actions))
	for _, a := range actions {
		properties := map[string]any{}
		required := []string{}
		for _, p := range a.Parameters {
			properties[p.Name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		tools = append(tools, assistant.Tool{
			Type: "function",
			Function: &assistant.ToolFunction{
				Name:        a.Name,
				Description: a.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return tools
}

func encodeResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("error: encode result: %v", err)
	}
	return string(data)
}

func paramsOrEmpty(p []Param) []Param {
	if p == nil {
		return []Param{}
	}
	return p
}

func headersOrEmpty(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

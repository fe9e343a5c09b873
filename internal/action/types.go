// Package action holds the catalog of callable tools and dispatches tool
// invocations to in-process functions or remote HTTP endpoints.
package action

import (
	"context"
	"errors"
)

// Execution kind constants.
const (
	KindLocal  = "local"
	KindRemote = "remote"
)

// ErrDuplicateName is returned when registering an action whose name exists.
var ErrDuplicateName = errors.New("action name already registered")

// ErrNotFound is returned when looking up an unknown action.
var ErrNotFound = errors.New("action not found")

// Param describes one parameter of an action's schema.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Action is a callable tool. Local actions resolve FunctionKey against the
// statically built function table; remote actions call URL.
type Action struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  []Param           `json:"parameters"`
	Kind        string            `json:"kind"`
	FunctionKey string            `json:"function_key,omitempty"`
	URL         string            `json:"url,omitempty"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	AuthType    string            `json:"auth_type,omitempty"`
	AuthKey     string            `json:"auth_key,omitempty"`
}

// Call is a provider-issued tool invocation.
type Call struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded argument object
}

// Func is an in-process tool implementation.
type Func func(ctx context.Context, args map[string]any) (any, error)

package domain

import (
	"context"
	"fmt"
)

// Parameter type names accepted in tool descriptors.
const (
	ParamString  = "string"
	ParamInteger = "integer"
	ParamNumber  = "number"
	ParamBoolean = "boolean"
	ParamArray   = "array"
	ParamObject  = "object"
)

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Type        string `json:"type"`
	Enum        []any  `json:"enum,omitempty"`
	Description string `json:"description"`
}

// ToolParameters is the JSON-schema-like parameter block of a ToolSpec.
type ToolParameters struct {
	Type       string               `json:"type"`
	Properties map[string]ParamSpec `json:"properties"`
	Required   []string             `json:"required"`
}

// ToolSpec is what the auxiliary model is shown about a tool.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolSelection is the auxiliary model's choice of tool and arguments.
type ToolSelection struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// ToolArgs is a validated argument record handed to a tool handler.
// Defaults have already been applied.
type ToolArgs map[string]any

// String returns the named argument as a string.
func (a ToolArgs) String(name string) string {
	switch v := a[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the named argument as an int. JSON numbers decode as float64.
func (a ToolArgs) Int(name string) int {
	switch v := a[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

// Bool returns the named argument as a bool.
func (a ToolArgs) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// ToolHandler is the typed invocation closure behind a tool.
type ToolHandler func(ctx context.Context, args ToolArgs) (string, error)

// Tool is a named, described capability the filter can invoke.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, args ToolArgs) (string, error)
}

// ToolExecutor abstracts tool discovery and invocation.
type ToolExecutor interface {
	// Specs returns the descriptors of all tools in registration order.
	Specs() []ToolSpec
	// Invoke resolves sel.Name, validates its parameters and runs the tool.
	Invoke(ctx context.Context, sel ToolSelection) (string, error)
}

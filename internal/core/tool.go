package core

import (
	"context"
)

// ParamType is the declared JSON type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// ParamSpec declares one tool parameter.
type ParamSpec struct {
	Name        string      `json:"name"`
	Type        ParamType   `json:"type"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

// ToolOutput is what a tool returns on success. The registry wraps it into a
// ToolResult with timing metadata.
type ToolOutput struct {
	Data   interface{}
	Cost   float64
	Source string
}

// Tool is a named research capability the registry can dispatch to.
type Tool interface {
	Name() string
	Description() string
	Params() []ParamSpec
	Execute(ctx context.Context, params map[string]interface{}) (*ToolOutput, error)
}

package docsvc

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/cratedocs/cratedocs/mcp"
)

// ToolHandler executes one tool invocation. Arguments arrive raw and are
// decoded by the typed wrapper installed by NewTool.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs a tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// NewTool builds a StaticTool from a typed argument struct A. The input
// schema is reflected from A's struct tags; at call time the raw arguments
// are decoded strictly, rejecting unknown fields.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](),
	}
	handler := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			dec := json.NewDecoder(bytes.NewReader(req.Arguments))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return nil, &InvalidArgumentsError{Field: "arguments", Reason: err.Error()}
			}
		}
		return fn(ctx, a)
	}
	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectInputSchema reflects a Go struct into the protocol's simplified
// object schema.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // struct fields at the root
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	required = append(required, s.Required...)

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{Type: s.Type, Description: s.Description}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// Registry is the static catalog of tools. It is built once at process
// start and never mutated afterward; List order is the registration order.
type Registry struct {
	tools    []mcp.Tool
	handlers map[string]ToolHandler
}

// NewRegistry builds a Registry from the given tools. Duplicate names keep
// the last registration, matching map semantics callers would expect.
func NewRegistry(defs ...StaticTool) *Registry {
	r := &Registry{handlers: make(map[string]ToolHandler, len(defs))}
	for _, d := range defs {
		r.tools = append(r.tools, d.Descriptor)
		r.handlers[d.Descriptor.Name] = d.Handler
	}
	return r
}

// List returns the tool descriptors in stable registration order.
func (r *Registry) List() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Resolve returns the handler for name.
func (r *Registry) Resolve(name string) (ToolHandler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Call validates and dispatches one invocation. Unknown names fail with
// ToolNotFoundError before any handler runs.
func (r *Registry) Call(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h, ok := r.Resolve(req.Name)
	if !ok {
		return nil, &ToolNotFoundError{Name: req.Name}
	}
	return h(ctx, req)
}

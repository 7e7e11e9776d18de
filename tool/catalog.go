package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

var (
	// ErrUnknownTool is returned when a call names a tool outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned when two tools share a name.
	ErrDuplicateTool = errors.New("duplicate tool")
)

// Parameterized is implemented by tools that take structured JSON
// arguments. They receive the raw argument object; other tools receive the
// "input" string of the default schema.
type Parameterized interface {
	tools.Tool
	Parameters() map[string]any
}

// Catalog is a fixed, name-keyed set of tools that a model may call.
type Catalog struct {
	tools map[string]tools.Tool
	order []string
}

// NewCatalog builds a catalog. Empty and duplicate names are rejected here
// so a misconfigured catalog fails at startup.
func NewCatalog(ts ...tools.Tool) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]tools.Tool, len(ts))}
	for _, t := range ts {
		if t == nil {
			return nil, errors.New("nil tool")
		}
		name := t.Name()
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("tool %T has an empty name", t)
		}
		if _, dup := c.tools[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		c.tools[name] = t
		c.order = append(c.order, name)
	}
	return c, nil
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Names returns the tool names in registration order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// Get looks up a tool by exact name.
func (c *Catalog) Get(name string) (tools.Tool, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.tools[name]
	return t, ok
}

// Definitions returns the function definitions to bind to a model.
func (c *Catalog) Definitions() []llms.Tool {
	if c.Len() == 0 {
		return nil
	}
	defs := make([]llms.Tool, 0, len(c.order))
	for _, name := range c.order {
		t := c.tools[name]
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  parameters(t),
			},
		})
	}
	return defs
}

func parameters(t tools.Tool) map[string]any {
	if p, ok := t.(Parameterized); ok {
		return p.Parameters()
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"type":        "string",
				"description": "The input query for the tool",
			},
		},
		"required":             []string{"input"},
		"additionalProperties": false,
	}
}

// Invoke runs the named tool with the model-supplied JSON arguments.
func (c *Catalog) Invoke(ctx context.Context, name, arguments string) (string, error) {
	t, ok := c.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Call(ctx, inputFor(t, arguments))
}

// Dispatch is Invoke that never fails: errors, including unknown tool
// names, come back as an error text for the model to read.
func (c *Catalog) Dispatch(ctx context.Context, name, arguments string) string {
	out, err := c.Invoke(ctx, name, arguments)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return out
}

func inputFor(t tools.Tool, arguments string) string {
	if _, ok := t.(Parameterized); ok {
		return arguments
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return arguments
	}
	if v, ok := args["input"].(string); ok {
		return v
	}
	return arguments
}

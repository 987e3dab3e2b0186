// Package exec walks an ExecutionPlan's dependency levels, running every
// step within a level concurrently and every level in order, enriching
// each step's query from accumulated context as it goes.
package exec

import (
	"context"

	"github.com/qorc/queryorchestrator/routing"
)

// Tool is the abstract capability an Executor invokes. Run performs action
// against query with params and returns a result string or an error.
type Tool interface {
	Run(ctx context.Context, action, query string, params map[string]interface{}) (string, error)
}

// RejectingTool is implemented by tools that can signal "this query is not
// mine" distinctly from a generic failure, so the executor can retry
// against another domain's canonical tool instead of burning a retry.
type RejectingTool interface {
	Tool
	Rejected(err error) bool
}

// ParsingTool is implemented by tools that can refine a step's action from
// their own parse of the query, the same Parser capability ToolSelector
// consults during routing.
type ParsingTool interface {
	Tool
	routing.Parser
}

// Registry resolves a tool name to its Tool implementation.
type Registry interface {
	Lookup(name string) (Tool, bool)
}

// MapRegistry is the simplest Registry: a plain name->Tool map.
type MapRegistry map[string]Tool

func (r MapRegistry) Lookup(name string) (Tool, bool) {
	t, ok := r[name]
	return t, ok
}

package plan

import (
	"github.com/dominikbraun/graph"

	"github.com/qorc/queryorchestrator/core"
)

// WorkflowDAG is a directed acyclic graph of execution steps, keyed by
// step id. It wraps dominikbraun/graph rather than hand-rolling a DFS
// cycle detector: PreventCycles rejects a cycle-forming edge the moment
// it is added. GetExecutionLevels groups steps from the graph's
// predecessor map; the order of ids within a level is not defined.
type WorkflowDAG struct {
	g     graph.Graph[string, *ExecutionStep]
	order []string
}

func stepHash(s *ExecutionStep) string { return s.ID }

// NewWorkflowDAG builds an empty DAG.
func NewWorkflowDAG() *WorkflowDAG {
	return &WorkflowDAG{
		g: graph.New(stepHash, graph.Directed(), graph.PreventCycles()),
	}
}

// AddStep inserts a step and an edge from each of its dependencies to it.
// Returns ErrCycleDetected if the edge would close a cycle.
func (w *WorkflowDAG) AddStep(step *ExecutionStep) error {
	if err := w.g.AddVertex(step); err != nil && err != graph.ErrVertexAlreadyExists {
		return core.NewFrameworkError("WorkflowDAG.AddStep", "add_vertex", step.ID, err)
	}
	w.order = append(w.order, step.ID)

	for _, dep := range step.Dependencies {
		if err := w.g.AddEdge(dep, step.ID); err != nil {
			if err == graph.ErrEdgeCreatesCycle {
				return core.NewFrameworkError("WorkflowDAG.AddStep", "cycle", step.ID, core.ErrCycleDetected)
			}
			return core.NewFrameworkError("WorkflowDAG.AddStep", "add_edge", step.ID, err)
		}
	}
	return nil
}

// Step returns the step registered under id.
func (w *WorkflowDAG) Step(id string) (*ExecutionStep, error) {
	step, err := w.g.Vertex(id)
	if err != nil {
		return nil, core.NewFrameworkError("WorkflowDAG.Step", "lookup", id, err)
	}
	return step, nil
}

// Len reports the number of steps in the DAG.
func (w *WorkflowDAG) Len() int { return len(w.order) }

// GetExecutionLevels groups steps into levels: level 0 has no dependencies,
// level N contains every step whose dependencies are all in levels < N.
// Steps within a level can run in parallel; levels run in order.
func (w *WorkflowDAG) GetExecutionLevels() ([][]string, error) {
	predecessors, err := w.g.PredecessorMap()
	if err != nil {
		return nil, core.NewFrameworkError("WorkflowDAG.GetExecutionLevels", "predecessor_map", "", err)
	}

	levelOf := make(map[string]int, len(predecessors))
	remaining := make(map[string]struct{}, len(predecessors))
	for id := range predecessors {
		remaining[id] = struct{}{}
	}

	level := 0
	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			allResolved := true
			for dep := range predecessors[id] {
				if _, stillRemaining := remaining[dep]; stillRemaining {
					allResolved = false
					break
				}
			}
			if allResolved {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, core.NewFrameworkError("WorkflowDAG.GetExecutionLevels", "cycle", "", core.ErrCycleDetected)
		}
		for _, id := range ready {
			levelOf[id] = level
			delete(remaining, id)
		}
		level++
	}

	levels := make([][]string, level)
	for id, lvl := range levelOf {
		levels[lvl] = append(levels[lvl], id)
	}
	return levels, nil
}

// DAGStatistics summarizes shape for logging and analytics.
type DAGStatistics struct {
	TotalSteps  int
	LevelCount  int
	MaxBreadth  int
	HasCycle    bool
}

// Statistics computes DAGStatistics; HasCycle is always false for a DAG
// that was built entirely through AddStep, since PreventCycles refuses
// cycle-forming edges at insertion time.
func (w *WorkflowDAG) Statistics() (DAGStatistics, error) {
	levels, err := w.GetExecutionLevels()
	if err != nil {
		if fe, ok := err.(*core.FrameworkError); ok && fe.Kind == "cycle" {
			return DAGStatistics{TotalSteps: w.Len(), HasCycle: true}, nil
		}
		return DAGStatistics{}, err
	}
	stats := DAGStatistics{TotalSteps: w.Len(), LevelCount: len(levels)}
	for _, lvl := range levels {
		if len(lvl) > stats.MaxBreadth {
			stats.MaxBreadth = len(lvl)
		}
	}
	return stats, nil
}

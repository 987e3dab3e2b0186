package orchestrator

import (
	"time"

	"github.com/qorc/queryorchestrator/domain"
)

// EventType names one point in a query's lifecycle a caller (typically a
// streaming UI) may want to observe.
type EventType string

const (
	EventReasoningStart   EventType = "reasoning_start"
	EventToolCallStart    EventType = "tool_call_start"
	EventToolComplete     EventType = "tool_complete"
	EventActionExecuting  EventType = "action_executing"
	EventActionComplete   EventType = "action_complete"
	EventError            EventType = "error"
	EventWorkflowComplete EventType = "workflow_complete"
)

// Event is one lifecycle notification emitted while Handle runs. Sink
// implementations must not block for long: Handle emits synchronously on
// its own goroutine (or the per-step goroutines exec.Executor spawns), so a
// slow sink directly slows down query execution.
type Event struct {
	Type      EventType
	Timestamp time.Time
	StepID    string
	Tool      string
	Domain    domain.Domain
	Message   string
	Data      map[string]interface{}
}

// EventSink receives Events. A nil EventSink disables the stream entirely.
type EventSink func(Event)

func (o *Orchestrator) emit(evt Event) {
	if o.Events == nil {
		return
	}
	evt.Timestamp = time.Now()
	o.Events(evt)
}

package main

import (
	"context"
	"fmt"
)

// demoTool is a minimal exec.Tool standing in for a real domain integration
// (an email client, a calendar API, a task tracker, a Notion workspace). It
// just echoes what it was asked to do, which is enough to exercise routing,
// planning, and execution end to end.
type demoTool struct {
	domain string
}

func (t demoTool) Run(ctx context.Context, action, query string, params map[string]interface{}) (string, error) {
	if action == "" {
		action = "handle"
	}
	return fmt.Sprintf("[%s] %s: %q", t.domain, action, query), nil
}

// Command orchestrator-demo wires every orchestration collaborator together
// against a set of stand-in domain tools and routes a handful of sample
// queries through it, printing the lifecycle events and final result for
// each.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/qorc/queryorchestrator/analytics"
	"github.com/qorc/queryorchestrator/core"
	"github.com/qorc/queryorchestrator/exec"
	"github.com/qorc/queryorchestrator/orchestrator"
	"github.com/qorc/queryorchestrator/ratelimit"
	"github.com/qorc/queryorchestrator/routing"
	"github.com/qorc/queryorchestrator/telemetry"
)

func main() {
	logger := core.NewSimpleLogger()

	cfg, err := core.NewConfig(core.WithRateLimits(60, 1000))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	registry := exec.MapRegistry{
		"email":     demoTool{domain: "email"},
		"tasks":     demoTool{domain: "tasks"},
		"calendar":  demoTool{domain: "calendar"},
		"notion":    demoTool{domain: "notion"},
		"summarize": demoTool{domain: "general"},
	}

	intentMap := routing.IntentToolMap{
		"email":    "email",
		"tasks":    "tasks",
		"calendar": "calendar",
		"notion":   "notion",
	}

	store, err := analytics.NewStore(cfg.Analytics.DSN, logger)
	if err != nil {
		log.Fatalf("analytics store: %v", err)
	}
	defer store.Close()

	limiter := ratelimit.NewLimiter(ratelimit.NewLocalStore(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour))

	tel, err := telemetry.NewProvider("orchestrator-demo")
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer tel.Shutdown(context.Background())

	o := orchestrator.New(registry, intentMap, store, limiter, nil, logger, tel)
	o.Events = func(e orchestrator.Event) {
		fmt.Printf("  event: %-20s %s\n", e.Type, e.Message)
	}

	queries := []string{
		"check my email for anything from finance",
		"show my tasks and meetings for today",
		"find the Q3 roadmap page in notion",
	}
	availableTools := []string{"email", "tasks", "calendar", "notion", "summarize"}

	for _, q := range queries {
		fmt.Printf("query: %s\n", q)
		result, err := o.Handle(context.Background(), "demo-client", q, availableTools)
		if err != nil {
			fmt.Printf("  error: %v\n", err)
			continue
		}
		fmt.Printf("  result: %s (cross_domain=%v, steps=%d/%d)\n\n",
			result.FinalResult, result.CrossDomain, result.StepsExecuted, result.TotalSteps)
	}
}

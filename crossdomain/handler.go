// Package crossdomain detects and executes queries that span more than one
// domain: "show my tasks and meetings for today" decomposes into one
// sub-query per domain, wires dependencies between them where the original
// query implies an ordering, and fans the result out through the same
// WorkflowDAG/Executor machinery a single-domain plan uses.
package crossdomain

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/qorc/queryorchestrator/core"
	"github.com/qorc/queryorchestrator/domain"
	"github.com/qorc/queryorchestrator/exec"
	"github.com/qorc/queryorchestrator/plan"
)

// dependencyPriority orders domains so that, whatever order the detected
// domains arrived in, a sub-query that another sub-query might depend on
// (per detectDependencies) is always built and added to the DAG first.
// Calendar precedes Email precedes Task for every dependency rule below.
var dependencyPriority = map[domain.Domain]int{
	domain.Calendar: 0,
	domain.Email:    1,
	domain.Task:     2,
	domain.Notion:   3,
}

func sortedByDependencyPriority(domains []domain.Domain) []domain.Domain {
	sorted := append([]domain.Domain(nil), domains...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return dependencyPriority[sorted[i]] < dependencyPriority[sorted[j]]
	})
	return sorted
}

// ExecutionMode names how a cross-domain query's sub-queries are run.
type ExecutionMode string

const (
	ModeParallel   ExecutionMode = "parallel"
	ModeSequential ExecutionMode = "sequential"
	ModeDependent  ExecutionMode = "dependent"
)

// Synthesizer combines per-domain results into one user-facing response.
// A nil Synthesizer on Handler falls back to domain-labeled concatenation.
type Synthesizer interface {
	Combine(ctx context.Context, query string, results map[domain.Domain]string) (string, error)
}

// AggregateRecorder records the outcome of a whole cross-domain query, as
// distinct from exec.AnalyticsRecorder which the Executor already uses to
// record each sub-query individually.
type AggregateRecorder interface {
	RecordCrossDomainQuery(ctx context.Context, query string, domains []domain.Domain, confidence float64, mode ExecutionMode, successful, total int)
}

// Result is Handler.Handle's output.
type Result struct {
	IsCrossDomain   bool
	Domains         []domain.Domain
	Confidence      float64
	ExecutionMode   ExecutionMode
	Steps           []*plan.ExecutionStep
	FinalResult     string
	SuccessfulCount int
	TotalCount      int
}

// Handler detects and executes cross-domain queries.
type Handler struct {
	Catalog     *domain.Catalog
	Detector    *domain.Detector
	Executor    *exec.Executor
	Synthesizer Synthesizer
	Analytics   AggregateRecorder
	Logger      core.Logger

	// EnableParallelExecution governs the fallback mode chosen when no
	// dependency is detected between sub-queries.
	EnableParallelExecution bool
}

// NewHandler builds a Handler with parallel execution enabled by default.
func NewHandler(catalog *domain.Catalog, detector *domain.Detector, executor *exec.Executor, logger core.Logger) *Handler {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Handler{
		Catalog:                 catalog,
		Detector:                detector,
		Executor:                executor,
		Logger:                  logger,
		EnableParallelExecution: true,
	}
}

// Detect reports whether query spans multiple domains, and if so, which.
func (h *Handler) Detect(query string) (bool, []domain.Domain, float64) {
	lower := strings.ToLower(query)

	hasTask := containsAny(lower, taskKeywords)
	hasCalendar := containsAny(lower, calendarKeywords)
	hasEmail := containsAny(lower, emailKeywords)

	isEmailOnly := matchesAny(lower, emailOnlyPatterns)
	if isEmailOnly || (hasEmail && !hasCalendar && !hasTask) {
		return false, nil, 0
	}
	if matchesAny(lower, calendarOnlyPatterns) && !hasTask {
		return false, nil, 0
	}

	for _, p := range explicitPatterns {
		if p.re.MatchString(lower) {
			return true, p.domains, PatternMatchConfidence
		}
	}

	if h.Detector != nil {
		if d, _, evidence := h.Detector.Detect(query); d == domain.Mixed && len(evidence.Domains) >= 2 {
			return true, evidence.Domains, MixedDomainConfidence
		}
	}

	found := map[domain.Domain]bool{}
	if hasTask {
		found[domain.Task] = true
	}
	if hasCalendar {
		found[domain.Calendar] = true
	}
	if hasEmail {
		found[domain.Email] = true
	}
	if containsAny(lower, notionKeywords) {
		found[domain.Notion] = true
	}
	if len(found) >= 2 {
		domains := make([]domain.Domain, 0, len(found))
		for d := range found {
			domains = append(domains, d)
		}
		return true, domains, KeywordDetectionConfidence
	}

	return false, nil, 0
}

// Handle is the main entry point: detect, decompose, execute, synthesize.
func (h *Handler) Handle(ctx context.Context, query string, available []string) (*Result, error) {
	isCross, domains, confidence := h.Detect(query)
	if !isCross {
		return &Result{IsCrossDomain: false}, nil
	}

	steps := h.decompose(query, domains, available)
	if len(steps) == 0 {
		return nil, core.NewFrameworkError("Handler.Handle", "no_decomposable_domain", "", core.ErrNoExecutableSteps)
	}

	mode := h.determineExecutionMode(steps)
	if mode == ModeSequential {
		chainSequentially(steps)
	}

	dag := plan.NewWorkflowDAG()
	for _, s := range steps {
		if err := dag.AddStep(s); err != nil {
			return nil, err
		}
	}

	execPlan := &plan.ExecutionPlan{Steps: steps, DAG: dag}
	if _, err := h.Executor.Execute(ctx, execPlan); err != nil {
		return nil, err
	}

	results := map[domain.Domain]string{}
	failures := map[domain.Domain]string{}
	successful := 0
	for _, s := range steps {
		if s.Status == plan.StatusCompleted {
			results[s.Domain] = s.Result
			successful++
		} else {
			failures[s.Domain] = s.Error
		}
	}

	finalResult, err := h.synthesize(ctx, query, results, failures)
	if err != nil {
		h.Logger.Warn("synthesizer failed, using fallback concatenation", map[string]interface{}{"error": err.Error()})
		finalResult = concatenateResults(results, failures)
	}

	if h.Analytics != nil {
		h.Analytics.RecordCrossDomainQuery(ctx, query, domains, confidence, mode, successful, len(steps))
	}

	return &Result{
		IsCrossDomain:   true,
		Domains:         domains,
		Confidence:      confidence,
		ExecutionMode:   mode,
		Steps:           steps,
		FinalResult:     finalResult,
		SuccessfulCount: successful,
		TotalCount:      len(steps),
	}, nil
}

func (h *Handler) synthesize(ctx context.Context, query string, results, failures map[domain.Domain]string) (string, error) {
	if len(results) == 0 {
		return "I couldn't retrieve any information. Please try again.", nil
	}
	if h.Synthesizer != nil {
		combined, err := h.Synthesizer.Combine(ctx, query, results)
		if err == nil {
			return appendFailureNote(combined, failures), nil
		}
		return "", err
	}
	return concatenateResults(results, failures), nil
}

func concatenateResults(results, failures map[domain.Domain]string) string {
	var b strings.Builder
	b.WriteString("Here's what I found:\n")
	for d, result := range results {
		fmt.Fprintf(&b, "\n**%s:**\n%s\n", capitalize(string(d)), result)
	}
	return appendFailureNote(b.String(), failures)
}

func appendFailureNote(response string, failures map[domain.Domain]string) string {
	if len(failures) == 0 {
		return response
	}
	var b strings.Builder
	b.WriteString(response)
	b.WriteString("\n\n**Note:**")
	for d, errMsg := range failures {
		fmt.Fprintf(&b, "\n- Could not retrieve %s information: %s", d, errMsg)
	}
	return b.String()
}

// decompose builds one ExecutionStep per domain with an available tool,
// then wires dependencies implied by the original query's phrasing.
func (h *Handler) decompose(query string, domains []domain.Domain, available []string) []*plan.ExecutionStep {
	timeContext := extractTimeContext(query)
	ordered := sortedByDependencyPriority(domains)
	steps := make([]*plan.ExecutionStep, 0, len(ordered))

	for i, d := range ordered {
		tool, ok := h.mapDomainToTool(d, available)
		if !ok {
			h.Logger.Warn("no available tool for cross-domain sub-query, skipping", map[string]interface{}{"domain": string(d)})
			continue
		}
		subQuery := generateSubQuery(query, d, timeContext)
		action := determineAction(query, d)
		id := fmt.Sprintf("subquery_%d_%s", i+1, d)
		steps = append(steps, plan.NewExecutionStep(id, tool, action, subQuery, d, nil, plan.ContextRequirements{}))
	}

	detectDependencies(steps, query)
	return steps
}

func (h *Handler) mapDomainToTool(d domain.Domain, available []string) (string, bool) {
	canonical, ok := h.Catalog.CanonicalToolForDomain(d)
	if !ok {
		return "", false
	}
	for _, a := range available {
		if domain.NormalizeToolName(a) == canonical {
			return canonical, true
		}
	}
	return "", false
}

func (h *Handler) determineExecutionMode(steps []*plan.ExecutionStep) ExecutionMode {
	for _, s := range steps {
		if len(s.Dependencies) > 0 {
			return ModeDependent
		}
	}
	if h.EnableParallelExecution {
		return ModeParallel
	}
	return ModeSequential
}

// chainSequentially forces single-file execution by wiring each step as a
// dependency of the next, since the DAG's level-parallel executor otherwise
// has no notion of plain sequential (no-dependency) ordering.
func chainSequentially(steps []*plan.ExecutionStep) {
	for i := 1; i < len(steps); i++ {
		steps[i].Dependencies = append(steps[i].Dependencies, steps[i-1].ID)
		steps[i].DependencyType = plan.DependencyRequiresData
	}
}

func generateSubQuery(query string, d domain.Domain, timeContext string) string {
	lower := strings.ToLower(query)

	switch d {
	case domain.Task:
		switch {
		case strings.Contains(lower, "create") && strings.Contains(lower, "task"):
			return query
		case timeContext != "":
			return "Show my tasks for " + timeContext
		default:
			return "Show my tasks"
		}
	case domain.Calendar:
		switch {
		case strings.Contains(lower, "schedule"):
			return query
		case timeContext != "":
			return "Show my meetings for " + timeContext
		default:
			return "Show my meetings"
		}
	case domain.Email:
		switch {
		case strings.Contains(lower, "send") || strings.Contains(lower, "email"):
			return query
		case strings.Contains(lower, "unread"):
			return "Show unread emails"
		default:
			return "Search emails " + timeContext
		}
	case domain.Notion:
		switch {
		case strings.Contains(lower, "create") || strings.Contains(lower, "add") || strings.Contains(lower, "update"):
			return query
		case strings.Contains(lower, "search") || strings.Contains(lower, "find"):
			return "Search Notion " + timeContext
		default:
			return "Query Notion " + timeContext
		}
	}
	return query
}

func determineAction(query string, d domain.Domain) string {
	lower := strings.ToLower(query)
	if containsAny(lower, createKeywords) {
		switch d {
		case domain.Task, domain.Calendar:
			return "create"
		case domain.Email:
			return "send"
		case domain.Notion:
			return "create_page"
		}
	}
	if containsAny(lower, searchKeywords) {
		return "search"
	}
	return "list"
}

func extractTimeContext(query string) string {
	for _, p := range timeContextPatterns {
		if m := p.FindString(query); m != "" {
			return strings.ToLower(m)
		}
	}
	return ""
}

func detectDependencies(steps []*plan.ExecutionStep, query string) {
	lower := strings.ToLower(query)
	stepByDomain := func(d domain.Domain) *plan.ExecutionStep {
		for _, s := range steps {
			if s.Domain == d {
				return s
			}
		}
		return nil
	}

	if createFromEmailPattern.MatchString(lower) {
		if email := stepByDomain(domain.Email); email != nil {
			if task := stepByDomain(domain.Task); task != nil {
				addDependency(task, email.ID)
			}
		}
	}
	if emailAboutMeetingPattern.MatchString(lower) {
		if cal := stepByDomain(domain.Calendar); cal != nil {
			if mail := stepByDomain(domain.Email); mail != nil {
				addDependency(mail, cal.ID)
			}
		}
	}
	if prepareForMeetingPattern.MatchString(lower) {
		if cal := stepByDomain(domain.Calendar); cal != nil {
			for _, s := range steps {
				if s.ID != cal.ID && (s.Domain == domain.Task || s.Domain == domain.Email) {
					addDependency(s, cal.ID)
				}
			}
		}
	}
}

func addDependency(step *plan.ExecutionStep, dep string) {
	for _, d := range step.Dependencies {
		if d == dep {
			return
		}
	}
	step.Dependencies = append(step.Dependencies, dep)
	step.DependencyType = plan.DependencyRequiresData
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

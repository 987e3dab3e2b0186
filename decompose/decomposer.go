// Package decompose splits a user query into one or more ordered execution
// steps, using separator-based splitting with an optional LLM fallback for
// compound queries a closed separator set cannot cleanly split.
package decompose

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/qorc/queryorchestrator/core"
	"github.com/qorc/queryorchestrator/domain"
)

// Separators is the closed set of clause boundaries pattern-based
// decomposition splits on, applied in order.
var Separators = []string{"; ", ", then ", " and then ", ". "}

// ContextKeywords trigger needs_previous_results when present in a fragment.
var ContextKeywords = []string{"them", "those", "previous", "above", "mentioned", "from that"}

// StepDescriptor is one unit of work produced by Decompose.
type StepDescriptor struct {
	ID                  string                 `json:"id"`
	Query               string                 `json:"query"`
	Intent              string                 `json:"intent"`
	Action              string                 `json:"action"`
	Dependencies        []string               `json:"dependencies"`
	ContextRequirements map[string]bool        `json:"context_requirements"`
	Entities            Entities               `json:"entities"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// MemoryRecommendations carries prior-pattern hints from the analytics
// store, used to bias intent assignment toward what has worked before.
type MemoryRecommendations struct {
	Intent          string
	SimilarPatterns []string
}

// LLMClient is the minimal capability the decomposer needs from a language
// model: given a query, return raw (possibly markdown-fenced) JSON text
// describing the step array. A nil LLMClient simply disables the fallback.
type LLMClient interface {
	Decompose(ctx context.Context, query string) (string, error)
}

// Classifier assigns a primary domain to a query fragment. domain.Detector
// satisfies this directly via its Detect method's first return value.
type Classifier interface {
	Detect(query string) (domain.Domain, float64, domain.Evidence)
}

// Decomposer implements separator-based query decomposition with an LLM
// fallback for compound queries the separator set cannot split.
type Decomposer struct {
	Classifier Classifier
	LLMClient  LLMClient
	Logger     core.Logger
}

// NewDecomposer builds a Decomposer. classifier must not be nil; llmClient
// may be nil to disable the LLM fallback path entirely.
func NewDecomposer(classifier Classifier, llmClient LLMClient, logger core.Logger) *Decomposer {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Decomposer{Classifier: classifier, LLMClient: llmClient, Logger: logger}
}

// Decompose splits query into ordered steps. It never returns an error: a
// malformed LLM fallback or an empty pattern split both degrade to a single
// step rather than failing the caller.
func (d *Decomposer) Decompose(ctx context.Context, query string, mem *MemoryRecommendations) []StepDescriptor {
	entities := ExtractEntities(query)

	if !AnalyzeComplexity(query).ShouldOrchestrate {
		return []StepDescriptor{d.singleStep(query, entities)}
	}

	steps := d.patternDecompose(query, entities)

	if len(steps) <= 1 && d.LLMClient != nil {
		if llmSteps := d.llmDecompose(ctx, query); len(llmSteps) > len(steps) {
			steps = llmSteps
		}
	}

	if len(steps) == 0 {
		return []StepDescriptor{d.singleStep(query, entities)}
	}

	if mem != nil && mem.Intent != "" {
		d.Logger.Debug("applying memory intent bias", map[string]interface{}{
			"intent":          mem.Intent,
			"similar_pattern": len(mem.SimilarPatterns),
		})
	}

	return steps
}

func (d *Decomposer) singleStep(query string, entities Entities) StepDescriptor {
	return StepDescriptor{
		ID:                  "step_1",
		Query:               query,
		Intent:              d.identifyIntent(query),
		Action:              extractAction(query),
		Dependencies:        nil,
		ContextRequirements: map[string]bool{},
		Entities:            entities,
	}
}

// patternDecompose splits query on Separators, in order, the way a fold
// over successively finer delimiters would: each separator is applied to
// every fragment produced by the previous one.
func (d *Decomposer) patternDecompose(query string, entities Entities) []StepDescriptor {
	fragments := []string{query}
	for _, sep := range Separators {
		var next []string
		for _, frag := range fragments {
			if strings.Contains(frag, sep) {
				next = append(next, strings.Split(frag, sep)...)
			} else {
				next = append(next, frag)
			}
		}
		fragments = next
	}

	steps := make([]StepDescriptor, 0, len(fragments))
	idx := 0
	for _, frag := range fragments {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		idx++
		intent := d.identifyIntent(frag)
		steps = append(steps, StepDescriptor{
			ID:                  stepID(idx),
			Query:               frag,
			Intent:              intent,
			Action:              extractAction(frag),
			Dependencies:        precedingStepIDs(idx),
			ContextRequirements: contextRequirements(frag, intent),
			Entities:            entities,
		})
	}
	return steps
}

// llmDecompose asks the LLM client for a JSON step array and validates its
// shape before trusting it. Any failure returns nil, leaving the caller to
// keep whatever pattern-based result it already had.
func (d *Decomposer) llmDecompose(ctx context.Context, query string) []StepDescriptor {
	raw, err := d.LLMClient.Decompose(ctx, query)
	if err != nil {
		d.Logger.Warn("llm decomposition failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	jsonText := extractJSON(raw)

	var rawSteps []struct {
		ID           string   `json:"id"`
		Query        string   `json:"query"`
		Intent       string   `json:"intent"`
		Action       string   `json:"action"`
		Dependencies []string `json:"dependencies"`
	}
	if err := json.Unmarshal([]byte(jsonText), &rawSteps); err != nil {
		d.Logger.Warn("llm decomposition returned invalid JSON", map[string]interface{}{"error": err.Error()})
		return nil
	}

	steps := make([]StepDescriptor, 0, len(rawSteps))
	for _, rs := range rawSteps {
		if rs.ID == "" || rs.Query == "" {
			d.Logger.Warn("llm step missing required fields, discarding whole batch", nil)
			return nil
		}
		steps = append(steps, StepDescriptor{
			ID:                  rs.ID,
			Query:               rs.Query,
			Intent:              rs.Intent,
			Action:              rs.Action,
			Dependencies:        rs.Dependencies,
			ContextRequirements: contextRequirements(rs.Query, rs.Intent),
			Entities:            ExtractEntities(rs.Query),
		})
	}
	return steps
}

func (d *Decomposer) identifyIntent(query string) string {
	dom, _, _ := d.Classifier.Detect(query)
	if dom == domain.Task {
		return "tasks"
	}
	return string(dom)
}

func extractAction(query string) string {
	lower := strings.ToLower(query)
	for _, verb := range ActionVerbs {
		if strings.Contains(lower, verb) {
			return verb
		}
	}
	return DefaultAction
}

func contextRequirements(query, intent string) map[string]bool {
	requirements := map[string]bool{}
	lower := strings.ToLower(query)

	for _, kw := range ContextKeywords {
		if strings.Contains(lower, kw) {
			requirements["needs_previous_results"] = true
			break
		}
	}

	if intent == "tasks" || intent == "task" {
		if strings.Contains(lower, "meeting") || strings.Contains(lower, "email") {
			requirements["needs_source_data"] = true
		}
	}

	if intent == "calendar" && strings.Contains(lower, "email") {
		requirements["needs_participant_data"] = true
	}

	return requirements
}

func stepID(i int) string {
	return "step_" + strconv.Itoa(i)
}

func precedingStepIDs(i int) []string {
	if i <= 1 {
		return nil
	}
	ids := make([]string, 0, i-1)
	for j := 1; j < i; j++ {
		ids = append(ids, stepID(j))
	}
	return ids
}

func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(content[start:], "```"); end != -1 {
			return strings.TrimSpace(content[start : start+end])
		}
	}
	if idx := strings.Index(content, "```"); idx != -1 {
		start := idx + len("```")
		if end := strings.Index(content[start:], "```"); end != -1 {
			return strings.TrimSpace(content[start : start+end])
		}
	}
	return content
}

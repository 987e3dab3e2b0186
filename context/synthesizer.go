package context

import (
	"context"
	"strings"

	"github.com/qorc/queryorchestrator/core"
	"github.com/qorc/queryorchestrator/plan"
)

// truncateLen bounds how much of a prior result or enriched field is
// spliced into a dependent step's query.
const truncateLen = 200

// Synthesizer implements exec.Enricher: it turns a level's completed steps
// into accumulated context, and rewrites a dependent step's query from
// that context's accumulated keys.
type Synthesizer struct {
	Rules  map[string]EnrichmentRule
	LLM    LLMClient
	Logger core.Logger
}

// NewSynthesizer builds a Synthesizer with the default enrichment rule set.
// llm may be nil to use pattern-based fact extraction exclusively.
func NewSynthesizer(llm LLMClient, logger core.Logger) *Synthesizer {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Synthesizer{Rules: DefaultEnrichmentRules(), LLM: llm, Logger: logger}
}

// Synthesize extracts facts from every completed step in the level and
// applies cross-domain enrichment between adjacent steps whose domains
// differ and neither is general. The returned map accumulates under
// well-known keys: "last_result", "source_data", "participants", and
// "enrichment_<from>_to_<to>" for every rule that matched.
func (s *Synthesizer) Synthesize(ctx context.Context, completed []*plan.ExecutionStep) map[string]string {
	out := map[string]string{}

	for i, step := range completed {
		if step.Status != plan.StatusCompleted || step.Result == "" {
			continue
		}
		out["last_result"] = step.Result

		facts := ExtractFacts(ctx, step.Result, s.LLM)
		if len(facts.Emails) > 0 {
			out["participants"] = strings.Join(facts.Emails, ", ")
		}

		if i+1 < len(completed) {
			next := completed[i+1]
			if enrichment := ApplyEnrichmentRule(s.Rules, step.Domain, next.Domain, step.Result); enrichment != nil {
				out["enrichment_"+enrichment.EnrichmentType] = formatEnrichedKeys(enrichment.EnrichedContext)
				if enrichment.EnrichedContext["source_data"] {
					out["source_data"] = step.Result
				}
				if enrichment.EnrichedContext["participants"] {
					if _, already := out["participants"]; !already {
						out["participants"] = step.Result
					}
				}
				s.Logger.Debug("applied cross-domain enrichment", map[string]interface{}{
					"type": enrichment.EnrichmentType, "confidence": enrichment.Confidence,
				})
			}
		}
	}

	return out
}

// EnrichQuery suffixes query with whatever accumulated context its
// ContextRequirements flags call for.
func (s *Synthesizer) EnrichQuery(query string, req plan.ContextRequirements, accumulated map[string]string) string {
	var b strings.Builder
	b.WriteString(query)

	if req.NeedsPreviousResults {
		if v, ok := accumulated["last_result"]; ok {
			b.WriteString(" [Context: ")
			b.WriteString(truncate(v, truncateLen))
			b.WriteString("]")
		}
	}
	if req.NeedsSourceData {
		if v, ok := accumulated["source_data"]; ok {
			b.WriteString(" [Source: ")
			b.WriteString(truncate(v, truncateLen))
			b.WriteString("]")
		}
	}
	if req.NeedsParticipantData {
		if v, ok := accumulated["participants"]; ok {
			b.WriteString(" [Participants: ")
			b.WriteString(truncate(v, truncateLen))
			b.WriteString("]")
		}
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatEnrichedKeys(keys map[string]bool) string {
	out := make([]string, 0, len(keys))
	for k, present := range keys {
		if present {
			out = append(out, k)
		}
	}
	return strings.Join(out, ",")
}

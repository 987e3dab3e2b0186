package context

import (
	"strings"

	"github.com/qorc/queryorchestrator/domain"
)

// EnrichmentRule describes how to transform a source domain's step result
// into enriched context a target domain's step can consume: extractPatterns
// gates whether the rule fires at all, contextMappings names the keys that
// get populated in the enriched context when it does.
type EnrichmentRule struct {
	ExtractPatterns []string
	ContextMappings map[string]string // source indicator -> enriched context key
}

// DefaultEnrichmentRules are the rule set shipped with the synthesizer,
// covering the domain pairs the orchestrator actually routes between.
func DefaultEnrichmentRules() map[string]EnrichmentRule {
	return map[string]EnrichmentRule{
		"email_to_task": {
			ExtractPatterns: []string{"action", "follow up", "deadline", "please", "asap"},
			ContextMappings: map[string]string{"action": "source_data", "follow up": "source_data"},
		},
		"email_to_calendar": {
			ExtractPatterns: []string{"meeting", "schedule", "available", "invite"},
			ContextMappings: map[string]string{"meeting": "participants", "invite": "participants"},
		},
		"calendar_to_task": {
			ExtractPatterns: []string{"meeting", "action item", "follow up"},
			ContextMappings: map[string]string{"meeting": "source_data", "action item": "source_data"},
		},
		"calendar_to_email": {
			ExtractPatterns: []string{"attendee", "participant", "invite"},
			ContextMappings: map[string]string{"attendee": "participants", "participant": "participants"},
		},
		"task_to_notion": {
			ExtractPatterns: []string{"document", "reference", "note"},
			ContextMappings: map[string]string{"document": "source_data", "reference": "source_data"},
		},
		"notion_to_task": {
			ExtractPatterns: []string{"action item", "todo", "deadline"},
			ContextMappings: map[string]string{"action item": "source_data", "todo": "source_data"},
		},
	}
}

// Enrichment is the outcome of matching a rule against a domain transition.
type Enrichment struct {
	SourceDomain    domain.Domain
	TargetDomain    domain.Domain
	EnrichmentType  string
	EnrichedContext map[string]bool
	Confidence      float64
}

// EnrichmentConfidence is the fixed confidence attached to every rule-based
// enrichment: pattern presence is treated as a binary, not graded, signal.
const EnrichmentConfidence = 0.75

// ApplyEnrichmentRule matches rules[fromDomain_to_toDomain] against result
// and returns the enrichment when a matched pattern has a context mapping.
// It returns nil when from equals to, when either side is general, or when
// no matched pattern maps to any context.
func ApplyEnrichmentRule(rules map[string]EnrichmentRule, from, to domain.Domain, result string) *Enrichment {
	if from == to || from == domain.General || to == domain.General {
		return nil
	}
	key := string(from) + "_to_" + string(to)
	rule, ok := rules[key]
	if !ok {
		return nil
	}

	lower := strings.ToLower(result)
	matched := make([]string, 0, len(rule.ExtractPatterns))
	for _, pattern := range rule.ExtractPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			matched = append(matched, pattern)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	enriched := map[string]bool{}
	for _, m := range matched {
		if target, ok := rule.ContextMappings[m]; ok {
			enriched[target] = true
		}
	}
	if len(enriched) == 0 {
		return nil
	}

	return &Enrichment{
		SourceDomain:    from,
		TargetDomain:    to,
		EnrichmentType:  key,
		EnrichedContext: enriched,
		Confidence:      EnrichmentConfidence,
	}
}

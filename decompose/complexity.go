package decompose

import "strings"

// Complexity is the result of analyzing whether a query is atomic (routes
// to a single tool) or compound (needs multi-step orchestration).
type Complexity struct {
	Score             float64
	Level             string // "low", "medium", "high"
	ShouldOrchestrate bool
}

const (
	orchestrationThreshold = 2.0
	separatorWeight        = 1.0
	extraActionWeight      = 0.75
	extraDomainWeight      = 0.75
	lengthWeight           = 0.5
	longQueryWords         = 18
)

// AnalyzeComplexity scores a query on separator presence, distinct action
// verbs, distinct domain mentions, and raw length, then decides whether it
// warrants multi-step orchestration rather than single-tool routing.
func AnalyzeComplexity(query string) Complexity {
	lower := strings.ToLower(query)

	score := 0.0
	for _, sep := range Separators {
		if strings.Contains(query, sep) {
			score += separatorWeight
		}
	}

	actionCount := 0
	for _, verb := range ActionVerbs {
		if strings.Contains(lower, verb) {
			actionCount++
		}
	}
	if actionCount > 1 {
		score += extraActionWeight * float64(actionCount-1)
	}

	ent := ExtractEntities(query)
	if len(ent.Domains) > 1 {
		score += extraDomainWeight * float64(len(ent.Domains)-1)
	}

	if len(strings.Fields(query)) > longQueryWords {
		score += lengthWeight
	}

	level := "low"
	switch {
	case score >= orchestrationThreshold:
		level = "high"
	case score > 0:
		level = "medium"
	}

	return Complexity{
		Score:             score,
		Level:             level,
		ShouldOrchestrate: score >= orchestrationThreshold,
	}
}

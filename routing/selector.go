package routing

import "strings"

// ParseResult is what a tool-scoped parser returns for a query. Reject=true
// is a first-class rejection signal: ToolSelector excludes rejecting tools
// from candidacy rather than treating the rejection as an error.
type ParseResult struct {
	Action     string
	Confidence float64
	Entities   map[string]interface{}
	Metadata   map[string]interface{}
	Reject     bool
}

// Parser is the optional tool-scoped parser capability a candidate may offer.
type Parser interface {
	Parse(query string) ParseResult
}

// Candidate describes one tool available to the selector's cascade.
type Candidate struct {
	Name   string
	Alias  []string
	Parser Parser // nil if the tool has no parser
}

// AuthoritativeParse carries a pre-computed, high-confidence parser result
// plus the tool that produced it, for cascade step 1.
type AuthoritativeParse struct {
	Tool       string
	Confidence float64
}

// IntentToolMap is the static intent->tool lookup used at cascade step 4.
type IntentToolMap map[string]string

// Selector implements the tool-selection cascade: authoritative parse,
// per-tool parser trial, memory recommendation, static intent map,
// domain-catalog mapping, name match, then first-available fallback.
type Selector struct {
	IntentToolMap IntentToolMap
}

// NewSelector builds a Selector with the given static intent->tool map.
func NewSelector(intentMap IntentToolMap) *Selector {
	if intentMap == nil {
		intentMap = IntentToolMap{}
	}
	return &Selector{IntentToolMap: intentMap}
}

// DomainToolFunc resolves an intent to the catalog's canonical tool for its
// domain (cascade stage 5). Pass nil to skip straight to stage 6.
type DomainToolFunc func(intent string) (tool string, ok bool)

// Select runs the seven-stage cascade and returns the chosen tool name.
// available must be non-empty; Select always returns a tool name from
// available (stage 7 is the guaranteed last resort).
func (s *Selector) Select(
	stepQuery, intent string,
	authoritative *AuthoritativeParse,
	memoryRecommendations []string,
	available []Candidate,
	domainTool DomainToolFunc,
) string {
	if len(available) == 0 {
		return ""
	}

	// Stage 1: parser-authoritative routing (confidence >= 0.80).
	if authoritative != nil && authoritative.Confidence >= 0.80 {
		if toolExists(available, authoritative.Tool) {
			return authoritative.Tool
		}
	}

	// Stage 2: run every available parser, drop explicit rejections, pick
	// the highest-confidence survivor at or above 0.70.
	bestTool := ""
	bestConf := 0.0
	for _, c := range available {
		if c.Parser == nil {
			continue
		}
		res := c.Parser.Parse(stepQuery)
		if res.Reject {
			continue
		}
		if res.Confidence >= 0.70 && res.Confidence > bestConf {
			bestTool = c.Name
			bestConf = res.Confidence
		}
	}
	if bestTool != "" {
		return bestTool
	}

	// Stage 3: memory-recommended tools, first match by name or alias to intent.
	for _, rec := range memoryRecommendations {
		for _, c := range available {
			if matchesNameOrAlias(c, rec) && (intent == "" || matchesNameOrAlias(c, intent)) {
				return c.Name
			}
		}
		// A plain name/alias match against the recommendation itself is
		// also acceptable even without an intent match.
		for _, c := range available {
			if matchesNameOrAlias(c, rec) {
				return c.Name
			}
		}
	}

	// Stage 4: static intent->tool map lookup.
	if intent != "" {
		if tool, ok := s.IntentToolMap[strings.ToLower(intent)]; ok && toolExists(available, tool) {
			return tool
		}
	}

	// Stage 5: domain-catalog mapping (intent -> canonical tool for domain).
	if domainTool != nil {
		if tool, ok := domainTool(intent); ok && toolExists(available, tool) {
			return tool
		}
	}

	// Stage 6: case-insensitive name match against intent.
	if intent != "" {
		lower := strings.ToLower(intent)
		for _, c := range available {
			if strings.ToLower(c.Name) == lower {
				return c.Name
			}
		}
	}

	// Stage 7: first available tool, last resort.
	return available[0].Name
}

func toolExists(available []Candidate, name string) bool {
	for _, c := range available {
		if c.Name == name {
			return true
		}
	}
	return false
}

func matchesNameOrAlias(c Candidate, name string) bool {
	if strings.EqualFold(c.Name, name) {
		return true
	}
	for _, a := range c.Alias {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

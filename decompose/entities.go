package decompose

import (
	"regexp"
	"strings"

	"github.com/qorc/queryorchestrator/domain"
)

// Entities is the bag of named entities pulled out of a query, attached to
// every step descriptor so downstream stages do not have to re-scan the
// original text.
type Entities struct {
	TimeReferences []string        `json:"time_references"`
	Priorities     []string        `json:"priorities"`
	Actions        []string        `json:"actions"`
	Domains        []domain.Domain `json:"domains"`
}

var (
	timeReferencePattern = regexp.MustCompile(`(?i)\b(today|tomorrow|yesterday|this week|next week|this morning|this afternoon|tonight|monday|tuesday|wednesday|thursday|friday|saturday|sunday|\d{1,2}(:\d{2})?\s?(am|pm))\b`)
	priorityPattern      = regexp.MustCompile(`(?i)\b(urgent|important|high priority|low priority|asap|critical)\b`)
)

// ActionVerbs is the closed, ordered set of verbs the decomposer looks for
// when assigning an action to a step. Order matters: the first match wins.
var ActionVerbs = []string{
	"schedule", "create", "send", "reply", "forward", "delete", "cancel",
	"update", "edit", "move", "reschedule", "summarize", "search", "find",
	"check", "review", "complete", "mark", "assign", "list", "show",
}

// DefaultAction is used when no verb in ActionVerbs appears in the query.
const DefaultAction = "list"

// ExtractEntities scans a query for time references, priority markers,
// action verbs, and domain keywords. It is a pure, side-effect-free pass
// over the text and never returns an error.
func ExtractEntities(query string) Entities {
	lower := strings.ToLower(query)

	ent := Entities{
		TimeReferences: uniqueMatches(timeReferencePattern, query),
		Priorities:     uniqueMatches(priorityPattern, query),
	}

	for _, verb := range ActionVerbs {
		if strings.Contains(lower, verb) {
			ent.Actions = append(ent.Actions, verb)
		}
	}

	for _, d := range domain.All {
		if domainKeywordPresent(lower, d) {
			ent.Domains = append(ent.Domains, d)
		}
	}

	return ent
}

func uniqueMatches(re *regexp.Regexp, s string) []string {
	found := re.FindAllString(s, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, m := range found {
		key := strings.ToLower(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// domainKeywordPresent is a lightweight check distinct from domain.Detector:
// entity extraction only needs to know which domains a fragment *mentions*,
// not a confidence-weighted classification.
func domainKeywordPresent(lowerQuery string, d domain.Domain) bool {
	var words []string
	switch d {
	case domain.Email:
		words = []string{"email", "mail", "inbox"}
	case domain.Task:
		words = []string{"task", "todo", "to-do"}
	case domain.Calendar:
		words = []string{"calendar", "meeting", "event", "schedule"}
	case domain.Notion:
		words = []string{"notion", "page", "document"}
	}
	for _, w := range words {
		if strings.Contains(lowerQuery, w) {
			return true
		}
	}
	return false
}

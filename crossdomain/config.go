package crossdomain

import (
	"regexp"

	"github.com/qorc/queryorchestrator/domain"
)

// Confidence levels attached to each detection path, ordered by how
// explicit the signal was.
const (
	PatternMatchConfidence     = 0.90
	MixedDomainConfidence      = 0.60
	KeywordDetectionConfidence = 0.60
	MinCrossDomainConfidence   = 0.50
)

// explicitPattern is one hand-authored regex expressing a concrete
// multi-domain phrasing, mapped to the domains it implies.
type explicitPattern struct {
	re      *regexp.Regexp
	domains []domain.Domain
}

var explicitPatterns = []explicitPattern{
	{regexp.MustCompile(`(?i)\b(tasks?|todos?)\s+and\s+(meetings?|events?|calendar)\b`), []domain.Domain{domain.Task, domain.Calendar}},
	{regexp.MustCompile(`(?i)\b(meetings?|events?|calendar)\s+and\s+(tasks?|todos?)\b`), []domain.Domain{domain.Calendar, domain.Task}},
	{regexp.MustCompile(`(?i)\b(email|send|message)\s+.*\s+(about|regarding)\s+.*(meeting|event|task)\b`), []domain.Domain{domain.Email, domain.Calendar, domain.Task}},
	{regexp.MustCompile(`(?i)\bcreate\s+(task|todo)\s+for\s+each\s+(email|message)\b`), []domain.Domain{domain.Email, domain.Task}},
	{regexp.MustCompile(`(?i)\bprepare\s+for\s+(meeting|event)\b`), []domain.Domain{domain.Calendar, domain.Task, domain.Email}},
	{regexp.MustCompile(`(?i)\b(create|update|add)\s+.*(notion|page|database).*\s+(about|for|from)\s+.*(meeting|event|task|email)\b`), []domain.Domain{domain.Notion, domain.Calendar, domain.Task, domain.Email}},
}

// emailOnlyPatterns and calendarOnlyPatterns short-circuit detection before
// the explicit patterns are even tried: a query that reads as entirely
// about one domain is never treated as cross-domain regardless of what
// else it superficially matches.
var emailOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btell\s+me\s+(?:about|more\s+about)\s+.*(?:email|message)`),
	regexp.MustCompile(`(?i)\bwhat\s+(?:is|was|does)\s+.*(?:email|message).*(?:about|say)`),
	regexp.MustCompile(`(?i)\blast\s+(?:email|message).*(?:from|by)`),
	regexp.MustCompile(`(?i)\bemail.*(?:about|regarding|concerning)`),
	regexp.MustCompile(`(?i)\bsummarize.*(?:email|message)`),
}

var calendarOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcalendar\s+events?\b`),
	regexp.MustCompile(`(?i)\bmy\s+calendar\b`),
	regexp.MustCompile(`(?i)\bshow.*calendar\b`),
	regexp.MustCompile(`(?i)\bmeetings?\s+(?:today|tomorrow|for)\b`),
	regexp.MustCompile(`(?i)\bshow\s+(?:my\s+)?events?\b`),
}

var timeContextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btoday\b`),
	regexp.MustCompile(`(?i)\btomorrow\b`),
	regexp.MustCompile(`(?i)\bthis\s+week\b`),
	regexp.MustCompile(`(?i)\bnext\s+week\b`),
}

var (
	taskKeywords     = []string{"task", "tasks", "todo", "todos"}
	calendarKeywords = []string{"meeting", "calendar", "appointment"}
	emailKeywords    = []string{"email", "message", "inbox", "send"}
	notionKeywords   = []string{"notion", "page", "database", "document", "wiki"}

	createKeywords = []string{"create", "add", "new", "schedule", "book"}
	searchKeywords = []string{"search", "find", "look for"}
)

var (
	createFromEmailPattern   = regexp.MustCompile(`(?i)create\s+task.*for\s+each\s+email`)
	emailAboutMeetingPattern = regexp.MustCompile(`(?i)email.*about.*(meeting|event)`)
	prepareForMeetingPattern = regexp.MustCompile(`(?i)prepare.*for.*(meeting|event)`)
)

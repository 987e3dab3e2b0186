// Package context synthesizes enriched context from step results: it
// extracts structured facts from raw tool output, applies cross-domain
// enrichment rules when adjacent steps cross a domain boundary, and
// rewrites a dependent step's query to carry forward what it needs.
package context

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// MaxSubjects bounds how many "Subject: ..." lines are kept from pattern
// extraction, preventing a pathological result from ballooning context.
const MaxSubjects = 5

// Facts is the structured result of extracting information from a step's
// raw result text. Every field is optional; nil/zero means "not found".
type Facts struct {
	SearchTopic       string
	KeyFindings       []string
	RelevantCount     int
	HasCount          bool
	Subjects          []string
	Emails            []string
	Dates             []string
	ImportantEntities []string
	ActionItems       []string
	Deadlines         []string
	Priorities        []string
	Recipients        []string
	TimeReferences    []string
	DomainContext     string
}

// LLMClient is the minimal capability needed for LLM-based fact extraction.
// A nil LLMClient disables this path entirely and pattern extraction is
// always used instead.
type LLMClient interface {
	ExtractFacts(ctx context.Context, result string) (Facts, error)
}

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
		regexp.MustCompile(`(?i)\b(today|tomorrow|yesterday)\b`),
	}
	countPattern   = regexp.MustCompile(`(?i)(\d+)\s+(email|message|event|task|item)s?`)
	subjectPattern = regexp.MustCompile(`(?i)Subject:\s*(.+)`)
)

// ExtractFacts pulls structured facts from a step's raw result, trying the
// LLM client first (if present) and falling back to pattern extraction on
// any error or when no client is configured.
func ExtractFacts(ctx context.Context, result string, llm LLMClient) Facts {
	if result == "" {
		return Facts{}
	}
	if llm != nil {
		if facts, err := llm.ExtractFacts(ctx, result); err == nil {
			return facts
		}
	}
	return patternExtractFacts(result)
}

func patternExtractFacts(result string) Facts {
	facts := Facts{}

	if emails := uniqueStrings(emailPattern.FindAllString(result, -1)); len(emails) > 0 {
		facts.Emails = emails
	}

	var dates []string
	for _, pat := range datePatterns {
		dates = append(dates, pat.FindAllString(result, -1)...)
	}
	if unique := uniqueStrings(dates); len(unique) > 0 {
		facts.Dates = unique
	}

	if m := countPattern.FindStringSubmatch(result); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			facts.RelevantCount = n
			facts.HasCount = true
		}
	}

	if matches := subjectPattern.FindAllStringSubmatch(result, -1); len(matches) > 0 {
		subjects := make([]string, 0, len(matches))
		for _, m := range matches {
			subjects = append(subjects, strings.TrimSpace(m[1]))
		}
		if len(subjects) > MaxSubjects {
			subjects = subjects[:MaxSubjects]
		}
		facts.Subjects = subjects
	}

	return facts
}

func uniqueStrings(vals []string) []string {
	if len(vals) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

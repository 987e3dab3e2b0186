package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Metrics summarizes routing_decisions over a trailing window.
type Metrics struct {
	Days               int     `json:"days"`
	TotalQueries       int     `json:"total_queries"`
	Accuracy           float64 `json:"accuracy"`
	AvgConfidence      float64 `json:"avg_confidence"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	ParserUsageRate    float64 `json:"parser_usage_rate"`
	ValidatorUsageRate float64 `json:"validator_usage_rate"`
	CrossDomainRate    float64 `json:"cross_domain_rate"`
}

// DomainAccuracy is one domain's success rate over the window.
type DomainAccuracy struct {
	Domain   string  `json:"domain"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

// MisroutingPattern is one row from the misrouting_patterns table.
type MisroutingPattern struct {
	QueryPattern  string  `json:"query_pattern"`
	WrongDomain   string  `json:"wrong_domain"`
	CorrectDomain string  `json:"correct_domain"`
	Occurrences   int     `json:"occurrences"`
	AvgConfidence float64 `json:"avg_confidence"`
	Resolved      bool    `json:"resolved"`
}

// ConfidenceBucket is one histogram bin of GetConfidenceDistribution.
type ConfidenceBucket struct {
	RangeLow  float64 `json:"range_low"`
	RangeHigh float64 `json:"range_high"`
	Count     int     `json:"count"`
}

func cutoff(days int) string {
	return time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Format(time.RFC3339)
}

// GetMetrics computes the headline accuracy/confidence/timing metrics over
// the trailing `days` window, optionally filtered to one domain and/or tool.
func (s *Store) GetMetrics(ctx context.Context, days int, domainFilter, toolFilter string) (Metrics, error) {
	m := Metrics{Days: days}

	query := `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(confidence), 0),
		COALESCE(AVG(execution_time_ms), 0),
		COALESCE(SUM(used_parser), 0),
		COALESCE(SUM(used_validator), 0),
		COALESCE(SUM(cross_domain), 0)
	FROM routing_decisions WHERE timestamp >= ?`
	args := []interface{}{cutoff(days)}
	if domainFilter != "" {
		query += " AND detected_domain = ?"
		args = append(args, domainFilter)
	}
	if toolFilter != "" {
		query += " AND routed_tool = ?"
		args = append(args, toolFilter)
	}

	var successful, parserUsed, validatorUsed, crossDomain int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&m.TotalQueries, &successful, &m.AvgConfidence, &m.AvgExecutionTimeMs,
		&parserUsed, &validatorUsed, &crossDomain,
	)
	if err != nil {
		return Metrics{}, err
	}
	if m.TotalQueries > 0 {
		m.Accuracy = float64(successful) / float64(m.TotalQueries)
		m.ParserUsageRate = float64(parserUsed) / float64(m.TotalQueries)
		m.ValidatorUsageRate = float64(validatorUsed) / float64(m.TotalQueries)
		m.CrossDomainRate = float64(crossDomain) / float64(m.TotalQueries)
	}
	return m, nil
}

// GetMisroutingPatterns lists recurring misroutes with at least
// minOccurrences, most frequent first.
func (s *Store) GetMisroutingPatterns(ctx context.Context, minOccurrences int, unresolvedOnly bool) ([]MisroutingPattern, error) {
	query := `SELECT query_pattern, wrong_domain, correct_domain, occurrences, avg_confidence, resolved
		FROM misrouting_patterns WHERE occurrences >= ?`
	args := []interface{}{minOccurrences}
	if unresolvedOnly {
		query += " AND resolved = 0"
	}
	query += " ORDER BY occurrences DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MisroutingPattern
	for rows.Next() {
		var p MisroutingPattern
		var resolved int
		if err := rows.Scan(&p.QueryPattern, &p.WrongDomain, &p.CorrectDomain, &p.Occurrences, &p.AvgConfidence, &resolved); err != nil {
			return nil, err
		}
		p.Resolved = resolved != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetDomainAccuracy breaks accuracy down per detected domain over the
// trailing `days` window.
func (s *Store) GetDomainAccuracy(ctx context.Context, days int) (map[string]DomainAccuracy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT detected_domain, COUNT(*), SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END)
		FROM routing_decisions WHERE timestamp >= ? GROUP BY detected_domain`, cutoff(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]DomainAccuracy{}
	for rows.Next() {
		var d string
		var total, successful int
		if err := rows.Scan(&d, &total, &successful); err != nil {
			return nil, err
		}
		acc := 0.0
		if total > 0 {
			acc = float64(successful) / float64(total)
		}
		out[d] = DomainAccuracy{Domain: d, Total: total, Accuracy: acc}
	}
	return out, rows.Err()
}

// GetToolUsage counts routed_tool occurrences over the trailing `days` window.
func (s *Store) GetToolUsage(ctx context.Context, days int) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT routed_tool, COUNT(*) FROM routing_decisions
		WHERE timestamp >= ? GROUP BY routed_tool`, cutoff(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var tool string
		var count int
		if err := rows.Scan(&tool, &count); err != nil {
			return nil, err
		}
		out[tool] = count
	}
	return out, rows.Err()
}

// GetConfidenceDistribution buckets recorded confidences into `bins` equal
// ranges across [0, 1].
func (s *Store) GetConfidenceDistribution(ctx context.Context, days, bins int) ([]ConfidenceBucket, error) {
	if bins <= 0 {
		bins = 10
	}
	buckets := make([]ConfidenceBucket, bins)
	width := 1.0 / float64(bins)
	for i := range buckets {
		buckets[i] = ConfidenceBucket{RangeLow: float64(i) * width, RangeHigh: float64(i+1) * width}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT confidence FROM routing_decisions WHERE timestamp >= ?`, cutoff(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		idx := int(c / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		buckets[idx].Count++
	}
	return buckets, rows.Err()
}

// ExportMetrics writes the full metrics/accuracy/usage/distribution snapshot
// for the trailing `days` window to path as JSON.
func (s *Store) ExportMetrics(ctx context.Context, path string, days int) error {
	metrics, err := s.GetMetrics(ctx, days, "", "")
	if err != nil {
		return err
	}
	accuracy, err := s.GetDomainAccuracy(ctx, days)
	if err != nil {
		return err
	}
	usage, err := s.GetToolUsage(ctx, days)
	if err != nil {
		return err
	}
	distribution, err := s.GetConfidenceDistribution(ctx, days, 10)
	if err != nil {
		return err
	}
	patterns, err := s.GetMisroutingPatterns(ctx, 1, true)
	if err != nil {
		return err
	}

	snapshot := struct {
		Metrics            Metrics                   `json:"metrics"`
		DomainAccuracy     map[string]DomainAccuracy `json:"domain_accuracy"`
		ToolUsage          map[string]int            `json:"tool_usage"`
		Distribution       []ConfidenceBucket         `json:"confidence_distribution"`
		MisroutingPatterns []MisroutingPattern        `json:"misrouting_patterns"`
	}{metrics, accuracy, usage, distribution, patterns}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// GenerateReport renders the trailing `days` window's metrics as a
// human-readable text report.
func (s *Store) GenerateReport(ctx context.Context, days int) (string, error) {
	metrics, err := s.GetMetrics(ctx, days, "", "")
	if err != nil {
		return "", err
	}
	accuracy, err := s.GetDomainAccuracy(ctx, days)
	if err != nil {
		return "", err
	}
	usage, err := s.GetToolUsage(ctx, days)
	if err != nil {
		return "", err
	}
	patterns, err := s.GetMisroutingPatterns(ctx, 2, true)
	if err != nil {
		return "", err
	}

	sep := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nROUTING ANALYTICS REPORT (last %d days)\n%s\n\n", sep, days, sep)
	fmt.Fprintf(&b, "Total queries:     %d\n", metrics.TotalQueries)
	fmt.Fprintf(&b, "Accuracy:          %.1f%%\n", metrics.Accuracy*100)
	fmt.Fprintf(&b, "Avg confidence:    %.2f\n", metrics.AvgConfidence)
	fmt.Fprintf(&b, "Avg exec time:     %.1fms\n", metrics.AvgExecutionTimeMs)
	fmt.Fprintf(&b, "Parser usage:      %.1f%%\n", metrics.ParserUsageRate*100)
	fmt.Fprintf(&b, "Validator usage:   %.1f%%\n", metrics.ValidatorUsageRate*100)
	fmt.Fprintf(&b, "Cross-domain rate: %.1f%%\n\n", metrics.CrossDomainRate*100)

	b.WriteString("Domain accuracy:\n")
	domains := make([]string, 0, len(accuracy))
	for d := range accuracy {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		a := accuracy[d]
		fmt.Fprintf(&b, "  %-10s %5d queries  %.1f%% accurate\n", a.Domain, a.Total, a.Accuracy*100)
	}

	b.WriteString("\nTool usage:\n")
	tools := make([]string, 0, len(usage))
	for t := range usage {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	for _, t := range tools {
		fmt.Fprintf(&b, "  %-10s %5d\n", t, usage[t])
	}

	if len(patterns) > 0 {
		b.WriteString("\nUnresolved misrouting patterns:\n")
		for _, p := range patterns {
			fmt.Fprintf(&b, "  %s -> %s (%dx, avg conf %.2f): %q\n", p.WrongDomain, p.CorrectDomain, p.Occurrences, p.AvgConfidence, p.QueryPattern)
		}
	}

	return b.String(), nil
}

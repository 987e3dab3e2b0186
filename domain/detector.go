package domain

import (
	"embed"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed patterns/*.yaml
var patternFS embed.FS

// Scoring weights for each evidence class. A domain's score is the sum of
// weights for every matching strong indicator, keyword, question phrase,
// and action phrase, capped at 1.0.
const (
	weightStrongIndicator = 0.40
	weightKeyword         = 0.20
	weightQuestionPhrase  = 0.15
	weightActionPhrase    = 0.15

	mixedDomainThreshold  = 0.30
	mixedDomainConfidence = 0.60
)

// domainPattern is the compiled, ready-to-score pattern set for one domain.
type domainPattern struct {
	domain           Domain
	strongIndicators []*regexp.Regexp
	keywords         []string
	questionPhrases  []string
	actionPhrases    []string
}

// rawPattern mirrors the YAML shape under domain/patterns/*.yaml.
type rawPattern struct {
	Domain           string   `yaml:"domain"`
	StrongIndicators []string `yaml:"strong_indicators"`
	Keywords         []string `yaml:"keywords"`
	QuestionPhrases  []string `yaml:"question_phrases"`
	ActionPhrases    []string `yaml:"action_phrases"`
}

// DetectorConfig is the detector's stable, non-runtime-editable input: the
// pattern sets scored against every query. It is a plain value so Detector
// stays a pure function of (query, config).
type DetectorConfig struct {
	patterns map[Domain]*domainPattern
}

// LoadDefaultDetectorConfig parses the embedded pattern YAML files.
func LoadDefaultDetectorConfig() (*DetectorConfig, error) {
	cfg := &DetectorConfig{patterns: make(map[Domain]*domainPattern)}

	files := map[Domain]string{
		Email:    "patterns/email.yaml",
		Task:     "patterns/task.yaml",
		Calendar: "patterns/calendar.yaml",
		Notion:   "patterns/notion.yaml",
	}

	for d, path := range files {
		raw, err := patternFS.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var rp rawPattern
		if err := yaml.Unmarshal(raw, &rp); err != nil {
			return nil, err
		}
		dp := &domainPattern{
			domain:          d,
			keywords:        rp.Keywords,
			questionPhrases: rp.QuestionPhrases,
			actionPhrases:   rp.ActionPhrases,
		}
		for _, pat := range rp.StrongIndicators {
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, err
			}
			dp.strongIndicators = append(dp.strongIndicators, re)
		}
		cfg.patterns[d] = dp
	}
	return cfg, nil
}

// MustLoadDefaultDetectorConfig panics on a malformed embedded pattern file;
// suitable for package-level initialization where the files are guaranteed
// to be well-formed (they ship with the binary).
func MustLoadDefaultDetectorConfig() *DetectorConfig {
	cfg, err := LoadDefaultDetectorConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Evidence is the detail returned alongside a detection decision.
type Evidence struct {
	Scores  map[Domain]float64
	Domains []Domain // populated for a Mixed result and for an analyzer result
	Method  string   // "pattern_matching" or "analyzer"
}

// Analyzer is an optional external domain analyzer. When set on Detector, a
// successful call takes priority over pattern matching; a failing or empty
// call falls back silently to the pattern path.
type Analyzer interface {
	Analyze(query string) (domains []Domain, confidence float64, err error)
}

// Detector scores a query against every domain's pattern set and returns the
// best match. It holds no catalog reference: it is a pure function of
// (query, config), so it is trivially unit-testable and safe to share
// across goroutines.
type Detector struct {
	config   *DetectorConfig
	analyzer Analyzer
}

// NewDetector builds a Detector over the given config. Pass nil to use the
// embedded default pattern set.
func NewDetector(config *DetectorConfig) *Detector {
	if config == nil {
		config = MustLoadDefaultDetectorConfig()
	}
	return &Detector{config: config}
}

// WithAnalyzer attaches an optional external analyzer; returns the receiver
// for chaining.
func (d *Detector) WithAnalyzer(a Analyzer) *Detector {
	d.analyzer = a
	return d
}

// Detect scores query against every domain's patterns and returns the
// winning domain, its confidence, and the evidence behind the decision.
func (d *Detector) Detect(query string) (Domain, float64, Evidence) {
	if d.analyzer != nil {
		if domains, confidence, err := d.analyzer.Analyze(query); err == nil && len(domains) > 0 {
			return domains[0], confidence, Evidence{Domains: domains, Method: "analyzer"}
		}
	}
	return d.detectByPattern(query)
}

func (d *Detector) detectByPattern(query string) (Domain, float64, Evidence) {
	lower := strings.ToLower(query)

	scores := make(map[Domain]float64, len(All))
	for _, dom := range All {
		pat := d.config.patterns[dom]
		if pat == nil {
			continue
		}
		score := 0.0
		for _, re := range pat.strongIndicators {
			if re.MatchString(lower) {
				score += weightStrongIndicator
			}
		}
		for _, kw := range pat.keywords {
			if strings.Contains(lower, kw) {
				score += weightKeyword
			}
		}
		for _, qp := range pat.questionPhrases {
			if strings.Contains(lower, qp) {
				score += weightQuestionPhrase
			}
		}
		for _, ap := range pat.actionPhrases {
			if strings.Contains(lower, ap) {
				score += weightActionPhrase
			}
		}
		if score > 1.0 {
			score = 1.0
		}
		scores[dom] = score
	}

	var high []Domain
	for _, dom := range All {
		if scores[dom] > mixedDomainThreshold {
			high = append(high, dom)
		}
	}
	if len(high) >= 2 {
		return Mixed, mixedDomainConfidence, Evidence{Scores: scores, Domains: high, Method: "pattern_matching"}
	}

	best := General
	bestScore := 0.0
	for _, dom := range All {
		if scores[dom] > bestScore {
			best = dom
			bestScore = scores[dom]
		}
	}
	if bestScore <= 0 {
		return General, 0.0, Evidence{Scores: scores, Method: "pattern_matching"}
	}
	return best, bestScore, Evidence{Scores: scores, Method: "pattern_matching"}
}

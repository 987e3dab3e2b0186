// Package routing implements routing validation and the tool selection
// cascade: given a query, its detected domain, and a target tool, decide
// whether the routing decision should stand.
package routing

import (
	"fmt"

	"github.com/qorc/queryorchestrator/domain"
)

// Verdict is the outcome of validating one routing decision.
type Verdict struct {
	Valid          bool
	Confidence     float64
	Reason         string
	DetectedDomain domain.Domain
	TargetDomain   domain.Domain
	Suggestions    []string
}

// Validator holds the catalog and detector explicitly (never the
// package-level domain.Default() singleton) so it stays a deterministic,
// unit-testable function of its inputs.
type Validator struct {
	Catalog    *domain.Catalog
	Detector   *domain.Detector
	StrictMode bool

	// StrictConfidenceThreshold is the detection-confidence floor above
	// which a mismatch is rejected outright in strict mode.
	StrictConfidenceThreshold float64
}

// NewValidator builds a Validator. strict selects strict vs lenient mode.
func NewValidator(catalog *domain.Catalog, detector *domain.Detector, strict bool) *Validator {
	return &Validator{
		Catalog:                   catalog,
		Detector:                  detector,
		StrictMode:                strict,
		StrictConfidenceThreshold: 0.60,
	}
}

// Validate scores a query against the tool it was routed to. parserConfidence
// is optional: pass nil when no parser result is available.
func (v *Validator) Validate(query, targetTool string, parserConfidence *float64) Verdict {
	detected, detectionConf, evidence := v.Detector.Detect(query)
	targetDomain, _ := v.Catalog.GetDomainForTool(targetTool)

	switch {
	case detected == domain.Mixed:
		if containsDomain(evidence.Domains, targetDomain) {
			return Verdict{
				Valid: true, Confidence: 0.70, Reason: "mixed but target is in detected set",
				DetectedDomain: detected, TargetDomain: targetDomain,
			}
		}
		if v.StrictMode {
			return Verdict{
				Valid: false, Confidence: 0.40, Reason: "mixed query, target domain not in detected set",
				DetectedDomain: detected, TargetDomain: targetDomain,
				Suggestions: domainsToStrings(evidence.Domains),
			}
		}
		return Verdict{
			Valid: true, Confidence: 0.40, Reason: "mixed query admitted leniently",
			DetectedDomain: detected, TargetDomain: targetDomain,
			Suggestions: domainsToStrings(evidence.Domains),
		}

	case detected == targetDomain:
		confidence := detectionConf + 0.15
		if confidence > 1.0 {
			confidence = 1.0
		}
		if parserConfidence != nil {
			confidence = 0.7*detectionConf + 0.3*(*parserConfidence)
		}
		return Verdict{
			Valid: true, Confidence: confidence, Reason: "detected domain matches target",
			DetectedDomain: detected, TargetDomain: targetDomain,
		}

	case detected == domain.General:
		return Verdict{
			Valid: true, Confidence: 0.50, Reason: "query is vague",
			DetectedDomain: detected, TargetDomain: targetDomain,
			Suggestions: []string{"query is vague"},
		}

	default: // mismatch
		if v.StrictMode && detectionConf > v.StrictConfidenceThreshold {
			canonical, _ := v.Catalog.CanonicalToolForDomain(detected)
			return Verdict{
				Valid: false, Confidence: 0.20,
				Reason:         v.mismatchMessage(detected, targetDomain),
				DetectedDomain: detected, TargetDomain: targetDomain,
				Suggestions: []string{fmt.Sprintf("route to detected's canonical tool: %s", canonical)},
			}
		}
		return Verdict{
			Valid: true, Confidence: 0.40, Reason: "low-confidence mismatch admitted with warning",
			DetectedDomain: detected, TargetDomain: targetDomain,
		}
	}
}

func (v *Validator) mismatchMessage(detected, target domain.Domain) string {
	return fmt.Sprintf("query looks like %s but was routed to %s", detected, target)
}

func containsDomain(list []domain.Domain, d domain.Domain) bool {
	for _, item := range list {
		if item == d {
			return true
		}
	}
	return false
}

func domainsToStrings(list []domain.Domain) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = string(d)
	}
	return out
}

// StepRoute is the minimal shape ValidatePlan needs from a plan step,
// decoupling this package from plan.ExecutionStep to avoid an import cycle
// (plan imports routing to build steps, not the other way around).
type StepRoute struct {
	StepID     string
	Query      string
	TargetTool string
}

// PlanVerdict is the bulk result of validating every step in a plan.
type PlanVerdict struct {
	OverallValid bool
	Confidence   float64
	StepVerdicts map[string]Verdict
	Errors       []string
	Warnings     []string
}

// ValidatePlan validates every step and returns the bulk verdict. Warnings
// and errors are attached but never gate execution by default (see
// Planner.RejectOnPlanWarnings in the plan package).
func (v *Validator) ValidatePlan(steps []StepRoute) PlanVerdict {
	result := PlanVerdict{
		OverallValid: true,
		Confidence:   1.0,
		StepVerdicts: make(map[string]Verdict, len(steps)),
	}
	for _, step := range steps {
		verdict := v.Validate(step.Query, step.TargetTool, nil)
		result.StepVerdicts[step.StepID] = verdict
		if verdict.Confidence < result.Confidence {
			result.Confidence = verdict.Confidence
		}
		if !verdict.Valid {
			result.OverallValid = false
			result.Errors = append(result.Errors, fmt.Sprintf("step %s: %s", step.StepID, verdict.Reason))
		} else if verdict.Confidence < 0.5 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("step %s: %s", step.StepID, verdict.Reason))
		}
	}
	return result
}

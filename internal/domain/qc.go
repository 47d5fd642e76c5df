package domain

import (
	"fmt"
	"time"
)

// Thresholds are the acceptance limits applied during QC evaluation.
type Thresholds struct {
	MinConcentration float64 `json:"min_concentration"` // ng/uL
	MinVolumeUL      float64 `json:"min_volume_ul"`
	MinQualityRatio  float64 `json:"min_quality_ratio"` // A260/A280
}

// DefaultThresholds returns the standard acceptance limits for
// nanopore library prep input.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConcentration: 10.0,
		MinVolumeUL:      20.0,
		MinQualityRatio:  1.8,
	}
}

// OrDefault fills each unset (zero) limit from fallback, so callers
// can override a single threshold per request and inherit the rest.
func (t Thresholds) OrDefault(fallback Thresholds) Thresholds {
	if t.MinConcentration == 0 {
		t.MinConcentration = fallback.MinConcentration
	}
	if t.MinVolumeUL == 0 {
		t.MinVolumeUL = fallback.MinVolumeUL
	}
	if t.MinQualityRatio == 0 {
		t.MinQualityRatio = fallback.MinQualityRatio
	}
	return t
}

// Ratio score anchor points. An A260/A280 of 1.5 scores 0 and 2.0
// scores 100, linear in between.
const (
	ratioScoreFloor = 1.5
	ratioScoreSpan  = 0.5
)

// QCSummary reports one batch evaluation pass over a submission.
type QCSummary struct {
	Total     int `json:"total"`
	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Passed    int `json:"passed"`
	Warning   int `json:"warning"`
	Failed    int `json:"failed"`
}

// QCEngine scores samples against acceptance thresholds. Three
// independent checks run per sample (concentration, volume, quality
// ratio); the issue count alone decides the verdict.
type QCEngine struct {
	thresholds Thresholds
}

// NewQCEngine returns an engine using the given thresholds.
func NewQCEngine(thresholds Thresholds) *QCEngine {
	return &QCEngine{thresholds: thresholds}
}

// Evaluate scores a single sample and attaches the result. Any prior
// result is replaced; batch callers that want skip semantics check
// sample.QC before calling.
func (e *QCEngine) Evaluate(sample *Sample, evaluator string) *QCResult {
	result := &QCResult{
		EvaluatedBy: evaluator,
		EvaluatedAt: time.Now().UTC(),
	}

	var issues []string
	var components []float64

	// Concentration check uses the preferred reading: Qubit when
	// present, Nanodrop otherwise.
	if conc := sample.Measurements.BestConcentration(); conc != nil {
		if *conc >= e.thresholds.MinConcentration {
			result.PassedConcentration = true
			components = append(components, 100)
		} else {
			issues = append(issues, fmt.Sprintf("Low concentration: %g ng/uL", *conc))
			components = append(components, 0)
		}
	} else {
		issues = append(issues, "No concentration measurement available")
	}

	if vol := sample.Measurements.VolumeUL; vol != nil {
		if *vol >= e.thresholds.MinVolumeUL {
			result.PassedVolume = true
			components = append(components, 100)
		} else {
			issues = append(issues, fmt.Sprintf("Low volume: %g uL", *vol))
			components = append(components, 0)
		}
	} else {
		issues = append(issues, "No volume measurement available")
	}

	if ratio := sample.Measurements.RatioA260A280; ratio != nil {
		if *ratio >= e.thresholds.MinQualityRatio {
			result.PassedQualityRatio = true
		} else {
			issues = append(issues, fmt.Sprintf("Poor A260/A280 ratio: %g", *ratio))
		}
		components = append(components, ratioScore(*ratio))
	} else {
		issues = append(issues, "No quality ratio measurement available")
	}

	result.Issues = issues
	result.Status = classify(len(issues))

	if len(components) > 0 {
		score := mean(components)
		result.Score = &score
	}

	sample.QC = result
	sample.UpdatedAt = result.EvaluatedAt
	return result
}

// EvaluateAll scores every unevaluated sample of a submission.
// Samples that already carry a result are skipped, making batch QC
// idempotent.
func (e *QCEngine) EvaluateAll(submission *Submission, evaluator string) QCSummary {
	pending := submission.SamplesNeedingQC()
	summary := QCSummary{
		Total:   len(submission.Samples),
		Skipped: len(submission.Samples) - len(pending),
	}
	for _, sample := range pending {
		result := e.Evaluate(sample, evaluator)
		summary.Evaluated++
		switch result.Status {
		case QCPassed:
			summary.Passed++
		case QCWarning:
			summary.Warning++
		case QCFailed:
			summary.Failed++
		}
	}
	if summary.Evaluated > 0 {
		submission.UpdatedAt = time.Now().UTC()
	}
	return summary
}

// ratioScore maps an A260/A280 reading onto 0-100, clamped at the
// anchor points.
func ratioScore(ratio float64) float64 {
	score := (ratio - ratioScoreFloor) / ratioScoreSpan * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// classify turns an issue count into a verdict: clean passes, a single
// finding warns, anything more fails.
func classify(issueCount int) QCStatus {
	switch {
	case issueCount == 0:
		return QCPassed
	case issueCount == 1:
		return QCWarning
	default:
		return QCFailed
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

package domain

// Statistics summarizes a set of samples: workflow and QC breakdowns
// plus averages over the measurements that are actually present.
// Averages are nil when no sample carries the measurement.
type Statistics struct {
	TotalSubmissions int `json:"total_submissions"`
	TotalSamples     int `json:"total_samples"`

	WorkflowCounts map[WorkflowStatus]int `json:"workflow_counts"`
	QCCounts       map[QCStatus]int       `json:"qc_counts"`

	AverageConcentration *float64 `json:"average_concentration,omitempty"`
	AverageVolumeUL      *float64 `json:"average_volume_ul,omitempty"`
	AverageQualityRatio  *float64 `json:"average_quality_ratio,omitempty"`
	AverageQCScore       *float64 `json:"average_qc_score,omitempty"`

	SamplesWithLocation int `json:"samples_with_location"`
	SamplesProcessed    int `json:"samples_processed"`
}

// StatsAggregator computes summary statistics over submissions.
type StatsAggregator struct{}

// NewStatsAggregator returns a statistics aggregator.
func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{}
}

// ForSubmission summarizes a single submission's samples.
func (a *StatsAggregator) ForSubmission(submission *Submission) Statistics {
	return a.ForSubmissions([]*Submission{submission})
}

// ForSubmissions summarizes all samples across the given submissions.
// Unevaluated samples count as QC pending; absent measurements are
// excluded from the averages rather than treated as zero.
func (a *StatsAggregator) ForSubmissions(submissions []*Submission) Statistics {
	stats := Statistics{
		TotalSubmissions: len(submissions),
		WorkflowCounts:   make(map[WorkflowStatus]int),
		QCCounts:         make(map[QCStatus]int),
	}

	var concentrations, volumes, ratios, scores []float64

	for _, submission := range submissions {
		for _, sample := range submission.Samples {
			stats.TotalSamples++
			stats.WorkflowCounts[sample.Processing.Status]++
			stats.QCCounts[sample.QCStatusOrPending()]++

			if conc := sample.Measurements.BestConcentration(); conc != nil {
				concentrations = append(concentrations, *conc)
			}
			if vol := sample.Measurements.VolumeUL; vol != nil {
				volumes = append(volumes, *vol)
			}
			if ratio := sample.Measurements.RatioA260A280; ratio != nil {
				ratios = append(ratios, *ratio)
			}
			if sample.QC != nil && sample.QC.Score != nil {
				scores = append(scores, *sample.QC.Score)
			}

			if sample.Processing.Location != "" {
				stats.SamplesWithLocation++
			}
			if sample.Processing.ProcessedAt != nil {
				stats.SamplesProcessed++
			}
		}
	}

	stats.AverageConcentration = meanOrNil(concentrations)
	stats.AverageVolumeUL = meanOrNil(volumes)
	stats.AverageQualityRatio = meanOrNil(ratios)
	stats.AverageQCScore = meanOrNil(scores)
	return stats
}

func meanOrNil(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := mean(values)
	return &m
}

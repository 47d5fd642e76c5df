package domain

import (
	"fmt"
	"time"
)

// WorkflowStatus is the lifecycle state of a sample.
type WorkflowStatus string

const (
	StatusReceived   WorkflowStatus = "received"
	StatusProcessing WorkflowStatus = "processing"
	StatusSequenced  WorkflowStatus = "sequenced"
	StatusCompleted  WorkflowStatus = "completed"
	StatusFailed     WorkflowStatus = "failed"
	StatusOnHold     WorkflowStatus = "on_hold"
)

// ParseWorkflowStatus validates a raw status string.
func ParseWorkflowStatus(raw string) (WorkflowStatus, error) {
	switch WorkflowStatus(raw) {
	case StatusReceived, StatusProcessing, StatusSequenced, StatusCompleted, StatusFailed, StatusOnHold:
		return WorkflowStatus(raw), nil
	}
	return "", fmt.Errorf("unknown workflow status: %q", raw)
}

// Terminal reports whether no further transitions are possible.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// QCStatus is the outcome of a quality-control evaluation.
type QCStatus string

const (
	QCPending QCStatus = "pending"
	QCPassed  QCStatus = "passed"
	QCWarning QCStatus = "warning"
	QCFailed  QCStatus = "failed"
)

// Measurements holds the per-sample readings taken from a sample table
// row. Nil means the measurement was absent or unparsable in the
// source document. All values are non-negative; NewMeasurements
// enforces this at construction.
type Measurements struct {
	VolumeUL      *float64 `json:"volume_ul,omitempty"`
	QubitConc     *float64 `json:"qubit_ng_per_ul,omitempty"`
	NanodropConc  *float64 `json:"nanodrop_ng_per_ul,omitempty"`
	RatioA260A280 *float64 `json:"a260_a280,omitempty"`
	RatioA260A230 *float64 `json:"a260_a230,omitempty"`
}

// NewMeasurements validates and assembles a measurement set. A negative
// reading rejects the whole record with InvalidMeasurementError.
func NewMeasurements(volumeUL, qubit, nanodrop, ratio280, ratio230 *float64) (Measurements, error) {
	checks := []struct {
		name  string
		value *float64
	}{
		{"volume", volumeUL},
		{"qubit concentration", qubit},
		{"nanodrop concentration", nanodrop},
		{"A260/A280 ratio", ratio280},
		{"A260/A230 ratio", ratio230},
	}
	for _, c := range checks {
		if c.value != nil && *c.value < 0 {
			return Measurements{}, &InvalidMeasurementError{Field: c.name, Value: *c.value}
		}
	}
	return Measurements{
		VolumeUL:      volumeUL,
		QubitConc:     qubit,
		NanodropConc:  nanodrop,
		RatioA260A280: ratio280,
		RatioA260A230: ratio230,
	}, nil
}

// BestConcentration returns the preferred concentration reading: Qubit
// when present, otherwise Nanodrop, otherwise nil.
func (m Measurements) BestConcentration() *float64 {
	if m.QubitConc != nil {
		return m.QubitConc
	}
	return m.NanodropConc
}

// QCResult records one quality-control evaluation of a sample. It is
// written at most once per QC pass; batch evaluation never re-scores.
type QCResult struct {
	Status              QCStatus  `json:"status"`
	Score               *float64  `json:"score,omitempty"` // 0-100
	Issues              []string  `json:"issues,omitempty"`
	PassedConcentration bool      `json:"passed_concentration"`
	PassedVolume        bool      `json:"passed_volume"`
	PassedQualityRatio  bool      `json:"passed_quality_ratio"`
	EvaluatedBy         string    `json:"evaluated_by,omitempty"`
	EvaluatedAt         time.Time `json:"evaluated_at"`
}

// ProcessingInfo tracks a sample through the lab workflow. Notes are
// append-only.
type ProcessingInfo struct {
	Status      WorkflowStatus `json:"status"`
	Location    string         `json:"location,omitempty"`
	Barcode     string         `json:"barcode,omitempty"`
	ProcessedBy string         `json:"processed_by,omitempty"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	Notes       []string       `json:"notes,omitempty"`
}

// AddNote appends a timestamped, attributed entry to the note log.
func (p *ProcessingInfo) AddNote(note, author string) {
	stamp := time.Now().UTC().Format(time.RFC3339)
	if author != "" {
		p.Notes = append(p.Notes, fmt.Sprintf("[%s] %s: %s", stamp, author, note))
	} else {
		p.Notes = append(p.Notes, fmt.Sprintf("[%s] %s", stamp, note))
	}
}

// Sample is one measured specimen extracted from a submission table
// row. It is created once during ingestion and only mutated afterwards
// (QC, workflow); provenance indices trace it back to the document.
type Sample struct {
	ID           string         `json:"id"`
	SubmissionID string         `json:"submission_id"`
	Name         string         `json:"name,omitempty"`
	Measurements Measurements   `json:"measurements"`
	QC           *QCResult      `json:"qc_result,omitempty"`
	Processing   ProcessingInfo `json:"processing"`

	PageIndex  int `json:"page_index"`
	TableIndex int `json:"table_index"`
	RowIndex   int `json:"row_index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QCStatusOrPending folds an unevaluated sample into QCPending.
func (s *Sample) QCStatusOrPending() QCStatus {
	if s.QC == nil {
		return QCPending
	}
	return s.QC.Status
}

// SubmissionMetadata is the labeled front-matter of a submission form.
// Empty string means the field was not extracted. Multi-select answers
// hold the selected options joined with ", ".
type SubmissionMetadata struct {
	Identifier        string `json:"identifier,omitempty"`
	AsOf              string `json:"as_of,omitempty"`
	ExpiresOn         string `json:"expires_on,omitempty"`
	ServiceRequested  string `json:"service_requested,omitempty"`
	Requester         string `json:"requester,omitempty"`
	RequesterEmail    string `json:"requester_email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Lab               string `json:"lab,omitempty"`
	BillingAddress    string `json:"billing_address,omitempty"`
	PIs               string `json:"pis,omitempty"`
	FinancialContacts string `json:"financial_contacts,omitempty"`
	RequestSummary    string `json:"request_summary,omitempty"`
	FormsText         string `json:"forms_text,omitempty"`
	WillSubmitDNAFor  string `json:"will_submit_dna_for,omitempty"`
	TypeOfSample      string `json:"type_of_sample,omitempty"`
	HumanDNA          string `json:"human_dna,omitempty"`
	ContainsHumanDNA  *bool  `json:"contains_human_dna,omitempty"`
	SourceOrganism    string `json:"source_organism,omitempty"`
	SampleBuffer      string `json:"sample_buffer,omitempty"`
	FlowCellType      string `json:"flow_cell_type,omitempty"`
}

// Merge folds newly extracted values into m. A non-empty incoming
// value overwrites only when it differs; absent values never erase
// existing data. Reports whether anything changed.
func (m *SubmissionMetadata) Merge(incoming SubmissionMetadata) bool {
	changed := false
	merge := func(dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changed = true
		}
	}
	merge(&m.Identifier, incoming.Identifier)
	merge(&m.AsOf, incoming.AsOf)
	merge(&m.ExpiresOn, incoming.ExpiresOn)
	merge(&m.ServiceRequested, incoming.ServiceRequested)
	merge(&m.Requester, incoming.Requester)
	merge(&m.RequesterEmail, incoming.RequesterEmail)
	merge(&m.Phone, incoming.Phone)
	merge(&m.Lab, incoming.Lab)
	merge(&m.BillingAddress, incoming.BillingAddress)
	merge(&m.PIs, incoming.PIs)
	merge(&m.FinancialContacts, incoming.FinancialContacts)
	merge(&m.RequestSummary, incoming.RequestSummary)
	merge(&m.FormsText, incoming.FormsText)
	merge(&m.WillSubmitDNAFor, incoming.WillSubmitDNAFor)
	merge(&m.TypeOfSample, incoming.TypeOfSample)
	merge(&m.HumanDNA, incoming.HumanDNA)
	merge(&m.SourceOrganism, incoming.SourceOrganism)
	merge(&m.SampleBuffer, incoming.SampleBuffer)
	merge(&m.FlowCellType, incoming.FlowCellType)
	if incoming.ContainsHumanDNA != nil {
		if m.ContainsHumanDNA == nil || *m.ContainsHumanDNA != *incoming.ContainsHumanDNA {
			v := *incoming.ContainsHumanDNA
			m.ContainsHumanDNA = &v
			changed = true
		}
	}
	return changed
}

// PDFSource identifies the ingested document. ContentHash is the
// idempotency key; size and modification time form a cheap secondary
// fingerprint.
type PDFSource struct {
	FilePath     string    `json:"file_path,omitempty"`
	ContentHash  string    `json:"content_hash"`
	FileSize     int64     `json:"file_size"`
	ModifiedAt   time.Time `json:"modified_at"`
	PageCount    int       `json:"page_count"`
	Title        string    `json:"title,omitempty"`
	Author       string    `json:"author,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Creator      string    `json:"creator,omitempty"`
	Producer     string    `json:"producer,omitempty"`
	CreationDate string    `json:"creation_date,omitempty"`
}

// Fingerprint combines the primary and secondary identity of the
// source document.
func (s PDFSource) Fingerprint() string {
	return fmt.Sprintf("%s:%d:%d", s.ContentHash, s.FileSize, s.ModifiedAt.Unix())
}

// Submission is the aggregate root owning its metadata, source
// document identity and samples. Deleting a submission cascades to the
// samples.
type Submission struct {
	ID       string             `json:"id"`
	Metadata SubmissionMetadata `json:"metadata"`
	Source   PDFSource          `json:"source"`
	Samples  []*Sample          `json:"samples,omitempty"`

	// ForceImported marks a duplicate deliberately re-ingested with the
	// override flag; such rows are exempt from hash uniqueness.
	ForceImported bool `json:"force_imported,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SampleByID returns the owned sample with the given id, or nil.
func (s *Submission) SampleByID(id string) *Sample {
	for _, sample := range s.Samples {
		if sample.ID == id {
			return sample
		}
	}
	return nil
}

// SamplesNeedingQC lists the samples without a QC result.
func (s *Submission) SamplesNeedingQC() []*Sample {
	var pending []*Sample
	for _, sample := range s.Samples {
		if sample.QC == nil {
			pending = append(pending, sample)
		}
	}
	return pending
}

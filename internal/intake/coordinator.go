package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seqbench/lab-intake/internal/domain"
	"github.com/seqbench/lab-intake/internal/extract"
	"github.com/seqbench/lab-intake/internal/store"
)

// IngestResult reports one ingestion attempt.
type IngestResult struct {
	Submission *domain.Submission

	// Created is false when the document matched an existing
	// submission and was merged instead.
	Created bool

	// MetadataMerged reports whether a merge changed any stored
	// metadata field.
	MetadataMerged bool

	SamplesExtracted int
	RowsSkipped      int
}

// Ingest extracts the PDF at path and persists it as a submission.
// Re-ingesting an unchanged document updates metadata in place and
// never re-creates samples. With force set, a duplicate document is
// stored as a fresh submission with a new identity.
func (s *Service) Ingest(ctx context.Context, path string, force bool) (*IngestResult, error) {
	extraction, err := s.reader.Extract(path)
	if err != nil {
		return nil, err
	}

	fields := s.fields.Extract(extraction.Lines)
	metadata := metadataFromFields(fields)

	var records []extract.SampleRecord
	for _, table := range extraction.Tables {
		records = append(records, s.tables.Map(table)...)
	}

	if !force {
		existing, err := s.store.FindByContentHash(ctx, extraction.Source.ContentHash)
		if err == nil {
			return s.mergeIntoExisting(ctx, existing, metadata)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	submission, skipped := s.buildSubmission(extraction.Source, metadata, records, force)

	if err := s.store.SaveSubmission(ctx, submission); err != nil {
		// Two ingestions of the same document can race past the hash
		// lookup; the loser lands here and merges instead.
		if errors.Is(err, store.ErrDuplicateHash) && !force {
			existing, findErr := s.store.FindByContentHash(ctx, extraction.Source.ContentHash)
			if findErr != nil {
				return nil, err
			}
			return s.mergeIntoExisting(ctx, existing, metadata)
		}
		return nil, err
	}

	s.logger.Printf("ingested submission %s from %s (%s): %d samples, %d rows skipped",
		submission.ID, path, submission.Source.Fingerprint(), len(submission.Samples), skipped)
	return &IngestResult{
		Submission:       submission,
		Created:          true,
		SamplesExtracted: len(submission.Samples),
		RowsSkipped:      skipped,
	}, nil
}

// mergeIntoExisting folds freshly extracted metadata into a stored
// submission. Samples are never re-created on re-ingestion.
func (s *Service) mergeIntoExisting(ctx context.Context, existing *domain.Submission, metadata domain.SubmissionMetadata) (*IngestResult, error) {
	changed := existing.Metadata.Merge(metadata)
	if changed {
		existing.UpdatedAt = time.Now().UTC()
		if err := s.store.SaveSubmission(ctx, existing); err != nil {
			return nil, fmt.Errorf("persist merged metadata: %w", err)
		}
	}

	s.logger.Printf("submission %s already ingested, metadata merged: %t", existing.ID, changed)
	return &IngestResult{
		Submission:       existing,
		Created:          false,
		MetadataMerged:   changed,
		SamplesExtracted: len(existing.Samples),
	}, nil
}

// buildSubmission assembles a new submission aggregate from the
// extraction output. Rows with invalid measurements are skipped and
// counted rather than failing the whole document.
func (s *Service) buildSubmission(source domain.PDFSource, metadata domain.SubmissionMetadata, records []extract.SampleRecord, force bool) (*domain.Submission, int) {
	now := time.Now().UTC()
	submission := &domain.Submission{
		ID:            newID("sub_"),
		Metadata:      metadata,
		Source:        source,
		ForceImported: force,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	skipped := 0
	for _, record := range records {
		measurements, err := domain.NewMeasurements(
			record.VolumeUL, record.QubitConc, record.NanodropConc,
			record.RatioA260A280, record.RatioA260A230)
		if err != nil {
			s.logger.Printf("skipping row %d of table %d on page %d: %v",
				record.Row, record.Table, record.Page, err)
			skipped++
			continue
		}

		submission.Samples = append(submission.Samples, &domain.Sample{
			ID:           newID("smp_"),
			SubmissionID: submission.ID,
			Name:         record.Name,
			Measurements: measurements,
			Processing:   domain.ProcessingInfo{Status: domain.StatusReceived},
			PageIndex:    record.Page,
			TableIndex:   record.Table,
			RowIndex:     record.Row,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return submission, skipped
}

// metadataFromFields maps the extracted front-matter fields onto the
// submission metadata, coercing the human DNA answer to a boolean.
func metadataFromFields(fields map[string]string) domain.SubmissionMetadata {
	metadata := domain.SubmissionMetadata{
		Identifier:        fields[extract.FieldIdentifier],
		AsOf:              fields[extract.FieldAsOf],
		ExpiresOn:         fields[extract.FieldExpiresOn],
		ServiceRequested:  fields[extract.FieldServiceRequested],
		Requester:         fields[extract.FieldRequester],
		RequesterEmail:    fields[extract.FieldRequesterEmail],
		Phone:             fields[extract.FieldPhone],
		Lab:               fields[extract.FieldLab],
		BillingAddress:    fields[extract.FieldBillingAddress],
		PIs:               fields[extract.FieldPIs],
		FinancialContacts: fields[extract.FieldFinancialContacts],
		RequestSummary:    fields[extract.FieldRequestSummary],
		FormsText:         fields[extract.FieldFormsText],
		WillSubmitDNAFor:  fields[extract.FieldWillSubmitDNAFor],
		TypeOfSample:      fields[extract.FieldTypeOfSample],
		HumanDNA:          fields[extract.FieldHumanDNA],
		SourceOrganism:    fields[extract.FieldSourceOrganism],
		SampleBuffer:      fields[extract.FieldSampleBuffer],
		FlowCellType:      fields[extract.FieldFlowCellType],
	}
	if answer, ok := extract.HumanDNA(fields); ok {
		metadata.ContainsHumanDNA = &answer
	}
	return metadata
}

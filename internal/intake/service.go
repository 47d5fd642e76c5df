// Package intake coordinates document extraction, persistence and the
// sample lifecycle behind one service facade.
package intake

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/seqbench/lab-intake/internal/document"
	"github.com/seqbench/lab-intake/internal/domain"
	"github.com/seqbench/lab-intake/internal/extract"
	"github.com/seqbench/lab-intake/internal/store"
)

// SubmissionStore is the persistence surface the intake service
// depends on.
type SubmissionStore interface {
	SaveSubmission(ctx context.Context, submission *domain.Submission) error
	GetSubmission(ctx context.Context, id string) (*domain.Submission, error)
	FindByContentHash(ctx context.Context, hash string) (*domain.Submission, error)
	ListSubmissions(ctx context.Context, query store.ListQuery) ([]*domain.Submission, error)
	DeleteSubmission(ctx context.Context, id string) error
}

// documentReader extracts the text layer of a submission PDF.
type documentReader interface {
	Extract(path string) (*document.Extraction, error)
}

// Service is the submission intake application service.
type Service struct {
	store      SubmissionStore
	reader     documentReader
	fields     *extract.FieldExtractor
	tables     *extract.TableMapper
	thresholds domain.Thresholds
	workflow   *domain.Workflow
	stats      *domain.StatsAggregator
	logger     *log.Logger
}

// NewService wires the intake service with the given store, size limit
// for incoming documents and default QC thresholds.
func NewService(st SubmissionStore, maxFileSize int64, thresholds domain.Thresholds, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:      st,
		reader:     document.NewReader(maxFileSize),
		fields:     extract.NewFieldExtractor(),
		tables:     extract.NewTableMapper(),
		thresholds: thresholds,
		workflow:   domain.NewWorkflow(),
		stats:      domain.NewStatsAggregator(),
		logger:     logger,
	}
}

// EvaluateQC runs batch QC over a submission's samples. Samples that
// already carry a result are left alone. Zero fields in thresholds
// fall back to the service defaults, so callers can tighten or relax
// individual limits per request.
func (s *Service) EvaluateQC(ctx context.Context, submissionID string, thresholds domain.Thresholds, evaluator string) (domain.QCSummary, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.QCSummary{}, err
	}

	engine := domain.NewQCEngine(thresholds.OrDefault(s.thresholds))
	summary := engine.EvaluateAll(submission, evaluator)
	if summary.Evaluated > 0 {
		if err := s.store.SaveSubmission(ctx, submission); err != nil {
			return domain.QCSummary{}, fmt.Errorf("persist QC results: %w", err)
		}
	}

	s.logger.Printf("QC evaluated submission %s: %d evaluated, %d skipped, %d passed, %d warning, %d failed",
		submissionID, summary.Evaluated, summary.Skipped, summary.Passed, summary.Warning, summary.Failed)
	return summary, nil
}

// TransitionSamples moves the named samples of a submission to a new
// workflow status. Unknown ids and disallowed moves are skipped; the
// count of updated samples is returned.
func (s *Service) TransitionSamples(ctx context.Context, submissionID string, sampleIDs []string, status, actor string) (int, error) {
	target, err := domain.ParseWorkflowStatus(status)
	if err != nil {
		return 0, err
	}

	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return 0, err
	}

	updated := s.workflow.BatchTransition(submission, sampleIDs, target, actor)
	if updated > 0 {
		if err := s.store.SaveSubmission(ctx, submission); err != nil {
			return 0, fmt.Errorf("persist transitions: %w", err)
		}
	}

	s.logger.Printf("transitioned %d/%d samples of submission %s to %s",
		updated, len(sampleIDs), submissionID, target)
	return updated, nil
}

// Statistics summarizes one submission, or every stored submission
// when submissionID is empty.
func (s *Service) Statistics(ctx context.Context, submissionID string) (domain.Statistics, error) {
	if submissionID != "" {
		submission, err := s.store.GetSubmission(ctx, submissionID)
		if err != nil {
			return domain.Statistics{}, err
		}
		return s.stats.ForSubmission(submission), nil
	}

	submissions, err := s.store.ListSubmissions(ctx, store.ListQuery{})
	if err != nil {
		return domain.Statistics{}, err
	}
	return s.stats.ForSubmissions(submissions), nil
}

// GetSubmission loads a submission with its samples.
func (s *Service) GetSubmission(ctx context.Context, submissionID string) (*domain.Submission, error) {
	return s.store.GetSubmission(ctx, submissionID)
}

// ListSubmissions returns stored submissions, newest first, narrowed
// and paged by query.
func (s *Service) ListSubmissions(ctx context.Context, query store.ListQuery) ([]*domain.Submission, error) {
	return s.store.ListSubmissions(ctx, query)
}

// DeleteSubmission removes a submission and its samples.
func (s *Service) DeleteSubmission(ctx context.Context, submissionID string) error {
	if err := s.store.DeleteSubmission(ctx, submissionID); err != nil {
		return err
	}
	s.logger.Printf("deleted submission %s", submissionID)
	return nil
}

// newID builds an entity id: the given prefix plus twelve hex
// characters of a fresh UUID.
func newID(prefix string) string {
	compact := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + compact[:12]
}

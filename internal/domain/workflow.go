package domain

import "time"

// allowedTransitions encodes the sample workflow. The forward path is
// received -> processing -> sequenced -> completed. Any non-terminal
// state may fail or go on hold; on hold resumes only into processing.
var allowedTransitions = map[WorkflowStatus][]WorkflowStatus{
	StatusReceived:   {StatusProcessing, StatusFailed, StatusOnHold},
	StatusProcessing: {StatusSequenced, StatusFailed, StatusOnHold},
	StatusSequenced:  {StatusCompleted, StatusFailed, StatusOnHold},
	StatusOnHold:     {StatusProcessing, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether the workflow allows moving a sample
// from one status to another.
func CanTransition(from, to WorkflowStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Workflow advances samples through the lab pipeline, recording an
// audit note for every move.
type Workflow struct{}

// NewWorkflow returns the sample workflow state machine.
func NewWorkflow() *Workflow {
	return &Workflow{}
}

// Transition moves a sample to the target status. Disallowed moves
// return TransitionError and leave the sample untouched. Entering an
// active state stamps the processor and time.
func (w *Workflow) Transition(sample *Sample, to WorkflowStatus, actor string) error {
	from := sample.Processing.Status
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}

	now := time.Now().UTC()
	sample.Processing.Status = to
	sample.Processing.AddNote("status changed from "+string(from)+" to "+string(to), actor)

	switch to {
	case StatusProcessing, StatusSequenced, StatusCompleted:
		sample.Processing.ProcessedBy = actor
		sample.Processing.ProcessedAt = &now
	}
	sample.UpdatedAt = now
	return nil
}

// BatchTransition applies the same transition to each named sample of
// a submission. Unknown ids and disallowed moves are skipped, not
// fatal; the updated count is returned.
func (w *Workflow) BatchTransition(submission *Submission, sampleIDs []string, to WorkflowStatus, actor string) int {
	updated := 0
	for _, id := range sampleIDs {
		sample := submission.SampleByID(id)
		if sample == nil {
			continue
		}
		if err := w.Transition(sample, to, actor); err != nil {
			continue
		}
		updated++
	}
	if updated > 0 {
		submission.UpdatedAt = time.Now().UTC()
	}
	return updated
}

// IsSequencingReady reports whether a sample may enter the sequencer:
// QC must have passed, or passed with a warning, and the sample must
// sit in the processing state.
func IsSequencingReady(sample *Sample) bool {
	if sample.QC == nil || sample.Processing.Status != StatusProcessing {
		return false
	}
	return sample.QC.Status == QCPassed || sample.QC.Status == QCWarning
}

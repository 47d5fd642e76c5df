package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqbench/lab-intake/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fptr(v float64) *float64 { return &v }

func testSubmission(id, hash string) *domain.Submission {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Submission{
		ID: id,
		Metadata: domain.SubmissionMetadata{
			Identifier: "HTSF--JL-147",
			Requester:  "Jordan Avery",
		},
		Source: domain.PDFSource{
			FilePath:    "/submissions/" + id + ".pdf",
			ContentHash: hash,
			FileSize:    2048,
			ModifiedAt:  now,
			PageCount:   4,
		},
		Samples: []*domain.Sample{
			{
				ID:           id + "-smp-1",
				SubmissionID: id,
				Name:         "S1",
				Measurements: domain.Measurements{
					VolumeUL:  fptr(25.0),
					QubitConc: fptr(55.2),
				},
				Processing: domain.ProcessingInfo{Status: domain.StatusReceived},
				CreatedAt:  now,
				UpdatedAt:  now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_SaveAndGetSubmission(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := testSubmission("sub_1", "hash-a")
	require.NoError(t, s.SaveSubmission(ctx, original))

	loaded, err := s.GetSubmission(ctx, "sub_1")
	require.NoError(t, err)

	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.Metadata, loaded.Metadata)
	assert.Equal(t, "hash-a", loaded.Source.ContentHash)
	require.Len(t, loaded.Samples, 1)
	assert.Equal(t, "S1", loaded.Samples[0].Name)
	require.NotNil(t, loaded.Samples[0].Measurements.QubitConc)
	assert.InDelta(t, 55.2, *loaded.Samples[0].Measurements.QubitConc, 1e-9)
	assert.Equal(t, domain.StatusReceived, loaded.Samples[0].Processing.Status)
}

func TestStore_GetSubmissionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSubmission(context.Background(), "sub_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DuplicateContentHashRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSubmission(ctx, testSubmission("sub_1", "hash-a")))

	err := s.SaveSubmission(ctx, testSubmission("sub_2", "hash-a"))
	assert.ErrorIs(t, err, ErrDuplicateHash)
}

func TestStore_ForceImportedBypassesHashUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSubmission(ctx, testSubmission("sub_1", "hash-a")))

	forced := testSubmission("sub_2", "hash-a")
	forced.ForceImported = true
	require.NoError(t, s.SaveSubmission(ctx, forced))

	// The canonical lookup still resolves to the original.
	canonical, err := s.FindByContentHash(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", canonical.ID)

	loaded, err := s.GetSubmission(ctx, "sub_2")
	require.NoError(t, err)
	assert.True(t, loaded.ForceImported)
}

func TestStore_FindByContentHashNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindByContentHash(context.Background(), "hash-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateReplacesSamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	submission := testSubmission("sub_1", "hash-a")
	require.NoError(t, s.SaveSubmission(ctx, submission))

	submission.Samples = []*domain.Sample{
		{
			ID:           "sub_1-smp-2",
			SubmissionID: "sub_1",
			Name:         "S2",
			Processing:   domain.ProcessingInfo{Status: domain.StatusProcessing},
		},
	}
	require.NoError(t, s.SaveSubmission(ctx, submission))

	loaded, err := s.GetSubmission(ctx, "sub_1")
	require.NoError(t, err)
	require.Len(t, loaded.Samples, 1)
	assert.Equal(t, "S2", loaded.Samples[0].Name)
}

func TestStore_DeleteSubmissionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSubmission(ctx, testSubmission("sub_1", "hash-a")))
	require.NoError(t, s.DeleteSubmission(ctx, "sub_1"))

	_, err := s.GetSubmission(ctx, "sub_1")
	assert.ErrorIs(t, err, ErrNotFound)

	// The freed hash can be reused by a fresh ingestion.
	require.NoError(t, s.SaveSubmission(ctx, testSubmission("sub_3", "hash-a")))
}

func TestStore_DeleteSubmissionNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteSubmission(context.Background(), "sub_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testSubmission("sub_1", "hash-a")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	require.NoError(t, s.SaveSubmission(ctx, older))
	require.NoError(t, s.SaveSubmission(ctx, testSubmission("sub_2", "hash-b")))

	submissions, err := s.ListSubmissions(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, submissions, 2)

	// Newest first.
	assert.Equal(t, "sub_2", submissions[0].ID)
	assert.Equal(t, "sub_1", submissions[1].ID)
	require.Len(t, submissions[1].Samples, 1)

	count, err := s.CountSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_ListSubmissionsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"sub_1", "sub_2", "sub_3"} {
		submission := testSubmission(id, "hash-"+id)
		submission.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveSubmission(ctx, submission))
	}

	page, err := s.ListSubmissions(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "sub_3", page[0].ID)
	assert.Equal(t, "sub_2", page[1].ID)

	rest, err := s.ListSubmissions(ctx, ListQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "sub_1", rest[0].ID)

	// Offset without limit still applies.
	tail, err := s.ListSubmissions(ctx, ListQuery{Offset: 1})
	require.NoError(t, err)
	require.Len(t, tail, 2)
}

func TestStore_ListSubmissionsSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testSubmission("sub_1", "hash-a")
	require.NoError(t, s.SaveSubmission(ctx, first))

	second := testSubmission("sub_2", "hash-b")
	second.Metadata.Identifier = "HTSF--MC-003"
	second.Metadata.Requester = "Priya Raman"
	require.NoError(t, s.SaveSubmission(ctx, second))

	byIdentifier, err := s.ListSubmissions(ctx, ListQuery{Search: "MC-003"})
	require.NoError(t, err)
	require.Len(t, byIdentifier, 1)
	assert.Equal(t, "sub_2", byIdentifier[0].ID)

	// Requester matches case-insensitively.
	byRequester, err := s.ListSubmissions(ctx, ListQuery{Search: "jordan"})
	require.NoError(t, err)
	require.Len(t, byRequester, 1)
	assert.Equal(t, "sub_1", byRequester[0].ID)

	none, err := s.ListSubmissions(ctx, ListQuery{Search: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

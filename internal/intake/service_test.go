package intake

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqbench/lab-intake/internal/domain"
	"github.com/seqbench/lab-intake/internal/extract"
	"github.com/seqbench/lab-intake/internal/store"
)

func fptr(v float64) *float64 { return &v }

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := log.New(io.Discard, "", 0)
	return NewService(st, 10*1024*1024, domain.DefaultThresholds(), logger), st
}

func seedSubmission(t *testing.T, st *store.Store, id, hash string, samples ...*domain.Sample) *domain.Submission {
	t.Helper()
	now := time.Now().UTC()
	submission := &domain.Submission{
		ID:        id,
		Source:    domain.PDFSource{ContentHash: hash, FileSize: 1024, PageCount: 2},
		Samples:   samples,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.SaveSubmission(context.Background(), submission))
	return submission
}

func receivedSample(id string, measurements domain.Measurements) *domain.Sample {
	return &domain.Sample{
		ID:           id,
		Name:         strings.ToUpper(strings.TrimPrefix(id, "smp_")),
		Measurements: measurements,
		Processing:   domain.ProcessingInfo{Status: domain.StatusReceived},
	}
}

func TestService_EvaluateQC(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedSubmission(t, st, "sub_1", "hash-a",
		receivedSample("smp_a", domain.Measurements{
			VolumeUL:      fptr(25.0),
			QubitConc:     fptr(55.2),
			RatioA260A280: fptr(2.0),
		}),
		receivedSample("smp_b", domain.Measurements{
			VolumeUL:      fptr(25.0),
			QubitConc:     fptr(5.0),
			RatioA260A280: fptr(1.9),
		}),
	)

	summary, err := service.EvaluateQC(ctx, "sub_1", domain.Thresholds{}, "tech-1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Evaluated)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Warning)

	// Results are persisted and a second pass skips everything.
	loaded, err := service.GetSubmission(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Samples[0].QC)
	assert.Equal(t, domain.QCPassed, loaded.Samples[0].QC.Status)

	again, err := service.EvaluateQC(ctx, "sub_1", domain.Thresholds{}, "tech-2")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Evaluated)
	assert.Equal(t, 2, again.Skipped)
}

func TestService_EvaluateQCPerCallThresholds(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	// Fails the default concentration limit but clears a relaxed one.
	seedSubmission(t, st, "sub_1", "hash-a",
		receivedSample("smp_a", domain.Measurements{
			VolumeUL:      fptr(25.0),
			QubitConc:     fptr(5.0),
			RatioA260A280: fptr(1.9),
		}),
	)

	summary, err := service.EvaluateQC(ctx, "sub_1",
		domain.Thresholds{MinConcentration: 2.0}, "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 0, summary.Warning)

	// Unset fields inherit the service defaults.
	loaded, err := service.GetSubmission(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Samples[0].QC)
	assert.True(t, loaded.Samples[0].QC.PassedVolume)
}

func TestService_EvaluateQCUnknownSubmission(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.EvaluateQC(context.Background(), "sub_missing", domain.Thresholds{}, "tech-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_TransitionSamples(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedSubmission(t, st, "sub_1", "hash-a",
		receivedSample("smp_a", domain.Measurements{}),
		receivedSample("smp_b", domain.Measurements{}),
	)

	updated, err := service.TransitionSamples(ctx, "sub_1",
		[]string{"smp_a", "smp_unknown"}, "processing", "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	loaded, err := service.GetSubmission(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, loaded.SampleByID("smp_a").Processing.Status)
	assert.Equal(t, domain.StatusReceived, loaded.SampleByID("smp_b").Processing.Status)
	assert.NotEmpty(t, loaded.SampleByID("smp_a").Processing.Notes)
}

func TestService_TransitionSamplesInvalidStatus(t *testing.T) {
	service, st := newTestService(t)
	seedSubmission(t, st, "sub_1", "hash-a")

	_, err := service.TransitionSamples(context.Background(), "sub_1",
		[]string{"smp_a"}, "archived", "tech-1")
	assert.Error(t, err)
}

func TestService_Statistics(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedSubmission(t, st, "sub_1", "hash-a",
		receivedSample("smp_a", domain.Measurements{QubitConc: fptr(10.0)}))
	seedSubmission(t, st, "sub_2", "hash-b",
		receivedSample("smp_b", domain.Measurements{QubitConc: fptr(30.0)}))

	global, err := service.Statistics(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, global.TotalSubmissions)
	assert.Equal(t, 2, global.TotalSamples)
	require.NotNil(t, global.AverageConcentration)
	assert.InDelta(t, 20.0, *global.AverageConcentration, 1e-9)

	single, err := service.Statistics(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, 1, single.TotalSamples)
	require.NotNil(t, single.AverageConcentration)
	assert.InDelta(t, 10.0, *single.AverageConcentration, 1e-9)
}

func TestService_DeleteSubmission(t *testing.T) {
	service, st := newTestService(t)
	ctx := context.Background()

	seedSubmission(t, st, "sub_1", "hash-a")
	require.NoError(t, service.DeleteSubmission(ctx, "sub_1"))

	_, err := service.GetSubmission(ctx, "sub_1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, service.DeleteSubmission(ctx, "sub_1"), store.ErrNotFound)
}

func TestNewID(t *testing.T) {
	id := newID("sub_")
	assert.True(t, strings.HasPrefix(id, "sub_"))
	assert.Len(t, id, len("sub_")+12)
	assert.NotEqual(t, id, newID("sub_"))
}

func TestMetadataFromFields(t *testing.T) {
	fields := map[string]string{
		extract.FieldIdentifier: "HTSF--JL-147",
		extract.FieldRequester:  "Jordan Avery",
		extract.FieldHumanDNA:   "No",
		extract.FieldLab:        "Mitchell Lab",
	}

	metadata := metadataFromFields(fields)

	assert.Equal(t, "HTSF--JL-147", metadata.Identifier)
	assert.Equal(t, "Jordan Avery", metadata.Requester)
	assert.Equal(t, "Mitchell Lab", metadata.Lab)
	assert.Equal(t, "No", metadata.HumanDNA)
	require.NotNil(t, metadata.ContainsHumanDNA)
	assert.False(t, *metadata.ContainsHumanDNA)

	// Unanswered question leaves the flag unset.
	empty := metadataFromFields(map[string]string{})
	assert.Nil(t, empty.ContainsHumanDNA)
}

package coordinator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/licences"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/sources/oag"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	coord    *Coordinator
	resolver *mockResolver
	records  *fakeRecords
	links    *fakeLinks
	metrics  *observability.Metrics
	job      *domain.SpreadsheetJob
}

func newTestEnv(t *testing.T, namespace string) *testEnv {
	t.Helper()
	env := &testEnv{
		resolver: &mockResolver{},
		records:  &fakeRecords{},
		links:    &fakeLinks{},
		metrics:  observability.NewMetrics(namespace),
		job: &domain.SpreadsheetJob{
			ID:       uuid.New(),
			Filename: "grants.csv",
			Status:   domain.JobStatusProcessing,
		},
	}
	env.coord = New(Config{}, env.resolver, env.records, env.links, env.metrics, zerolog.Nop())
	env.coord.now = func() time.Time { return fixedNow }
	return env
}

func (e *testEnv) newRecord(pmcid, pmid, doi string) *domain.Record {
	rec := domain.NewRecord(e.job.ID, len(e.records.recs)+1)
	rec.PMCID, rec.PMID, rec.DOI = pmcid, pmid, doi
	rec.EPMCComplete = true
	rec.InEPMC = domain.BoolPtr(true)
	RegisterWithOAG(rec, NewRegister())
	e.records.add(rec)
	return rec
}

func successResult(id, idType, licence, description string, aam *bool) oag.Result {
	return oag.Result{
		Identifier: oag.Identifiers{Items: []oag.Identifier{{ID: id, Type: idType}}},
		License: []oag.Licence{{
			Type: licence,
			Provenance: oag.LicenceProvenance{
				Description:              description,
				AcceptedAuthorManuscript: aam,
			},
		}},
	}
}

func errorResult(id, idType, message string) oag.Result {
	return oag.Result{
		Identifier: oag.Identifiers{Items: []oag.Identifier{{ID: id, Type: idType}}, Single: true},
		Error:      message,
	}
}

func TestNew_DefaultStartDelay(t *testing.T) {
	c := New(Config{}, nil, nil, nil, nil, zerolog.Nop())
	assert.Equal(t, DefaultStartDelay, c.startDelay)

	c = New(Config{StartDelay: time.Minute}, nil, nil, nil, nil, zerolog.Nop())
	assert.Equal(t, time.Minute, c.startDelay)
}

func TestDispatch(t *testing.T) {
	t.Run("empty list is a no-op", func(t *testing.T) {
		env := newTestEnv(t, "test_coord_dispatch_empty")

		batchID, err := env.coord.Dispatch(context.Background(), nil, env.job)
		require.NoError(t, err)
		assert.Empty(t, batchID)
		env.resolver.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, env.links.links)
	})

	t.Run("submits delayed batch and links it", func(t *testing.T) {
		env := newTestEnv(t, "test_coord_dispatch_ok")
		items := []domain.LookupItem{{ID: "PMC1", Type: domain.KindPMCID}, {ID: "10.1/a", Type: domain.KindDOI}}
		env.resolver.On("Submit", mock.Anything, "", items, fixedNow.Add(DefaultStartDelay)).
			Return("licence-batch-01HX", nil)

		batchID, err := env.coord.Dispatch(context.Background(), items, env.job)
		require.NoError(t, err)
		assert.Equal(t, "licence-batch-01HX", batchID)

		require.Len(t, env.links.links, 1)
		assert.Equal(t, env.job.ID, env.links.links[0].SpreadsheetID)
		assert.Equal(t, "licence-batch-01HX", env.links.links[0].BatchID)
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.LicenceBatchesDispatched))
		assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.LicenceItemsDispatched))
		env.resolver.AssertExpectations(t)
	})

	t.Run("resolver failure is returned", func(t *testing.T) {
		env := newTestEnv(t, "test_coord_dispatch_fail")
		env.resolver.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("temporal unavailable"))

		_, err := env.coord.Dispatch(context.Background(), []domain.LookupItem{{ID: "1", Type: domain.KindPMID}}, env.job)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "temporal unavailable")
		assert.Empty(t, env.links.links)
	})
}

func TestRerun(t *testing.T) {
	t.Run("derives the batch ID from the parent", func(t *testing.T) {
		env := newTestEnv(t, "test_coord_rerun")
		items := []domain.LookupItem{{ID: "10.1/a", Type: domain.KindDOI}}
		want := RerunBatchID("licence-batch-01HX", items)
		env.resolver.On("Submit", mock.Anything, want, items, fixedNow.Add(DefaultStartDelay)).
			Return(want, nil).Once()

		batchID, err := env.coord.Rerun(context.Background(), "licence-batch-01HX", items, env.job)
		require.NoError(t, err)
		assert.Equal(t, want, batchID)
		require.Len(t, env.links.links, 1)
		assert.Equal(t, want, env.links.links[0].BatchID)
		env.resolver.AssertExpectations(t)
	})

	t.Run("empty list is a no-op", func(t *testing.T) {
		env := newTestEnv(t, "test_coord_rerun_empty")

		batchID, err := env.coord.Rerun(context.Background(), "licence-batch-01HX", nil, env.job)
		require.NoError(t, err)
		assert.Empty(t, batchID)
		assert.Empty(t, env.links.links)
	})
}

func TestRerunBatchID(t *testing.T) {
	doi := domain.LookupItem{ID: "10.1/a", Type: domain.KindDOI}
	pmid := domain.LookupItem{ID: "42", Type: domain.KindPMID}

	id := RerunBatchID("licence-batch-01HX", []domain.LookupItem{doi, pmid})
	assert.True(t, strings.HasPrefix(id, "licence-batch-01HX-rerun-"))
	assert.Equal(t, id, RerunBatchID("licence-batch-01HX", []domain.LookupItem{pmid, doi}))
	assert.NotEqual(t, id, RerunBatchID("licence-batch-01HY", []domain.LookupItem{doi, pmid}))
	assert.NotEqual(t, id, RerunBatchID("licence-batch-01HX", []domain.LookupItem{doi}))
}

func TestHandleResult_Success(t *testing.T) {
	env := newTestEnv(t, "test_coord_success")
	rec := env.newRecord("PMC4219345", "25355497", "")
	rec.InOAG = true
	rec.OAGPMCID = domain.OAGSent
	rec.AddProvenance(domain.ActorProcessor, "Found fulltext XML in EPMC")

	rerun := NewRegister()
	err := env.coord.HandleResult(context.Background(),
		successResult("PMC4219345", "pmcid", "cc-by", "License found in EPMC", nil), env.job, rerun)
	require.NoError(t, err)

	assert.Equal(t, licences.CCBy, rec.LicenceType)
	assert.Equal(t, domain.LicenceSourceEPMC, rec.LicenceSource)
	assert.Equal(t, domain.OAGSuccess, rec.OAGPMCID)
	assert.True(t, rec.OAGComplete)
	assert.False(t, rec.InOAG)
	require.Len(t, rec.Provenance, 2)
	assert.Equal(t, domain.ActorOAG, rec.Provenance[1].By)
	assert.Equal(t, "PMC4219345 - License found in EPMC", rec.Provenance[1].What)
	assert.True(t, domain.IsTrue(rec.StandardCompliance))
	assert.Zero(t, rerun.Len())
	assert.Equal(t, 1, env.records.saves)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.CallbackResults.WithLabelValues(outcomeSuccess)))
}

func TestHandleResult_PublisherSource(t *testing.T) {
	env := newTestEnv(t, "test_coord_publisher")
	rec := env.newRecord("", "", "10.1/a")

	err := env.coord.HandleResult(context.Background(),
		successResult("10.1/a", "doi", "cc-by-nc", "publisher page", nil), env.job, NewRegister())
	require.NoError(t, err)

	assert.Equal(t, domain.LicenceSourcePublisher, rec.LicenceSource)
	assert.Equal(t, licences.CCByNC, rec.LicenceType)
	assert.Equal(t, domain.OAGSuccess, rec.OAGDOI)
}

func TestHandleResult_EPMCAlias(t *testing.T) {
	env := newTestEnv(t, "test_coord_alias")
	rec := env.newRecord("PMC1", "", "")

	err := env.coord.HandleResult(context.Background(),
		successResult("PMC1", "epmc", "cc-by", "found", nil), env.job, NewRegister())
	require.NoError(t, err)

	assert.Equal(t, domain.OAGSuccess, rec.OAGPMCID)
	assert.Equal(t, domain.LicenceSourceEPMC, rec.LicenceSource)
}

func TestHandleResult_AAM(t *testing.T) {
	t.Run("sets aam from licence provenance", func(t *testing.T) {
		env := newTestEnv(t, "test_coord_aam")
		rec := env.newRecord("PMC1", "", "")

		err := env.coord.HandleResult(context.Background(),
			successResult("PMC1", "pmcid", "cc-by", "found", domain.BoolPtr(true)), env.job, NewRegister())
		require.NoError(t, err)

		assert.True(t, domain.IsTrue(rec.AAM))
		assert.True(t, rec.AAMFromEPMC)
		assert.Equal(t, "Detected AAM status from EPMC web page", rec.Provenance[0].What)
	})

	t.Run("xml aam is not overridden", func(t *testing.T) {
		env := newTestEnv(t, "test_coord_aam_xml")
		rec := env.newRecord("PMC1", "", "")
		rec.AAMFromXML = true
		rec.AAM = domain.BoolPtr(false)

		err := env.coord.HandleResult(context.Background(),
			successResult("PMC1", "pmcid", "cc-by", "found", domain.BoolPtr(true)), env.job, NewRegister())
		require.NoError(t, err)

		assert.False(t, domain.IsTrue(rec.AAM))
		assert.False(t, rec.AAMFromEPMC)
	})
}

func TestHandleResult_AlreadyLicensed(t *testing.T) {
	env := newTestEnv(t, "test_coord_licensed")
	rec := env.newRecord("PMC1", "", "")
	rec.LicenceType = licences.CCBy
	rec.LicenceSource = domain.LicenceSourceEPMCXML

	err := env.coord.HandleResult(context.Background(),
		successResult("PMC1", "pmcid", "cc-by-nd", "found", nil), env.job, NewRegister())
	require.NoError(t, err)

	assert.Equal(t, licences.CCBy, rec.LicenceType)
	assert.Equal(t, domain.LicenceSourceEPMCXML, rec.LicenceSource)
	assert.True(t, rec.OAGComplete)
	assert.Empty(t, rec.Provenance)
}

func TestHandleResult_ErrorEscalates(t *testing.T) {
	env := newTestEnv(t, "test_coord_error")
	rec := env.newRecord("PMC1", "123", "10.1/a")

	rerun := NewRegister()
	err := env.coord.HandleResult(context.Background(), errorResult("PMC1", "pmcid", "upstream timeout"), env.job, rerun)
	require.NoError(t, err)

	assert.Equal(t, domain.OAGError, rec.OAGPMCID)
	assert.Equal(t, domain.OAGSent, rec.OAGDOI)
	assert.True(t, rec.InOAG)
	assert.False(t, rec.OAGComplete)
	assert.Equal(t, []domain.LookupItem{{ID: "10.1/a", Type: domain.KindDOI}}, rerun.Items())
	assert.Equal(t, "PMC1 - upstream timeout", rec.Provenance[0].What)
}

func TestHandleResult_FTOWithoutFallbackCompletes(t *testing.T) {
	env := newTestEnv(t, "test_coord_fto")
	rec := env.newRecord("", "123", "")

	rerun := NewRegister()
	err := env.coord.HandleResult(context.Background(),
		successResult("123", "pmid", oag.LicenceFailedToObtain, "no licence found", nil), env.job, rerun)
	require.NoError(t, err)

	assert.Equal(t, domain.OAGFTO, rec.OAGPMID)
	assert.True(t, rec.OAGComplete)
	assert.Empty(t, rec.LicenceType)
	assert.Zero(t, rerun.Len())
	assert.Equal(t, "123 - no licence found", rec.Provenance[0].What)
}

func TestHandleResult_UntypedInfersKind(t *testing.T) {
	env := newTestEnv(t, "test_coord_untyped")
	rec := env.newRecord("", "", "10.1/a")

	err := env.coord.HandleResult(context.Background(),
		successResult("10.1/a", "", "cc-by", "found", nil), env.job, NewRegister())
	require.NoError(t, err)

	assert.Equal(t, domain.OAGSuccess, rec.OAGDOI)
	assert.Equal(t, domain.LicenceSourcePublisher, rec.LicenceSource)
}

func TestHandleResult_AllMatchingRecordsUpdated(t *testing.T) {
	env := newTestEnv(t, "test_coord_multi")
	a := env.newRecord("PMC1", "", "")
	b := env.newRecord("PMC1", "", "")

	err := env.coord.HandleResult(context.Background(),
		successResult("PMC1", "pmcid", "cc-by", "found", nil), env.job, NewRegister())
	require.NoError(t, err)

	assert.Equal(t, licences.CCBy, a.LicenceType)
	assert.Equal(t, licences.CCBy, b.LicenceType)
	assert.Equal(t, 2, env.records.saves)
}

func TestHandleResult_Unrelatable(t *testing.T) {
	env := newTestEnv(t, "test_coord_unrelatable")
	env.newRecord("PMC1", "", "")

	t.Run("no identifier", func(t *testing.T) {
		err := env.coord.HandleResult(context.Background(), oag.Result{}, env.job, NewRegister())
		require.NoError(t, err)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		err := env.coord.HandleResult(context.Background(),
			successResult("PMC999", "pmcid", "cc-by", "found", nil), env.job, NewRegister())
		require.NoError(t, err)
	})

	assert.Zero(t, env.records.saves)
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.CallbackResults.WithLabelValues(outcomeUnmatched)))
}

func TestHandleResult_SaveFailureReturned(t *testing.T) {
	env := newTestEnv(t, "test_coord_save_fail")
	env.newRecord("PMC1", "", "")
	env.newRecord("PMC1", "", "")
	env.records.saveErr = errors.New("connection reset")

	err := env.coord.HandleResult(context.Background(),
		successResult("PMC1", "pmcid", "cc-by", "found", nil), env.job, NewRegister())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHandleResult_ReplayedResultSkipped(t *testing.T) {
	env := newTestEnv(t, "test_coord_replay")
	rec := env.newRecord("PMC1", "", "10.1/a")
	result := errorResult("PMC1", "pmcid", "upstream timeout")

	first := NewRegister()
	require.NoError(t, env.coord.HandleResult(context.Background(), result, env.job, first))
	require.Len(t, rec.Provenance, 1)

	replay := NewRegister()
	require.NoError(t, env.coord.HandleResult(context.Background(), result, env.job, replay))

	assert.Len(t, rec.Provenance, 1)
	assert.Equal(t, domain.OAGError, rec.OAGPMCID)
	assert.Equal(t, domain.OAGSent, rec.OAGDOI)
	assert.Equal(t, first.Items(), replay.Items())
	assert.Equal(t, 1, env.records.saves)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.CallbackResults.WithLabelValues(outcomeReplayed)))
}

func TestHandleResult_ReplayedSuccessLeavesRecord(t *testing.T) {
	env := newTestEnv(t, "test_coord_replay_success")
	rec := env.newRecord("PMC1", "", "")
	result := successResult("PMC1", "pmcid", "cc-by", "found", domain.BoolPtr(true))

	require.NoError(t, env.coord.HandleResult(context.Background(), result, env.job, NewRegister()))
	require.NoError(t, env.coord.HandleResult(context.Background(), result, env.job, NewRegister()))

	assert.Len(t, rec.Provenance, 2)
	assert.Equal(t, 1, env.records.saves)
}

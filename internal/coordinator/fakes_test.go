package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/repository"
)

// ---------------------------------------------------------------------------
// Fake: RecordRepository
// ---------------------------------------------------------------------------

type fakeRecords struct {
	mu      sync.Mutex
	recs    []*domain.Record
	saves   int
	saveErr error
}

func (f *fakeRecords) add(recs ...*domain.Record) {
	f.recs = append(f.recs, recs...)
}

func (f *fakeRecords) Create(_ context.Context, rec *domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeRecords) BulkCreate(_ context.Context, recs []*domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, recs...)
	return nil
}

func (f *fakeRecords) Get(_ context.Context, id uuid.UUID) (*domain.Record, error) {
	for _, r := range f.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.NewNotFoundError("record", id.String())
}

func (f *fakeRecords) Save(_ context.Context, _ *domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	return nil
}

func (f *fakeRecords) ListByUpload(_ context.Context, uploadID uuid.UUID) ([]*domain.Record, error) {
	var out []*domain.Record
	for _, r := range f.recs {
		if r.UploadID == uploadID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) CountByUpload(ctx context.Context, uploadID uuid.UUID) (int, error) {
	recs, _ := f.ListByUpload(ctx, uploadID)
	return len(recs), nil
}

func (f *fakeRecords) GetByIdentifier(_ context.Context, identifier string, uploadID uuid.UUID, kind domain.IdentifierKind) ([]*domain.Record, error) {
	var out []*domain.Record
	for _, r := range f.recs {
		if r.UploadID != uploadID {
			continue
		}
		if kind != "" {
			if r.Identifier(kind) == identifier {
				out = append(out, r)
			}
			continue
		}
		if _, ok := r.KindOf(identifier); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) UploadCompleteness(_ context.Context, uploadID uuid.UUID) (*repository.Completeness, error) {
	c := &repository.Completeness{}
	for _, r := range f.recs {
		if r.UploadID != uploadID {
			continue
		}
		c.Total++
		if r.EPMCComplete {
			c.EPMCComplete++
		}
		if r.OAGComplete {
			c.OAGComplete++
		}
	}
	return c, nil
}

func (f *fakeRecords) ListDuplicateIdentifiers(context.Context, uuid.UUID) (repository.Duplicates, error) {
	return repository.Duplicates{}, nil
}

// ---------------------------------------------------------------------------
// Fake: LinkRepository
// ---------------------------------------------------------------------------

type fakeLinks struct {
	links []*domain.AsyncLicenceLink
}

func (f *fakeLinks) Create(_ context.Context, link *domain.AsyncLicenceLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	f.links = append(f.links, link)
	return nil
}

func (f *fakeLinks) ByBatchID(_ context.Context, batchID string) ([]*domain.AsyncLicenceLink, error) {
	var out []*domain.AsyncLicenceLink
	for _, l := range f.links {
		if l.BatchID == batchID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinks) ByUploadID(_ context.Context, uploadID uuid.UUID) (*domain.AsyncLicenceLink, error) {
	for _, l := range f.links {
		if l.SpreadsheetID == uploadID {
			return l, nil
		}
	}
	return nil, domain.NewNotFoundError("link", uploadID.String())
}

// ---------------------------------------------------------------------------
// Fake: JobRepository
// ---------------------------------------------------------------------------

type fakeJobs struct {
	jobs    map[uuid.UUID]*domain.SpreadsheetJob
	updates int
}

func newFakeJobs(jobs ...*domain.SpreadsheetJob) *fakeJobs {
	f := &fakeJobs{jobs: make(map[uuid.UUID]*domain.SpreadsheetJob)}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeJobs) Create(_ context.Context, job *domain.SpreadsheetJob) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobs) Get(_ context.Context, id uuid.UUID) (*domain.SpreadsheetJob, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, domain.NewNotFoundError("job", id.String())
}

func (f *fakeJobs) Update(_ context.Context, job *domain.SpreadsheetJob) error {
	f.updates++
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobs) ListByStatus(_ context.Context, status domain.JobStatus) ([]*domain.SpreadsheetJob, error) {
	var out []*domain.SpreadsheetJob
	for _, j := range f.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobs) QueueLength(context.Context, uuid.UUID, int) (int, error) {
	return 0, nil
}

// ---------------------------------------------------------------------------
// Mock: Resolver
// ---------------------------------------------------------------------------

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Submit(ctx context.Context, batchID string, items []domain.LookupItem, startAt time.Time) (string, error) {
	args := m.Called(ctx, batchID, items, startAt)
	return args.String(0), args.Error(1)
}

// ---------------------------------------------------------------------------
// Fake: JobLocker
// ---------------------------------------------------------------------------

type fakeLocker struct {
	locked   []uuid.UUID
	unlocked int
	err      error
}

func (f *fakeLocker) LockJob(_ context.Context, jobID uuid.UUID) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, jobID)
	return func() { f.unlocked++ }, nil
}

package orchestrator

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/coordinator"
	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/repository"
	"github.com/helixir/oa-compliance-service/internal/temporal"
)

// ---------------------------------------------------------------------------
// Fake: JobRepository
// ---------------------------------------------------------------------------

type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*domain.SpreadsheetJob
	order     []uuid.UUID
	statuses  []domain.JobStatus
	queueLen  int
	createErr error
	updateErr error
}

func newFakeJobs(jobs ...*domain.SpreadsheetJob) *fakeJobs {
	f := &fakeJobs{jobs: make(map[uuid.UUID]*domain.SpreadsheetJob)}
	for _, j := range jobs {
		f.jobs[j.ID] = j
		f.order = append(f.order, j.ID)
	}
	return f
}

func (f *fakeJobs) Create(_ context.Context, job *domain.SpreadsheetJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.jobs[job.ID] = job
	f.order = append(f.order, job.ID)
	return nil
}

func (f *fakeJobs) Get(_ context.Context, id uuid.UUID) (*domain.SpreadsheetJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, domain.NewNotFoundError("job", id.String())
}

func (f *fakeJobs) Update(_ context.Context, job *domain.SpreadsheetJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.jobs[job.ID] = job
	f.statuses = append(f.statuses, job.Status)
	return nil
}

func (f *fakeJobs) ListByStatus(_ context.Context, status domain.JobStatus) ([]*domain.SpreadsheetJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SpreadsheetJob
	for _, id := range f.order {
		if j := f.jobs[id]; j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobs) QueueLength(_ context.Context, _ uuid.UUID, max int) (int, error) {
	if f.queueLen > max {
		return max, nil
	}
	return f.queueLen, nil
}

// ---------------------------------------------------------------------------
// Fake: RecordRepository
// ---------------------------------------------------------------------------

type fakeRecords struct {
	mu      sync.Mutex
	recs    []*domain.Record
	bulkErr error
	listErr error
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
	if f.bulkErr != nil {
		return f.bulkErr
	}
	f.recs = append(f.recs, recs...)
	return nil
}

func (f *fakeRecords) Get(_ context.Context, id uuid.UUID) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.NewNotFoundError("record", id.String())
}

func (f *fakeRecords) Save(context.Context, *domain.Record) error {
	return nil
}

func (f *fakeRecords) ListByUpload(_ context.Context, uploadID uuid.UUID) ([]*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*domain.Record
	for _, r := range f.recs {
		if r.UploadID == uploadID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) CountByUpload(ctx context.Context, uploadID uuid.UUID) (int, error) {
	recs, err := f.ListByUpload(ctx, uploadID)
	return len(recs), err
}

func (f *fakeRecords) GetByIdentifier(context.Context, string, uuid.UUID, domain.IdentifierKind) ([]*domain.Record, error) {
	return nil, nil
}

func (f *fakeRecords) UploadCompleteness(_ context.Context, uploadID uuid.UUID) (*repository.Completeness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
// Fake: UploadStore
// ---------------------------------------------------------------------------

type fakeUploads struct {
	mu      sync.Mutex
	files   map[uuid.UUID][]byte
	saveErr error
	removed []uuid.UUID
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{files: make(map[uuid.UUID][]byte)}
}

func (f *fakeUploads) put(id uuid.UUID, content string) {
	f.files[id] = []byte(content)
}

func (f *fakeUploads) Save(_ context.Context, id uuid.UUID, content io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id] = data
	return nil
}

func (f *fakeUploads) Open(id uuid.UUID) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[id]
	if !ok {
		return nil, domain.NewNotFoundError("upload", id.String())
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeUploads) Remove(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, id)
	f.removed = append(f.removed, id)
	return nil
}

// ---------------------------------------------------------------------------
// Fake: RecordProcessor
// ---------------------------------------------------------------------------

type fakePipeline struct {
	mu        sync.Mutex
	processed int
	fn        func(rec *domain.Record, register *coordinator.Register) error
}

func (f *fakePipeline) ProcessRecord(_ context.Context, _ *domain.SpreadsheetJob, rec *domain.Record, register *coordinator.Register) error {
	f.mu.Lock()
	f.processed++
	f.mu.Unlock()
	if f.fn == nil {
		return nil
	}
	return f.fn(rec, register)
}

// ---------------------------------------------------------------------------
// Fake: DuplicateChecker, Dispatcher, CompletionChecker
// ---------------------------------------------------------------------------

type fakeDedup struct {
	calls int
	err   error
}

func (f *fakeDedup) Check(context.Context, uuid.UUID) (int, error) {
	f.calls++
	return 0, f.err
}

type fakeDispatcher struct {
	items []domain.LookupItem
	calls int
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, items []domain.LookupItem, _ *domain.SpreadsheetJob) (string, error) {
	f.calls++
	f.items = append(f.items, items...)
	if f.err != nil {
		return "", f.err
	}
	return "batch-1", nil
}

// ---------------------------------------------------------------------------
// Fake: JobLocker
// ---------------------------------------------------------------------------

type fakeLocker struct {
	locked   []uuid.UUID
	unlocked int
	err      error
	onLock   func()
}

func (f *fakeLocker) LockJob(_ context.Context, jobID uuid.UUID) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, jobID)
	if f.onLock != nil {
		f.onLock()
	}
	return func() { f.unlocked++ }, nil
}

// ---------------------------------------------------------------------------
// Fakes: licence batch lookup
// ---------------------------------------------------------------------------

type fakeLinks struct {
	links map[uuid.UUID]string
}

func (f *fakeLinks) Create(context.Context, *domain.AsyncLicenceLink) error { return nil }

func (f *fakeLinks) ByBatchID(context.Context, string) ([]*domain.AsyncLicenceLink, error) {
	return nil, nil
}

func (f *fakeLinks) ByUploadID(_ context.Context, uploadID uuid.UUID) (*domain.AsyncLicenceLink, error) {
	if batchID, ok := f.links[uploadID]; ok {
		return &domain.AsyncLicenceLink{SpreadsheetID: uploadID, BatchID: batchID}, nil
	}
	return nil, domain.NewNotFoundError("licence link", uploadID.String())
}

type fakeBatches struct {
	progress map[string]*temporal.BatchProgress
	err      error
}

func (f *fakeBatches) BatchProgress(_ context.Context, batchID string) (*temporal.BatchProgress, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.progress[batchID]; ok {
		return p, nil
	}
	return nil, &temporal.TemporalError{Op: "BatchProgress", Kind: temporal.ErrWorkflowNotFound, BatchID: batchID}
}

// ---------------------------------------------------------------------------
// Recording notifier
// ---------------------------------------------------------------------------

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Notify(_ context.Context, eventType string, _ *domain.SpreadsheetJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return nil
}

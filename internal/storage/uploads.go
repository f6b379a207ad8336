// Package storage keeps the raw spreadsheets submitted by users.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// UploadStore stores each upload as <dir>/<job id>.csv.
type UploadStore struct {
	dir string
}

// NewUploadStore creates the upload directory if needed.
func NewUploadStore(dir string) (*UploadStore, error) {
	if dir == "" {
		return nil, domain.NewValidationError("upload_dir", "must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &UploadStore{dir: dir}, nil
}

// Path returns where the job's upload is kept.
func (s *UploadStore) Path(jobID uuid.UUID) string {
	return filepath.Join(s.dir, jobID.String()+".csv")
}

// Save writes content for the job. The file appears atomically: readers see
// either nothing or the complete upload.
func (s *UploadStore) Save(ctx context.Context, jobID uuid.UUID, content io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, jobID.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp upload: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: content}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write upload %s: %w", jobID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close upload %s: %w", jobID, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(jobID)); err != nil {
		return fmt.Errorf("store upload %s: %w", jobID, err)
	}
	return nil
}

// Open returns the job's upload. A missing upload is a domain.NotFoundError.
func (s *UploadStore) Open(jobID uuid.UUID) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewNotFoundError("upload", jobID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", jobID, err)
	}
	return f, nil
}

// Remove deletes the job's upload. Removing a missing upload is not an error.
func (s *UploadStore) Remove(jobID uuid.UUID) error {
	if err := os.Remove(s.Path(jobID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload %s: %w", jobID, err)
	}
	return nil
}

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

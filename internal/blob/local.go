// Package blob stores uploaded image and file field contents on the
// local filesystem. Files are keyed by table, record, and field so the
// record layer can clean up when records disappear; the stored column
// value is the returned storage path.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore keeps blobs under basePath/<table>/<recordID>/<field>/.
type LocalStore struct {
	basePath string
	maxSize  int64
}

func NewLocalStore(basePath string, maxSize int64) *LocalStore {
	return &LocalStore{basePath: basePath, maxSize: maxSize}
}

// Save writes the blob and returns its storage path. The original
// filename is kept for downloads but prefixed with a uuid so repeated
// uploads of the same name never collide.
func (s *LocalStore) Save(_ context.Context, table string, recordID int64, field, filename string, reader io.Reader) (string, error) {
	dir := filepath.Join(s.basePath, table, fmt.Sprintf("%d", recordID), field)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	stored := uuid.NewString() + "_" + filepath.Base(filename)
	storagePath := filepath.Join(dir, stored)
	f, err := os.Create(storagePath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	r := io.Reader(reader)
	if s.maxSize > 0 {
		r = io.LimitReader(reader, s.maxSize+1)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(storagePath)
		return "", fmt.Errorf("write file: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		os.Remove(storagePath)
		return "", fmt.Errorf("file exceeds %d bytes", s.maxSize)
	}

	return storagePath, nil
}

func (s *LocalStore) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	f, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, storagePath string) error {
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	// Clean up the field dir if empty
	_ = os.Remove(filepath.Dir(storagePath))
	return nil
}

// DeleteRecordFiles removes every blob stored for one record across all
// of its file fields.
func (s *LocalStore) DeleteRecordFiles(_ context.Context, table string, recordID int64) error {
	dir := filepath.Join(s.basePath, table, fmt.Sprintf("%d", recordID))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove record files: %w", err)
	}
	return nil
}

// Package files is the filesystem-backed blob store. Files live under
// <storageRoot>/<collection>/<recordId>/<sanitizedFilename>; the
// directory tree mirrors the persisted rows.
package files

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/bunbase/bunbase/internal/apperrors"
)

// Store persists uploaded files on the local filesystem.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// recordDir resolves the directory of one record's files.
func (s *Store) recordDir(collection, recordID string) string {
	return filepath.Join(s.root, collection, recordID)
}

// Save writes one uploaded file into the record's directory. The
// filename must already be sanitized.
func (s *Store) Save(collection, recordID, filename string, src io.Reader) error {
	dir := s.recordDir(collection, recordID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open returns the stored file and its guessed MIME type. The filename
// is reduced to its basename so request paths cannot traverse out of
// the record directory.
func (s *Store) Open(collection, recordID, filename string) (*os.File, string, error) {
	clean := filepath.Base(filename)
	path := filepath.Join(s.recordDir(collection, recordID), clean)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", apperrors.NotFound("file %q not found", clean)
		}
		return nil, "", fmt.Errorf("open file: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(clean))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, contentType, nil
}

// DeleteRecord removes a record's whole file directory.
func (s *Store) DeleteRecord(collection, recordID string) error {
	if err := os.RemoveAll(s.recordDir(collection, recordID)); err != nil {
		return fmt.Errorf("remove record files: %w", err)
	}
	return nil
}

// DeleteCollection removes every file stored for a collection.
func (s *Store) DeleteCollection(collection string) error {
	if err := os.RemoveAll(filepath.Join(s.root, collection)); err != nil {
		return fmt.Errorf("remove collection files: %w", err)
	}
	return nil
}

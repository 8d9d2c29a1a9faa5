package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ FileStore = (*FilesystemStore)(nil)

// FileStore abstracts the underlying storage for uploaded submission files.
type FileStore interface {
	// Save streams the supplied content into a new object under the given
	// category and returns its store-relative path.
	Save(ctx context.Context, category string, ext string, content io.Reader) (string, error)
	// Open returns a readable stream for the stored object at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Stat returns metadata for the stored object located at path.
	Stat(ctx context.Context, path string) (FileInfo, error)
	// Delete removes the stored object at path.
	Delete(ctx context.Context, path string) error
}

// FileInfo captures size and timestamp metadata for stored files.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FilesystemStore persists uploads on the local filesystem, organised by
// category and upload date.
type FilesystemStore struct {
	root string
	now  func() time.Time
}

// NewFilesystemStore initialises a filesystem-backed store rooted at dir.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure root directory: %w", err)
	}
	return &FilesystemStore{root: dir, now: time.Now}, nil
}

// Save writes the content to <category>/<year>/<month>/<day>/<uuid><ext>.
func (s *FilesystemStore) Save(_ context.Context, category string, ext string, content io.Reader) (string, error) {
	if s == nil {
		return "", errors.New("storage: store not initialised")
	}

	category = sanitizePathFragment(category)
	if category == "" {
		category = "uploads"
	}

	ext = strings.TrimSpace(strings.ToLower(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	now := s.now().UTC()
	dir := filepath.Join(s.root, category,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		fmt.Sprintf("%02d", now.Day()),
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}

	fullPath := filepath.Join(dir, uuid.NewString()+ext)

	fh, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}

	if _, err := io.Copy(fh, content); err != nil {
		_ = fh.Close()
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("storage: close file: %w", err)
	}

	return s.relative(fullPath), nil
}

// Open returns a reader for the stored file.
func (s *FilesystemStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	if s == nil {
		return nil, errors.New("storage: store not initialised")
	}
	fh, err := os.Open(s.absolute(path))
	if err != nil {
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	return fh, nil
}

// Stat returns file metadata for the stored object.
func (s *FilesystemStore) Stat(_ context.Context, path string) (FileInfo, error) {
	if s == nil {
		return FileInfo{}, errors.New("storage: store not initialised")
	}
	fullPath := s.absolute(path)
	info, err := os.Stat(fullPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("storage: stat file: %w", err)
	}
	return FileInfo{
		Path:    s.relative(fullPath),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete removes the stored object, ignoring missing files.
func (s *FilesystemStore) Delete(_ context.Context, path string) error {
	if s == nil {
		return errors.New("storage: store not initialised")
	}
	if err := os.Remove(s.absolute(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

func (s *FilesystemStore) absolute(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *FilesystemStore) relative(fullPath string) string {
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil {
		return fullPath
	}
	return filepath.ToSlash(rel)
}

func sanitizePathFragment(fragment string) string {
	fragment = strings.TrimSpace(strings.ToLower(fragment))
	fragment = strings.ReplaceAll(fragment, "..", "")
	fragment = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, fragment)
	return strings.Trim(fragment, "-")
}

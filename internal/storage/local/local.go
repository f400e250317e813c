package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/civicpulse/upload-service/internal/domain"
	"github.com/civicpulse/upload-service/internal/filename"
	"github.com/civicpulse/upload-service/internal/storage"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	tempPattern = ".upload-*.tmp"

	// nameAttempts bounds retries when a generated name is already taken.
	nameAttempts = 3
)

// LocalStorage keeps one directory per category under a base directory.
type LocalStorage struct {
	// roots holds the canonical (symlink free) directory of each category.
	roots  map[domain.Category]string
	logger *slog.Logger

	rename func(oldpath, newpath string) error
}

var _ storage.Storage = (*LocalStorage)(nil)

// NewLocalStorage creates every category directory under baseDir. Failing to
// create them is the only fatal storage condition.
func NewLocalStorage(baseDir string, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	roots := make(map[domain.Category]string, len(domain.Categories))
	for _, c := range domain.Categories {
		dir := filepath.Join(baseDir, c.Dir())
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", c, err)
		}
		canonical, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s directory: %w", c, err)
		}
		abs, err := filepath.Abs(canonical)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s directory: %w", c, err)
		}
		roots[c] = abs
	}

	return &LocalStorage{
		roots:  roots,
		logger: logger.With("component", "storage"),
		rename: os.Rename,
	}, nil
}

// Dir returns the canonical directory of a category.
func (s *LocalStorage) Dir(c domain.Category) (string, bool) {
	dir, ok := s.roots[c]
	return dir, ok
}

func (s *LocalStorage) Place(ctx context.Context, category domain.Category, data []byte, mimeType domain.MIMEType) (domain.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredObject{}, err
	}

	root, ok := s.roots[category]
	if !ok {
		return domain.StoredObject{}, fmt.Errorf("%w: %q", storage.ErrCategoryNotConfigured, category)
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return domain.StoredObject{}, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(root, tempPattern)
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.StoredObject{}, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.StoredObject{}, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return domain.StoredObject{}, fmt.Errorf("failed to set file mode: %w", err)
	}

	name, err := s.publish(tmpPath, root, mimeType.Extension())
	if err != nil {
		os.Remove(tmpPath)
		return domain.StoredObject{}, err
	}

	s.logger.Debug("File stored", "category", category, "filename", name, "size", len(data))

	return domain.StoredObject{
		Category:   category,
		Filename:   name,
		Size:       int64(len(data)),
		MIMEType:   mimeType,
		PublicPath: domain.PublicPath(category, name),
	}, nil
}

// publish moves tmpPath to a fresh storage name inside root. Existing names
// are never replaced.
func (s *LocalStorage) publish(tmpPath, root, ext string) (string, error) {
	for range nameAttempts {
		name, err := filename.Generate(ext)
		if err != nil {
			return "", err
		}
		final := filepath.Join(root, name)
		if _, err := os.Lstat(final); err == nil {
			s.logger.Warn("Generated name already exists", "filename", name)
			continue
		}
		if err := s.rename(tmpPath, final); err != nil {
			return "", fmt.Errorf("failed to publish file: %w", err)
		}
		return name, nil
	}
	return "", errors.New("failed to publish file: no free name")
}

// Open resolves an untrusted name inside the category root. Directory
// components are stripped first; a name that still resolves elsewhere, for
// example through a symlink, is domain.ErrForbidden.
func (s *LocalStorage) Open(ctx context.Context, category domain.Category, name string) (io.ReadSeekCloser, storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.FileInfo{}, err
	}

	root, ok := s.roots[category]
	if !ok {
		return nil, storage.FileInfo{}, domain.ErrNotFound
	}

	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if !filename.IsStorageName(base) {
		return nil, storage.FileInfo{}, domain.ErrNotFound
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(root, base))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.FileInfo{}, domain.ErrNotFound
		}
		return nil, storage.FileInfo{}, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return nil, storage.FileInfo{}, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	if filepath.Dir(resolved) != root {
		return nil, storage.FileInfo{}, fmt.Errorf("%w: %s resolves outside %s", domain.ErrForbidden, base, category.Dir())
	}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, storage.FileInfo{}, domain.ErrNotFound
	}
	stat, err := file.Stat()
	if err != nil || !stat.Mode().IsRegular() {
		file.Close()
		return nil, storage.FileInfo{}, domain.ErrNotFound
	}

	return file, storage.FileInfo{
		Name:        base,
		Category:    category,
		ContentType: domain.ContentTypeForName(base),
		Size:        stat.Size(),
		ModTime:     stat.ModTime(),
	}, nil
}

func (s *LocalStorage) Writable(ctx context.Context) error {
	for _, c := range domain.Categories {
		if err := ctx.Err(); err != nil {
			return err
		}
		tmp, err := os.CreateTemp(s.roots[c], tempPattern)
		if err != nil {
			return fmt.Errorf("%s directory is not writable: %w", c, err)
		}
		tmp.Close()
		os.Remove(tmp.Name())
	}
	return nil
}

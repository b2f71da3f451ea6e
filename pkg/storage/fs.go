package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FS stores files on an afero filesystem.
type FS struct {
	fs afero.Fs
}

// NewLocal returns a storage rooted at dir on the local disk.
func NewLocal(dir string) (*FS, error) {
	if dir == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating storage root: %w", err)
	}
	return &FS{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}, nil
}

// NewMemory returns an in-memory storage.
func NewMemory() *FS {
	return &FS{fs: afero.NewMemMapFs()}
}

// NewFS wraps an existing afero filesystem.
func NewFS(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// Afero returns the underlying filesystem.
func (s *FS) Afero() afero.Fs {
	return s.fs
}

func (s *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := s.fs.Open(fsName(name))
	if err != nil {
		return nil, notExist(name, err)
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	return f, nil
}

func (s *FS) Put(ctx context.Context, name string, r io.Reader) error {
	p := fsName(name)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("error creating directory for %s: %w", name, err)
	}
	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", name, err)
	}
	return f.Close()
}

func (s *FS) Exists(ctx context.Context, name string) (bool, error) {
	info, err := s.fs.Stat(fsName(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *FS) List(ctx context.Context, dir string) ([]string, error) {
	root := fsName(dir)
	var names []string
	err := afero.Walk(s.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.IsDir() {
			names = append(names, Clean(filepath.ToSlash(p)))
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", dir, err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FS) Copy(ctx context.Context, src, dst string) error {
	r, err := s.Open(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()
	return s.Put(ctx, dst, r)
}

// MoveDir copies file by file and removes the source tree afterwards.
// Renaming is not used since in-memory filesystems do not move children.
func (s *FS) MoveDir(ctx context.Context, src, dst string) error {
	names, err := s.List(ctx, src)
	if err != nil {
		return err
	}
	prefix := Clean(src) + "/"
	for _, name := range names {
		rel := strings.TrimPrefix(name, prefix)
		if err := s.Copy(ctx, name, Join(dst, rel)); err != nil {
			return err
		}
	}
	if err := s.fs.RemoveAll(fsName(src)); err != nil {
		return fmt.Errorf("error removing %s: %w", src, err)
	}
	return nil
}

func (s *FS) Remove(ctx context.Context, name string) error {
	err := s.fs.Remove(fsName(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error removing %s: %w", name, err)
	}
	return nil
}

func fsName(name string) string {
	return "/" + Clean(name)
}

func notExist(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	return fmt.Errorf("error opening %s: %w", name, err)
}

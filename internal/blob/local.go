package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects on the local filesystem under root/namespace/name.
type LocalStore struct {
	root string
}

// NewLocalStore creates a filesystem-backed store rooted at root, creating
// the directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, errAbs := filepath.Abs(root)
	if errAbs != nil {
		return nil, fmt.Errorf("blob: resolve root: %w", errAbs)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// objectPath resolves a namespace/name pair to an absolute path, rejecting
// components that would escape the store root.
func (s *LocalStore) objectPath(namespace, name string) (string, error) {
	if errNS := validComponent(namespace); errNS != nil {
		return "", errNS
	}
	if errName := validComponent(name); errName != nil {
		return "", errName
	}
	return filepath.Join(s.root, namespace, name), nil
}

func validComponent(component string) error {
	if component == "" || component == "." || component == ".." {
		return fmt.Errorf("blob: invalid path component %q", component)
	}
	if strings.ContainsAny(component, `/\`) {
		return fmt.Errorf("blob: invalid path component %q", component)
	}
	return nil
}

// Write streams the reader into a temporary file in the target directory and
// atomically renames it over the destination.
func (s *LocalStore) Write(ctx context.Context, namespace, name string, r io.Reader) (int64, error) {
	path, errPath := s.objectPath(namespace, name)
	if errPath != nil {
		return 0, errPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("blob: create namespace: %w", err)
	}

	tmp, errTmp := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if errTmp != nil {
		return 0, fmt.Errorf("blob: create temp file: %w", errTmp)
	}
	defer os.Remove(tmp.Name())

	written, errCopy := io.Copy(tmp, r)
	if errClose := tmp.Close(); errCopy == nil {
		errCopy = errClose
	}
	if errCopy != nil {
		return 0, fmt.Errorf("blob: write object: %w", errCopy)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("blob: replace object: %w", err)
	}
	return written, nil
}

// Open returns a reader over the object's bytes.
func (s *LocalStore) Open(ctx context.Context, namespace, name string) (io.ReadCloser, error) {
	path, errPath := s.objectPath(namespace, name)
	if errPath != nil {
		return nil, errPath
	}
	f, errOpen := os.Open(path)
	if errOpen != nil {
		if errors.Is(errOpen, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: open object: %w", errOpen)
	}
	return f, nil
}

// Stat reports the object's current size and modification time.
func (s *LocalStore) Stat(ctx context.Context, namespace, name string) (Info, error) {
	path, errPath := s.objectPath(namespace, name)
	if errPath != nil {
		return Info{}, errPath
	}
	fi, errStat := os.Stat(path)
	if errStat != nil {
		if errors.Is(errStat, fs.ErrNotExist) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("blob: stat object: %w", errStat)
	}
	if fi.IsDir() {
		return Info{}, ErrNotFound
	}
	return Info{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Rename moves the object to a new name inside the same namespace.
func (s *LocalStore) Rename(ctx context.Context, namespace, oldName, newName string) error {
	oldPath, errOld := s.objectPath(namespace, oldName)
	if errOld != nil {
		return errOld
	}
	newPath, errNew := s.objectPath(namespace, newName)
	if errNew != nil {
		return errNew
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("blob: rename object: %w", err)
	}
	return nil
}

// Delete removes the object.
func (s *LocalStore) Delete(ctx context.Context, namespace, name string) error {
	path, errPath := s.objectPath(namespace, name)
	if errPath != nil {
		return errPath
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("blob: delete object: %w", err)
	}
	return nil
}

// DeleteNamespace removes a namespace directory and everything under it.
// Removing a namespace that never stored anything is not an error.
func (s *LocalStore) DeleteNamespace(ctx context.Context, namespace string) error {
	if errNS := validComponent(namespace); errNS != nil {
		return errNS
	}
	if err := os.RemoveAll(filepath.Join(s.root, namespace)); err != nil {
		return fmt.Errorf("blob: delete namespace: %w", err)
	}
	return nil
}

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
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Object is an open artifact; callers must Close it.
type Object interface {
	io.ReadSeekCloser
}

// ObjectStore holds release binaries addressed by object name.
type ObjectStore interface {
	Stat(ctx context.Context, name string) (ObjectInfo, error)
	Open(ctx context.Context, name string) (Object, ObjectInfo, error)
	Put(ctx context.Context, name string, r io.Reader) (ObjectInfo, error)
}

// FSStore keeps objects as flat files under a root directory.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid name %q", ErrObjectNotFound, name)
	}
	return filepath.Join(s.root, name), nil
}

func (s *FSStore) Stat(_ context.Context, name string) (ObjectInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && fi.IsDir()) {
		return ObjectInfo{}, ErrObjectNotFound
	}
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (s *FSStore) Open(ctx context.Context, name string) (Object, ObjectInfo, error) {
	info, err := s.Stat(ctx, name)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	p, _ := s.path(name)
	f, err := os.Open(p)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return f, info, nil
}

// Put writes r to a temp file in the root and renames it over name.
func (s *FSStore) Put(ctx context.Context, name string, r io.Reader) (ObjectInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return ObjectInfo{}, err
	}
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return ObjectInfo{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return ObjectInfo{}, err
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return ObjectInfo{}, err
	}
	return s.Stat(ctx, name)
}

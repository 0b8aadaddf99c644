package sbtree

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// fileOpenFlags matches §4.1: "opens/creates the file in read+write binary
// mode and truncates."
const fileOpenFlags = os.O_RDWR | os.O_CREATE | os.O_TRUNC

// Storage is the polymorphic page reader/writer from §4.1/§6.1. It performs
// no caching and imposes no ordering beyond the calls its caller issues.
type Storage interface {
	Init() error
	ReadPage(pageNum int64, pageSize int, dst []byte) error
	WritePage(pageNum int64, pageSize int, src []byte) error
	Close() error
}

// FileStorage is the file-backed variant: positional I/O on a single file
// at offset pageNum*pageSize. It is built on afero.Fs rather than the
// standard os package directly, so the same implementation also serves the
// memory-backed variant by swapping in afero.NewMemMapFs() — see NewMemFS.
type FileStorage struct {
	fs   afero.Fs
	path string
	file afero.File
}

// NewFileStorage opens path on the OS filesystem.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{fs: afero.NewOsFs(), path: path}
}

// NewMemFS opens path on an in-memory afero filesystem, giving a
// memory-backed Storage without a second code path.
func NewMemFS(path string) *FileStorage {
	return &FileStorage{fs: afero.NewMemMapFs(), path: path}
}

func (s *FileStorage) Init() error {
	f, err := s.fs.OpenFile(s.path, fileOpenFlags, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrStorageFailure, s.path, err)
	}
	s.file = f
	return nil
}

func (s *FileStorage) ReadPage(pageNum int64, pageSize int, dst []byte) error {
	if _, err := s.file.ReadAt(dst[:pageSize], pageNum*int64(pageSize)); err != nil {
		return fmt.Errorf("%w: read page %d: %v", ErrStorageFailure, pageNum, err)
	}
	return nil
}

func (s *FileStorage) WritePage(pageNum int64, pageSize int, src []byte) error {
	if _, err := s.file.WriteAt(src[:pageSize], pageNum*int64(pageSize)); err != nil {
		return fmt.Errorf("%w: write page %d: %v", ErrStorageFailure, pageNum, err)
	}
	return nil
}

func (s *FileStorage) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// RawMemStorage is a flat, zero-initialized, growable byte vector with no
// filesystem layer at all — the lighter path for the hot embedded case
// where even afero's in-memory filesystem is too heavyweight (see
// SPEC_FULL.md §3, domain stack). A write past the current end reallocates
// the vector to the new length.
type RawMemStorage struct {
	data []byte
}

// NewRawMemStorage returns a Storage backed by a plain Go slice.
func NewRawMemStorage() *RawMemStorage {
	return &RawMemStorage{}
}

func (s *RawMemStorage) Init() error {
	s.data = s.data[:0]
	return nil
}

func (s *RawMemStorage) ReadPage(pageNum int64, pageSize int, dst []byte) error {
	start := pageNum * int64(pageSize)
	end := start + int64(pageSize)
	if end > int64(len(s.data)) {
		return fmt.Errorf("%w: read page %d out of range", ErrStorageFailure, pageNum)
	}
	copy(dst[:pageSize], s.data[start:end])
	return nil
}

func (s *RawMemStorage) WritePage(pageNum int64, pageSize int, src []byte) error {
	start := pageNum * int64(pageSize)
	end := start + int64(pageSize)
	if end > int64(len(s.data)) {
		grown := make([]byte, end)
		copy(grown, s.data)
		s.data = grown
	}
	copy(s.data[start:end], src[:pageSize])
	return nil
}

func (s *RawMemStorage) Close() error {
	s.data = nil
	return nil
}

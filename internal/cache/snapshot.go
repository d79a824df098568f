package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/afero"
)

// Snapshot 是已提交条目的只读句柄，持有文件资源，必须在所有路径上 Close。
// Close 可重复调用。读到的字节数少于提交时的大小会返回 ErrCorruptEntry，并作废该条目。
type Snapshot struct {
	cache  *DiskCache
	key    string
	name   string
	gen    uint64
	file   afero.File
	size   int64
	pos    int64
	closed bool
}

// Key returns the cache key of the entry.
func (s *Snapshot) Key() string {
	return s.key
}

// Size returns the committed size of the entry.
func (s *Snapshot) Size() int64 {
	return s.size
}

func (s *Snapshot) Read(p []byte) (int, error) {
	if s.closed {
		return 0, fs.ErrClosed
	}
	n, err := s.file.Read(p)
	s.pos += int64(n)
	if errors.Is(err, io.EOF) && s.pos < s.size {
		s.invalidate()
		return n, ErrCorruptEntry
	}
	return n, err
}

func (s *Snapshot) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, fs.ErrClosed
	}
	pos, err := s.file.Seek(offset, whence)
	if err == nil {
		s.pos = pos
	}
	return pos, err
}

// Bytes 从头读取完整内容。任何读取失败或长度与提交时不一致都会作废条目并返回 ErrCorruptEntry。
func (s *Snapshot) Bytes() ([]byte, error) {
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		s.invalidate()
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	data, err := io.ReadAll(s)
	if err != nil {
		s.invalidate()
		if errors.Is(err, ErrCorruptEntry) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if int64(len(data)) != s.size {
		s.invalidate()
		return nil, ErrCorruptEntry
	}
	return data, nil
}

// invalidate 按代际作废条目，不影响并发提交的新内容。
func (s *Snapshot) invalidate() {
	if s.cache != nil {
		s.cache.drop(s.name, s.gen)
	}
}

func (s *Snapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

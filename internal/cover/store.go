package cover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

var (
	// ErrNotFound 表示封面文件不存在。
	ErrNotFound = errors.New("cover not found")
	// ErrInvalidPath 表示目标路径不在封面根目录之内。
	ErrInvalidPath = errors.New("invalid cover path")
)

// NewStore 以 root 为根目录构建永久封面存储，整站复用一份实例。
func NewStore(fsys afero.Fs, root string) (*Store, error) {
	if fsys == nil {
		return nil, errors.New("filesystem required")
	}
	if root == "" {
		return nil, errors.New("cover path required")
	}
	root = filepath.Clean(root)
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cover path: %w", err)
	}

	return &Store{
		fs:    fsys,
		root:  root,
		locks: make(map[string]*entryLock),
	}, nil
}

// Store 通过 entryLock 避免同一封面并发写入/删除。
type Store struct {
	fs   afero.Fs
	root string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// Root returns the absolute directory holding all covers.
func (s *Store) Root() string {
	return s.root
}

// Exists 实时检查文件是否存在，不做任何缓存。
func (s *Store) Exists(path string) bool {
	if err := s.checkPath(path); err != nil {
		return false
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Open 打开封面文件用于读取，调用方负责 Close。
func (s *Store) Open(path string) (afero.File, error) {
	if err := s.checkPath(path); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// Write 将 body 写入 path。写入先落到同目录临时文件再 rename，
// 失败或 ctx 取消时删除临时文件，目标文件要么完整要么保持原样。
func (s *Store) Write(ctx context.Context, path string, body io.Reader) (int64, error) {
	if err := s.checkPath(path); err != nil {
		return 0, err
	}
	unlock := s.lockEntry(path)
	defer unlock()

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}

	tempFile, err := afero.TempFile(s.fs, filepath.Dir(path), ".cover-*")
	if err != nil {
		return 0, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.fs.Remove(tempName)
		return 0, err
	}

	if err := s.fs.Rename(tempName, path); err != nil {
		s.fs.Remove(tempName)
		return 0, err
	}
	return written, nil
}

// Delete 删除封面文件，文件不存在时返回 false。
func (s *Store) Delete(path string) (bool, error) {
	if err := s.checkPath(path); err != nil {
		return false, err
	}
	unlock := s.lockEntry(path)
	defer unlock()

	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *Store) checkPath(path string) error {
	clean := filepath.Clean(path)
	if clean != path || !strings.HasPrefix(clean, s.root+string(os.PathSeparator)) {
		return ErrInvalidPath
	}
	return nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

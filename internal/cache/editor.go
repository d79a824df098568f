package cache

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
)

// Editor 是单个条目的写事务句柄。写入内容先落到临时文件，Commit 时 rename 到位；
// Abort 或任何写入失败都会删除临时文件，旧条目保持不变。
//
// Commit 之后再调用 Abort 是空操作，因此调用方可以在 Edit 成功后立即 defer Abort。
type Editor struct {
	cache    *DiskCache
	key      string
	name     string
	gen      uint64
	tempName string
	file     afero.File

	written  int64
	writeErr error
	done     bool
}

// Key returns the cache key this editor writes.
func (e *Editor) Key() string {
	return e.key
}

// Write 追加写入临时文件。一旦失败，后续 Commit 必然失败。
func (e *Editor) Write(p []byte) (int, error) {
	if e.done {
		return 0, ErrEditorClosed
	}
	if e.writeErr != nil {
		return 0, e.writeErr
	}
	n, err := e.file.Write(p)
	e.written += int64(n)
	if err == nil && n < len(p) {
		err = errShortWrite
	}
	if err != nil {
		e.writeErr = err
	}
	return n, err
}

// Commit 关闭临时文件并原子替换为可读条目。
func (e *Editor) Commit() error {
	if e.done {
		return ErrEditorClosed
	}
	if e.writeErr != nil {
		e.discard()
		return fmt.Errorf("commit after failed write: %w", e.writeErr)
	}
	e.done = true

	if err := e.file.Close(); err != nil {
		e.cleanup()
		return err
	}
	final := e.cache.entryPath(e.name, e.gen)
	if err := e.cache.fs.Rename(e.tempName, final); err != nil {
		e.cleanup()
		return err
	}
	return e.cache.commit(e.name, e.gen, e.written)
}

// Abort 放弃写入。对已提交或已放弃的 Editor 调用是空操作。
func (e *Editor) Abort() error {
	if e.done {
		return nil
	}
	e.discard()
	return nil
}

func (e *Editor) discard() {
	e.done = true
	_ = e.file.Close()
	e.cleanup()
}

func (e *Editor) cleanup() {
	if err := e.cache.fs.Remove(e.tempName); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.cache.logger.WithError(err).WithField("path", e.tempName).Warn("cache_temp_cleanup_failed")
	}
	e.cache.release(e.name)
}

var errShortWrite = errors.New("short write")

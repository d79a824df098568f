package cache

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/coverhub/internal/cache/cachetest"
)

const testDir = "/storage/cache"

func TestDiskCacheCommitAndOpen(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), Options{MaxBytes: 1024, MaxEntries: 16})

	put(t, c, "poster/id/42@100", "poster-bytes")

	snap, err := c.Open("poster/id/42@100")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer snap.Close()

	body, err := io.ReadAll(snap)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if string(body) != "poster-bytes" {
		t.Fatalf("payload mismatch: %s", body)
	}
	if snap.Size() != int64(len("poster-bytes")) {
		t.Fatalf("size mismatch: %d", snap.Size())
	}
	if c.Size() != snap.Size() || c.Len() != 1 {
		t.Fatalf("unexpected accounting: size=%d len=%d", c.Size(), c.Len())
	}
}

func TestDiskCacheOpenMissing(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), Options{MaxBytes: 1024, MaxEntries: 16})
	if _, err := c.Open("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiskCacheSecondEditorUnavailable(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), Options{MaxBytes: 1024, MaxEntries: 16})

	first, err := c.Edit("k")
	if err != nil {
		t.Fatalf("first edit: %v", err)
	}
	if _, err := c.Edit("k"); !errors.Is(err, ErrEditorUnavailable) {
		t.Fatalf("expected ErrEditorUnavailable, got %v", err)
	}
	if _, err := c.Edit("other"); err != nil {
		t.Fatalf("distinct key must not be blocked: %v", err)
	}
	if err := first.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	second, err := c.Edit("k")
	if err != nil {
		t.Fatalf("edit after abort should succeed: %v", err)
	}
	second.Abort()
}

func TestDiskCacheAbortKeepsPreviousEntry(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "original")

	ed, err := c.Edit("k")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err := ed.Write([]byte("replacement-partial")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ed.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}

	assertEntry(t, c, "k", "original")
	assertNoTempFiles(t, c)
}

func TestDiskCacheFailedWriteLeavesPriorStateUnchanged(t *testing.T) {
	fsys := cachetest.NewFaultyFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "original")

	fsys.FailWrites.Store(true)
	ed, err := c.Edit("k")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err := ed.Write([]byte("replacement")); !errors.Is(err, cachetest.ErrInjected) {
		t.Fatalf("expected injected write error, got %v", err)
	}
	if err := ed.Commit(); err == nil {
		t.Fatalf("commit after failed write must fail")
	}
	fsys.FailWrites.Store(false)

	assertEntry(t, c, "k", "original")
	assertNoTempFiles(t, c)

	// the editor slot was released
	again, err := c.Edit("k")
	if err != nil {
		t.Fatalf("edit after failed commit: %v", err)
	}
	again.Abort()
}

func TestDiskCacheFailedRenameLeavesPriorStateUnchanged(t *testing.T) {
	fsys := cachetest.NewFaultyFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "original")

	fsys.FailRenames.Store(true)
	ed, err := c.Edit("k")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	ed.Write([]byte("replacement"))
	if err := ed.Commit(); !errors.Is(err, cachetest.ErrInjected) {
		t.Fatalf("expected injected rename error, got %v", err)
	}
	fsys.FailRenames.Store(false)

	assertEntry(t, c, "k", "original")
	assertNoTempFiles(t, c)
}

func TestDiskCacheAbortAfterCommitIsNoop(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), Options{MaxBytes: 1024, MaxEntries: 16})
	ed, err := c.Edit("k")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	ed.Write([]byte("v1"))
	if err := ed.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := ed.Abort(); err != nil {
		t.Fatalf("abort after commit: %v", err)
	}
	if err := ed.Commit(); !errors.Is(err, ErrEditorClosed) {
		t.Fatalf("double commit should report ErrEditorClosed, got %v", err)
	}
	assertEntry(t, c, "k", "v1")
}

func TestDiskCacheReplaceRemovesOldGeneration(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "v1")
	put(t, c, "k", "version-2")

	assertEntry(t, c, "k", "version-2")
	if n := countEntryFiles(t, fsys); n != 1 {
		t.Fatalf("expected a single entry file, got %d", n)
	}
	if c.Size() != int64(len("version-2")) {
		t.Fatalf("size should track replacement, got %d", c.Size())
	}
}

func TestDiskCacheEvictsLeastRecentlyUsed(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 10, MaxEntries: 16})
	put(t, c, "a", "aaaa")
	put(t, c, "b", "bbbb")

	snap, err := c.Open("a")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	snap.Close()

	put(t, c, "c", "cccc")

	if _, err := c.Open("b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("b should have been evicted, got %v", err)
	}
	assertEntry(t, c, "a", "aaaa")
	assertEntry(t, c, "c", "cccc")
	if c.Size() != 8 {
		t.Fatalf("unexpected size %d", c.Size())
	}
	if n := countEntryFiles(t, fsys); n != 2 {
		t.Fatalf("evicted file should be deleted, found %d entry files", n)
	}
}

func TestDiskCacheRemove(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "data")
	if err := c.Remove("k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := c.Open("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if err := c.Remove("k"); err != nil {
		t.Fatalf("removing a missing key should be a no-op: %v", err)
	}
}

func TestDiskCacheCorruptEntryIsInvalidated(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "full-payload")

	path := entryFiles(t, fsys)[0]
	if err := afero.WriteFile(fsys, path, []byte("trunc"), 0o644); err != nil {
		t.Fatalf("truncate entry: %v", err)
	}

	if _, err := c.Open("k"); !errors.Is(err, ErrCorruptEntry) {
		t.Fatalf("expected ErrCorruptEntry, got %v", err)
	}
	if _, err := c.Open("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt entry should be dropped, got %v", err)
	}
	if c.Size() != 0 {
		t.Fatalf("size should be released, got %d", c.Size())
	}
}

func TestDiskCacheExternallyDeletedEntryIsMiss(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "payload")
	if err := fsys.Remove(entryFiles(t, fsys)[0]); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if _, err := c.Open("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("index should forget the entry")
	}
}

func TestDiskCacheRebuildsIndex(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "a", "alpha")
	put(t, c, "b", "beta")
	if err := afero.WriteFile(fsys, filepath.Join(testDir, tempPrefix+"leftover"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write leftover: %v", err)
	}

	reopened := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	assertEntry(t, reopened, "a", "alpha")
	assertEntry(t, reopened, "b", "beta")
	assertNoTempFiles(t, reopened)
	if reopened.Size() != int64(len("alpha")+len("beta")) {
		t.Fatalf("rebuilt size mismatch: %d", reopened.Size())
	}

	// generations keep increasing across restarts
	put(t, reopened, "a", "alpha-2")
	assertEntry(t, reopened, "a", "alpha-2")
	if n := countEntryFiles(t, fsys); n != 2 {
		t.Fatalf("expected two entry files, got %d", n)
	}
}

func TestDiskCacheClosedIsUnavailable(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "data")

	ed, err := c.Edit("pending")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	c.Close()

	if _, err := c.Open("k"); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("expected ErrCacheClosed on open, got %v", err)
	}
	if _, err := c.Edit("k"); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("expected ErrCacheClosed on edit, got %v", err)
	}
	ed.Write([]byte("late"))
	if err := ed.Commit(); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("commit on closed cache should fail, got %v", err)
	}
}

func TestDiskCacheConcurrentWritersSameKey(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1 << 20, MaxEntries: 64})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ed, err := c.Edit("shared")
			if err != nil {
				return
			}
			defer ed.Abort()
			ed.Write([]byte("same-bytes"))
			ed.Commit()
		}(i)
	}
	wg.Wait()

	assertEntry(t, c, "shared", "same-bytes")
	if n := countEntryFiles(t, fsys); n != 1 {
		t.Fatalf("expected exactly one committed entry, got %d", n)
	}
	assertNoTempFiles(t, c)
}

func TestDiskCacheSnapshotBytes(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "payload")
	snap, err := c.Open("k")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer snap.Close()

	io.CopyN(io.Discard, snap, 3)
	data, err := snap.Bytes()
	if err != nil || string(data) != "payload" {
		t.Fatalf("Bytes should read from the start: %q %v", data, err)
	}
	snap.Close()
	if err := snap.Close(); err != nil {
		t.Fatalf("close must be idempotent: %v", err)
	}
}

func TestDiskCacheSnapshotShortReadIsCorrupt(t *testing.T) {
	fsys := cachetest.NewFaultyFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "full-payload")

	snap, err := c.Open("k")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer snap.Close()

	fsys.ShortReads.Store(true)
	if _, err := io.ReadAll(snap); !errors.Is(err, ErrCorruptEntry) {
		t.Fatalf("expected ErrCorruptEntry on early EOF, got %v", err)
	}
	fsys.ShortReads.Store(false)

	if _, err := c.Open("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("short entry should be dropped, got %v", err)
	}
	if c.Size() != 0 || countEntryFiles(t, fsys) != 0 {
		t.Fatalf("short entry should release its space: size=%d", c.Size())
	}
}

func TestDiskCacheSnapshotReadErrorIsCorrupt(t *testing.T) {
	fsys := cachetest.NewFaultyFs()
	c := newTestCache(t, fsys, Options{MaxBytes: 1024, MaxEntries: 16})
	put(t, c, "k", "payload")

	snap, err := c.Open("k")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer snap.Close()

	fsys.FailReads.Store(true)
	_, err = snap.Bytes()
	fsys.FailReads.Store(false)
	if !errors.Is(err, ErrCorruptEntry) {
		t.Fatalf("expected ErrCorruptEntry, got %v", err)
	}
	if _, err := c.Open("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unreadable entry should be dropped, got %v", err)
	}
}

func newTestCache(t *testing.T, fsys afero.Fs, opts Options) *DiskCache {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := NewDiskCache(fsys, testDir, opts, logger)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func put(t *testing.T, c *DiskCache, key, value string) {
	t.Helper()
	ed, err := c.Edit(key)
	if err != nil {
		t.Fatalf("edit %s: %v", key, err)
	}
	defer ed.Abort()
	if _, err := ed.Write([]byte(value)); err != nil {
		t.Fatalf("write %s: %v", key, err)
	}
	if err := ed.Commit(); err != nil {
		t.Fatalf("commit %s: %v", key, err)
	}
}

func assertEntry(t *testing.T, c *DiskCache, key, want string) {
	t.Helper()
	snap, err := c.Open(key)
	if err != nil {
		t.Fatalf("open %s: %v", key, err)
	}
	defer snap.Close()
	data, err := snap.Bytes()
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	if string(data) != want {
		t.Fatalf("entry %s mismatch: got %q want %q", key, data, want)
	}
}

func entryFiles(t *testing.T, fsys afero.Fs) []string {
	t.Helper()
	infos, err := afero.ReadDir(fsys, testDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var files []string
	for _, info := range infos {
		if _, _, ok := parseEntryName(info.Name()); ok {
			files = append(files, filepath.Join(testDir, info.Name()))
		}
	}
	return files
}

func countEntryFiles(t *testing.T, fsys afero.Fs) int {
	t.Helper()
	return len(entryFiles(t, fsys))
}

func assertNoTempFiles(t *testing.T, c *DiskCache) {
	t.Helper()
	infos, err := afero.ReadDir(c.fs, testDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, info := range infos {
		if strings.HasPrefix(info.Name(), tempPrefix) {
			t.Fatalf("unexpected temp file %s", info.Name())
		}
	}
}

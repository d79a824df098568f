package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/coverhub/internal/cache"
	"github.com/any-hub/coverhub/internal/cache/cachetest"
	"github.com/any-hub/coverhub/internal/cover"
	"github.com/any-hub/coverhub/internal/descriptor"
	"github.com/any-hub/coverhub/internal/memcache"
	"github.com/any-hub/coverhub/internal/metrics"
)

// stubFetcher counts calls and serves a fixed payload.
type stubFetcher struct {
	mu      sync.Mutex
	payload []byte
	err     error
	calls   atomic.Int32
	// before runs at the start of every call when set.
	before func(ctx context.Context)
}

func (f *stubFetcher) Fetch(ctx context.Context, _ descriptor.Descriptor, _ Options) ([]byte, error) {
	f.calls.Add(1)
	if f.before != nil {
		f.before(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte(nil), f.payload...), nil
}

func (f *stubFetcher) setPayload(data string) {
	f.mu.Lock()
	f.payload = []byte(data)
	f.mu.Unlock()
}

type harness struct {
	fs      *cachetest.FaultyFs
	disk    *cache.DiskCache
	memory  *memcache.Cache
	covers  *cover.Store
	fetcher *stubFetcher
	p       *Pipeline
}

func newHarness(t *testing.T, payload string) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fsys := cachetest.NewFaultyFs()
	disk, err := cache.NewDiskCache(fsys, "/storage/cache", cache.Options{MaxBytes: 1 << 20, MaxEntries: 128}, logger)
	if err != nil {
		t.Fatalf("disk cache: %v", err)
	}
	memory, err := memcache.New(128, 1<<20)
	if err != nil {
		t.Fatalf("memory cache: %v", err)
	}
	covers, err := cover.NewStore(fsys, "/storage/covers")
	if err != nil {
		t.Fatalf("cover store: %v", err)
	}
	recorder, err := metrics.NewRecorder(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	fetcher := &stubFetcher{payload: []byte(payload)}
	p, err := New(Config{
		Kind:    descriptor.KindPoster,
		Fetcher: fetcher,
		Covers:  covers,
		Locator: covers.Locator("posters"),
		Disk:    disk,
		Memory:  memory,
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	return &harness{fs: fsys, disk: disk, memory: memory, covers: covers, fetcher: fetcher, p: p}
}

func (h *harness) resolve(t *testing.T, d descriptor.Descriptor, opts Options) (*Result, []byte) {
	t.Helper()
	result, err := h.p.Resolve(context.Background(), d, opts)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	defer result.Close()
	data, err := result.Bytes()
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	return result, data
}

func (h *harness) key(t *testing.T, d descriptor.Descriptor) string {
	t.Helper()
	key, err := h.p.Key(d)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return key
}

func (h *harness) seedDisk(t *testing.T, key, value string) {
	t.Helper()
	ed, err := h.disk.Edit(key)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	defer ed.Abort()
	ed.Write([]byte(value))
	if err := ed.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func (h *harness) diskBytes(t *testing.T, key string) []byte {
	t.Helper()
	snap, err := h.disk.Open(key)
	if err != nil {
		t.Fatalf("open %s: %v", key, err)
	}
	defer snap.Close()
	data, err := snap.Bytes()
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return data
}

func coverResolver(h *harness) *cover.Resolver {
	return cover.NewResolver(h.covers, h.covers.Locator("posters"))
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

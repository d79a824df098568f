package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const tempPrefix = ".tmp-"

// DiskCache 是有容量上限的磁盘 LRU 缓存，整站复用一份实例。
type DiskCache struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
	logger   *logrus.Logger

	mu      sync.Mutex
	index   *simplelru.LRU[string, entry]
	size    int64
	editors map[string]struct{}
	nextGen uint64
	closed  bool
	evicted []string
}

// entry 记录已提交条目的代际与大小，文件名为 <digest>.<gen>。
type entry struct {
	gen  uint64
	size int64
}

// NewDiskCache 以 dir 为根目录构建磁盘缓存，并根据目录现有内容重建索引。
func NewDiskCache(fsys afero.Fs, dir string, opts Options, logger *logrus.Logger) (*DiskCache, error) {
	if fsys == nil {
		return nil, errors.New("filesystem required")
	}
	if dir == "" {
		return nil, errors.New("storage path required")
	}
	if opts.MaxBytes <= 0 {
		return nil, errors.New("max bytes must be positive")
	}
	if opts.MaxEntries <= 0 {
		return nil, errors.New("max entries must be positive")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	c := &DiskCache{
		fs:       fsys,
		dir:      dir,
		maxBytes: opts.MaxBytes,
		logger:   logger,
		editors:  make(map[string]struct{}),
	}
	index, err := simplelru.NewLRU[string, entry](opts.MaxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.index = index

	if err := c.rebuild(); err != nil {
		return nil, fmt.Errorf("rebuild cache index: %w", err)
	}
	return c, nil
}

// onEvict 由 simplelru 在持锁状态下回调，这里只记账，文件删除推迟到解锁之后。
func (c *DiskCache) onEvict(name string, e entry) {
	c.size -= e.size
	c.evicted = append(c.evicted, c.entryPath(name, e.gen))
}

// Open 返回条目的只读 Snapshot。条目不存在时返回 ErrNotFound，
// 文件大小与索引不一致时作废条目并返回 ErrCorruptEntry。
func (c *DiskCache) Open(key string) (*Snapshot, error) {
	name := digest(key)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	e, ok := c.index.Get(name)
	c.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	f, err := c.fs.Open(c.entryPath(name, e.gen))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.drop(name, e.gen)
			return nil, ErrNotFound
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil || info.Size() != e.size {
		f.Close()
		c.drop(name, e.gen)
		return nil, ErrCorruptEntry
	}

	return &Snapshot{cache: c, key: key, name: name, gen: e.gen, file: f, size: e.size}, nil
}

// Edit 为 key 打开写事务。同一键同一时刻只允许一个 Editor，
// 第二个调用方立即得到 ErrEditorUnavailable。
func (c *DiskCache) Edit(key string) (*Editor, error) {
	name := digest(key)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	if _, busy := c.editors[name]; busy {
		c.mu.Unlock()
		return nil, ErrEditorUnavailable
	}
	c.editors[name] = struct{}{}
	gen := c.nextGen
	c.nextGen++
	c.mu.Unlock()

	tempName := filepath.Join(c.dir, tempPrefix+name+"-"+uuid.NewString())
	f, err := c.fs.OpenFile(tempName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		c.release(name)
		return nil, err
	}

	return &Editor{
		cache:    c,
		key:      key,
		name:     name,
		gen:      gen,
		tempName: tempName,
		file:     f,
	}, nil
}

// Remove 删除 key 对应的条目；条目不存在时返回 nil。
func (c *DiskCache) Remove(key string) error {
	name := digest(key)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}
	c.index.Remove(name)
	pending := c.takeEvicted()
	c.mu.Unlock()

	c.removeFiles(pending)
	return nil
}

// Clear 删除全部已提交条目，进行中的 Editor 不受影响。
func (c *DiskCache) Clear() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}
	c.index.Purge()
	pending := c.takeEvicted()
	c.mu.Unlock()

	c.removeFiles(pending)
	return nil
}

// Close 将缓存标记为不可用。已打开的 Snapshot 仍可读取，之后的提交会被丢弃。
func (c *DiskCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Len 返回已提交条目数。
func (c *DiskCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}

// Size 返回已提交条目的总字节数。
func (c *DiskCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a point-in-time view of the cache usage.
func (c *DiskCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:  c.index.Len(),
		Bytes:    c.size,
		MaxBytes: c.maxBytes,
		Editors:  len(c.editors),
	}
}

// commit 在文件已经 rename 到位之后登记索引，并按容量淘汰旧条目。
func (c *DiskCache) commit(name string, gen uint64, size int64) error {
	c.mu.Lock()
	delete(c.editors, name)
	if c.closed {
		c.mu.Unlock()
		c.removeFiles([]string{c.entryPath(name, gen)})
		return ErrCacheClosed
	}

	c.index.Remove(name)
	c.index.Add(name, entry{gen: gen, size: size})
	c.size += size
	for c.size > c.maxBytes {
		if _, _, ok := c.index.RemoveOldest(); !ok {
			break
		}
	}
	pending := c.takeEvicted()
	c.mu.Unlock()

	c.removeFiles(pending)
	return nil
}

// release 释放 Editor 占用的写锁。
func (c *DiskCache) release(name string) {
	c.mu.Lock()
	delete(c.editors, name)
	c.mu.Unlock()
}

// drop 仅当索引仍指向同一代际时才作废条目，避免误删并发提交的新内容。
func (c *DiskCache) drop(name string, gen uint64) {
	c.mu.Lock()
	if current, ok := c.index.Peek(name); ok && current.gen == gen {
		c.index.Remove(name)
	}
	pending := c.takeEvicted()
	c.mu.Unlock()

	c.removeFiles(pending)
}

// takeEvicted must be called with c.mu held.
func (c *DiskCache) takeEvicted() []string {
	pending := c.evicted
	c.evicted = nil
	return pending
}

func (c *DiskCache) removeFiles(paths []string) {
	for _, p := range paths {
		if err := c.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.WithError(err).WithField("path", p).Warn("cache_remove_failed")
		}
	}
}

// rebuild 扫描目录恢复索引：同一键只保留最高代际，清理遗留的临时文件，
// 按修改时间从旧到新插入以近似恢复 LRU 顺序。
func (c *DiskCache) rebuild() error {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return err
	}

	type found struct {
		name string
		gen  uint64
		info fs.FileInfo
	}
	latest := make(map[string]found)
	var stale []string

	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		fileName := info.Name()
		if strings.HasPrefix(fileName, tempPrefix) {
			stale = append(stale, filepath.Join(c.dir, fileName))
			continue
		}
		name, gen, ok := parseEntryName(fileName)
		if !ok {
			continue
		}
		if prev, exists := latest[name]; exists {
			if prev.gen > gen {
				stale = append(stale, c.entryPath(name, gen))
				continue
			}
			stale = append(stale, c.entryPath(prev.name, prev.gen))
		}
		latest[name] = found{name: name, gen: gen, info: info}
	}

	ordered := make([]found, 0, len(latest))
	for _, f := range latest {
		ordered = append(ordered, f)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].info.ModTime().Before(ordered[j].info.ModTime())
	})

	c.mu.Lock()
	for _, f := range ordered {
		c.index.Add(f.name, entry{gen: f.gen, size: f.info.Size()})
		c.size += f.info.Size()
		if f.gen >= c.nextGen {
			c.nextGen = f.gen + 1
		}
	}
	for c.size > c.maxBytes {
		if _, _, ok := c.index.RemoveOldest(); !ok {
			break
		}
	}
	stale = append(stale, c.takeEvicted()...)
	c.mu.Unlock()

	c.removeFiles(stale)
	return nil
}

func (c *DiskCache) entryPath(name string, gen uint64) string {
	return filepath.Join(c.dir, name+"."+strconv.FormatUint(gen, 10))
}

func parseEntryName(fileName string) (string, uint64, bool) {
	idx := strings.LastIndexByte(fileName, '.')
	if idx != sha1.Size*2 {
		return "", 0, false
	}
	if _, err := hex.DecodeString(fileName[:idx]); err != nil {
		return "", 0, false
	}
	gen, err := strconv.ParseUint(fileName[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return fileName[:idx], gen, true
}

func digest(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

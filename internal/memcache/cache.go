// Package memcache 提供进程级、按字节与条目数双重限额的 LRU 内存缓存。
// 实例在启动阶段构造一次并显式注入管线，不存在包级单例。
package memcache

import (
	"errors"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Cache 是并发安全的 key→bytes LRU 缓存。互斥锁仅保护元数据，不涉及 I/O。
type Cache struct {
	maxBytes int64

	mu    sync.Mutex
	lru   *simplelru.LRU[string, []byte]
	bytes int64
}

// Stats 汇总当前条目数与占用字节，供诊断接口输出。
type Stats struct {
	Entries  int   `json:"entries"`
	Bytes    int64 `json:"bytes"`
	MaxBytes int64 `json:"max_bytes"`
}

// New 以条目上限与字节上限创建缓存。
func New(maxEntries int, maxBytes int64) (*Cache, error) {
	if maxEntries <= 0 {
		return nil, errors.New("memory cache max entries must be positive")
	}
	if maxBytes <= 0 {
		return nil, errors.New("memory cache max bytes must be positive")
	}
	c := &Cache{maxBytes: maxBytes}
	lru, err := simplelru.NewLRU[string, []byte](maxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// onEvict 在持锁状态下由 simplelru 回调。
func (c *Cache) onEvict(_ string, value []byte) {
	c.bytes -= int64(len(value))
}

// Get 返回缓存内容并刷新其最近使用位置。返回的切片不可修改。
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Add 写入缓存；超过字节上限的单个值直接忽略，返回 false。
func (c *Cache) Add(key string, value []byte) bool {
	size := int64(len(value))
	if size > c.maxBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		c.bytes -= int64(len(old))
	}
	c.lru.Add(key, value)
	c.bytes += size

	for c.bytes > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	return true
}

// Remove 删除指定键。
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Purge 清空全部条目。
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns a point-in-time view of the cache usage.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:  c.lru.Len(),
		Bytes:    c.bytes,
		MaxBytes: c.maxBytes,
	}
}

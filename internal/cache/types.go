package cache

import "errors"

// Options 控制磁盘缓存的容量上限。
type Options struct {
	// MaxBytes 是所有已提交条目的总字节上限，超出后按 LRU 淘汰。
	MaxBytes int64
	// MaxEntries 是条目数上限。
	MaxEntries int
}

// Stats 汇总磁盘缓存当前状态，供 /-/stats 诊断接口输出。
type Stats struct {
	Entries  int   `json:"entries"`
	Bytes    int64 `json:"bytes"`
	MaxBytes int64 `json:"max_bytes"`
	Editors  int   `json:"editors"`
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrEditorUnavailable 表示同一键已有写入中的 Editor，调用方应跳过写入而非等待。
	ErrEditorUnavailable = errors.New("cache editor unavailable")
	// ErrEditorClosed 表示 Editor 已经提交或放弃。
	ErrEditorClosed = errors.New("cache editor already closed")
	// ErrCorruptEntry 表示条目内容与索引记录不一致，条目已被作废。
	ErrCorruptEntry = errors.New("cache entry corrupt")
	// ErrCacheClosed 表示缓存已关闭，对调用方而言等价于该层不可用。
	ErrCacheClosed = errors.New("cache closed")
)

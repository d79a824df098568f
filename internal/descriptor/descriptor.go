// Package descriptor 定义图片请求的内容描述符以及由其派生的缓存键。
// 键派生是纯函数，可在任意 goroutine 中调用，无需额外同步。
package descriptor

import (
	"errors"
	"strings"
)

// Kind 表示图片所属的实体类型，同时决定缓存键前缀与封面目录。
type Kind string

const (
	KindPoster Kind = "poster"
	KindAvatar Kind = "avatar"
	KindBucket Kind = "bucket"
)

// ErrInvalidDescriptor 表示描述符既没有稳定 ID 也没有远程 URL，属于调用方错误。
var ErrInvalidDescriptor = errors.New("invalid descriptor: stable id or url required")

// Descriptor 描述一次图片请求，由调用方按请求构造，管线不会修改它。
type Descriptor struct {
	// ID 是实体的稳定标识，0 表示缺省。
	ID int64
	// URL 是远程图片地址，可以为空（此时由上游模板补齐）。
	URL string
	Kind Kind
	// Retained 表示实体已被用户持久保留（收藏或加入媒体库），命中磁盘缓存时触发晋升。
	Retained bool
	// LastModified 是元数据版本号，参与缓存键以实现 cache busting。
	LastModified int64
}

// HasID 报告描述符是否携带稳定 ID。
func (d Descriptor) HasID() bool {
	return d.ID != 0
}

// Validate 检查描述符是否足以派生缓存键。
func (d Descriptor) Validate() error {
	if strings.TrimSpace(string(d.Kind)) == "" {
		return ErrInvalidDescriptor
	}
	if !d.HasID() && strings.TrimSpace(d.URL) == "" {
		return ErrInvalidDescriptor
	}
	return nil
}

// ParseKind normalizes a user supplied kind name.
func ParseKind(raw string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(raw)))
}

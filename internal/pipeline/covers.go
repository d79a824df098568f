package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/any-hub/coverhub/internal/descriptor"
)

// ErrNoCoverStore 表示该管线未配置永久封面存储。
var ErrNoCoverStore = errors.New("cover store not configured")

// SetCover 写入用户上传的封面，之后的解析都会优先命中它。
func (p *Pipeline) SetCover(ctx context.Context, d descriptor.Descriptor, body io.Reader) (string, error) {
	if p.resolver == nil {
		return "", ErrNoCoverStore
	}
	d, err := p.normalize(d)
	if err != nil {
		return "", err
	}
	path, err := p.resolver.Locate(d)
	if err != nil {
		return "", err
	}
	if _, err := p.covers.Write(ctx, path, body); err != nil {
		return "", err
	}
	return path, nil
}

// DeleteCover 删除永久封面（取消收藏或用户删除封面），文件不存在时返回 false。
func (p *Pipeline) DeleteCover(d descriptor.Descriptor) (bool, error) {
	if p.resolver == nil {
		return false, ErrNoCoverStore
	}
	d, err := p.normalize(d)
	if err != nil {
		return false, err
	}
	path, err := p.resolver.Locate(d)
	if err != nil {
		return false, err
	}
	return p.covers.Delete(path)
}

// Evict 删除描述符对应的内存与磁盘缓存条目，永久封面不受影响。
func (p *Pipeline) Evict(d descriptor.Descriptor) error {
	key, err := p.Key(d)
	if err != nil {
		return err
	}
	if p.memory != nil {
		p.memory.Remove(key)
	}
	if p.disk != nil {
		return p.disk.Remove(key)
	}
	return nil
}

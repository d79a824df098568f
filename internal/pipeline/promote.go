package pipeline

import (
	"bytes"
	"context"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/coverhub/internal/descriptor"
	"github.com/any-hub/coverhub/internal/logging"
)

// promote 将已校验的磁盘缓存内容写入永久封面存储，成功后删除磁盘条目。
// 写入失败时目标文件不会残留，磁盘条目保持不变，调用方继续用 data 提供本次结果。
func (p *Pipeline) promote(ctx context.Context, d descriptor.Descriptor, key string, data []byte) (*Result, bool) {
	fields := logging.ResolveFields(string(p.kind), key, SourceOverride.String())

	target, err := p.resolver.Locate(d)
	if err != nil {
		p.metrics.Promoted(string(p.kind), false)
		p.logger.WithError(err).WithFields(fields).Warn("promotion_failed")
		return nil, false
	}

	if _, err := p.covers.Write(ctx, target, bytes.NewReader(data)); err != nil {
		p.metrics.Promoted(string(p.kind), false)
		p.logger.WithError(err).WithFields(fields).WithField("target", target).Warn("promotion_failed")
		return nil, false
	}

	f, err := p.covers.Open(target)
	if err != nil {
		p.metrics.Promoted(string(p.kind), false)
		p.logger.WithError(err).WithFields(fields).WithField("target", target).Warn("promotion_open_failed")
		return nil, false
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		p.metrics.Promoted(string(p.kind), false)
		p.logger.WithError(err).WithFields(fields).WithField("target", target).Warn("promotion_open_failed")
		return nil, false
	}

	if err := p.disk.Remove(key); err != nil {
		p.degrade(key, "disk_remove", err, "cache_remove_failed")
	}

	p.metrics.Promoted(string(p.kind), true)
	p.logger.WithFields(fields).WithFields(logrus.Fields{
		"target": target,
		"bytes":  info.Size(),
	}).Info("promotion_done")

	return &Result{
		Source: SourceOverride,
		Key:    key,
		Path:   target,
		Size:   info.Size(),
		Body:   f,
	}, true
}

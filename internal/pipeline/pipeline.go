package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/coverhub/internal/cache"
	"github.com/any-hub/coverhub/internal/cover"
	"github.com/any-hub/coverhub/internal/descriptor"
	"github.com/any-hub/coverhub/internal/logging"
	"github.com/any-hub/coverhub/internal/memcache"
	"github.com/any-hub/coverhub/internal/metrics"
)

// Config 汇总构建 Pipeline 所需的依赖。Disk/Memory/Covers 可以为 nil，对应层即被跳过。
type Config struct {
	Kind    descriptor.Kind
	Keyer   descriptor.Keyer
	Fetcher Fetcher

	Covers  *cover.Store
	Locator cover.Locator
	Disk    *cache.DiskCache
	Memory  *memcache.Cache

	Logger  *logrus.Logger
	Metrics *metrics.Recorder
}

// Pipeline 负责 orchestrate “永久封面 → 磁盘缓存 → 回源写缓存” 的全流程。
type Pipeline struct {
	kind     descriptor.Kind
	keyer    descriptor.Keyer
	fetcher  Fetcher
	covers   *cover.Store
	resolver *cover.Resolver
	disk     *cache.DiskCache
	memory   *memcache.Cache
	logger   *logrus.Logger
	metrics  *metrics.Recorder
}

// New constructs a pipeline for one entity kind.
func New(cfg Config) (*Pipeline, error) {
	kind := descriptor.ParseKind(string(cfg.Kind))
	if kind == "" {
		return nil, errors.New("kind is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Covers != nil && cfg.Locator == nil {
		return nil, errors.New("cover locator is required when a cover store is configured")
	}
	keyer := cfg.Keyer
	if keyer == nil {
		keyer = descriptor.DefaultKeyer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	p := &Pipeline{
		kind:    kind,
		keyer:   keyer,
		fetcher: cfg.Fetcher,
		covers:  cfg.Covers,
		disk:    cfg.Disk,
		memory:  cfg.Memory,
		logger:  logger,
		metrics: cfg.Metrics,
	}
	if cfg.Covers != nil {
		p.resolver = cover.NewResolver(cfg.Covers, cfg.Locator)
	}
	return p, nil
}

// Kind returns the entity kind served by this pipeline.
func (p *Pipeline) Kind() descriptor.Kind {
	return p.kind
}

// Key 返回描述符的缓存键，与管线内部写入内存/磁盘缓存时使用的键一致。
func (p *Pipeline) Key(d descriptor.Descriptor) (string, error) {
	d, err := p.normalize(d)
	if err != nil {
		return "", err
	}
	return p.keyer.Key(d)
}

// Peek 仅查询内存缓存，供 UI 侧短路使用，不触发任何 I/O。
func (p *Pipeline) Peek(d descriptor.Descriptor) ([]byte, bool) {
	if p.memory == nil {
		return nil, false
	}
	key, err := p.Key(d)
	if err != nil {
		return nil, false
	}
	return p.memory.Get(key)
}

// Resolve 依次查询永久封面、磁盘缓存与网络。缓存层失败只会降级，
// 仅描述符非法或网络获取失败才会返回错误。
func (p *Pipeline) Resolve(ctx context.Context, d descriptor.Descriptor, opts Options) (*Result, error) {
	started := time.Now()
	result, err := p.resolve(ctx, d, opts)
	if err != nil {
		p.metrics.Failed(string(p.kind), failureReason(err), time.Since(started))
		return nil, err
	}
	p.metrics.Resolved(string(p.kind), result.Source.String(), time.Since(started))
	p.logger.WithFields(logging.ResolveFields(string(p.kind), result.Key, result.Source.String())).
		WithField("elapsed_ms", time.Since(started).Milliseconds()).
		Debug("resolve_done")
	return result, nil
}

func (p *Pipeline) resolve(ctx context.Context, d descriptor.Descriptor, opts Options) (*Result, error) {
	d, err := p.normalize(d)
	if err != nil {
		return nil, err
	}
	key, err := p.keyer.Key(d)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !opts.SkipOverride && p.resolver != nil {
		if result, ok := p.fromOverride(d, key); ok {
			return result, nil
		}
	}

	if !opts.SkipDiskRead && p.disk != nil {
		result, err := p.fromDisk(ctx, d, key, opts)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	return p.fromNetwork(ctx, d, key, opts)
}

// normalize 补齐缺省的 Kind，并拒绝与管线类型不一致的描述符。返回的是副本。
func (p *Pipeline) normalize(d descriptor.Descriptor) (descriptor.Descriptor, error) {
	if d.Kind == "" {
		d.Kind = p.kind
	}
	if descriptor.ParseKind(string(d.Kind)) != p.kind {
		return d, fmt.Errorf("%w: kind %q served by %q pipeline", descriptor.ErrInvalidDescriptor, d.Kind, p.kind)
	}
	return d, d.Validate()
}

func (p *Pipeline) fromOverride(d descriptor.Descriptor, key string) (*Result, bool) {
	path, ok, err := p.resolver.Resolve(d)
	if err != nil {
		p.degrade(key, "override", err, "override_lookup_failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	f, err := p.covers.Open(path)
	if err != nil {
		// 文件可能在存在性检查之后被外部删除，继续查询磁盘层。
		if !errors.Is(err, cover.ErrNotFound) {
			p.degrade(key, "override", err, "override_open_failed")
		}
		return nil, false
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		p.degrade(key, "override", err, "override_open_failed")
		return nil, false
	}

	return &Result{
		Source: SourceOverride,
		Key:    key,
		Path:   path,
		Size:   info.Size(),
		Body:   f,
	}, true
}

// fromDisk 返回 (nil, nil) 表示未命中或该层不可用。命中时先完整读取并校验长度，
// 读取失败的条目已在 Snapshot 内作废，本次按未命中回源。
func (p *Pipeline) fromDisk(ctx context.Context, d descriptor.Descriptor, key string, opts Options) (*Result, error) {
	snap, err := p.disk.Open(key)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrNotFound):
		return nil, nil
	case errors.Is(err, cache.ErrCorruptEntry):
		p.degrade(key, "disk_read", err, "cache_entry_corrupt")
		return nil, nil
	default:
		p.degrade(key, "disk_read", err, "cache_open_failed")
		return nil, nil
	}

	data, err := snap.Bytes()
	snap.Close()
	if err != nil {
		p.degrade(key, "disk_read", err, "cache_read_failed")
		return nil, nil
	}

	// SkipOverride 的请求既不读也不写永久封面。
	if d.Retained && !opts.SkipOverride && p.resolver != nil {
		if result, ok := p.promote(ctx, d, key, data); ok {
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return &Result{
		Source: SourceDisk,
		Key:    key,
		Size:   int64(len(data)),
		Data:   data,
		Body:   newByteBody(data),
	}, nil
}

func (p *Pipeline) fromNetwork(ctx context.Context, d descriptor.Descriptor, key string, opts Options) (*Result, error) {
	data, err := p.fetcher.Fetch(ctx, d, opts)
	if err != nil {
		p.logger.WithError(err).
			WithFields(logging.ResolveFields(string(p.kind), key, SourceNetwork.String())).
			Warn("fetch_failed")
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	memBytes := data
	if !opts.SkipDiskWrite && p.disk != nil {
		if committed, ok := p.writeDisk(ctx, key, data); ok {
			memBytes = committed
		}
	}
	if !opts.SkipMemoryWrite && p.memory != nil {
		p.memory.Add(key, memBytes)
	}

	return &Result{
		Source: SourceNetwork,
		Key:    key,
		Size:   int64(len(data)),
		Data:   data,
		Body:   newByteBody(data),
	}, nil
}

// writeDisk 尽力写入磁盘缓存，成功后重新打开条目读取已提交内容。
// 任何失败都只会跳过该层；Editor 由 defer Abort 保证在所有路径上释放。
func (p *Pipeline) writeDisk(ctx context.Context, key string, data []byte) ([]byte, bool) {
	ed, err := p.disk.Edit(key)
	if err != nil {
		if errors.Is(err, cache.ErrEditorUnavailable) {
			p.logger.WithFields(logging.TierFields(string(p.kind), key, "disk_write")).Debug("cache_editor_busy")
			return nil, false
		}
		p.degrade(key, "disk_write", err, "cache_edit_failed")
		return nil, false
	}
	defer ed.Abort()

	if err := writeWithContext(ctx, ed, data); err != nil {
		p.degrade(key, "disk_write", err, "cache_write_failed")
		return nil, false
	}
	if err := ed.Commit(); err != nil {
		p.degrade(key, "disk_write", err, "cache_commit_failed")
		return nil, false
	}

	snap, err := p.disk.Open(key)
	if err != nil {
		return nil, false
	}
	defer snap.Close()
	committed, err := snap.Bytes()
	if err != nil {
		return nil, false
	}
	return committed, true
}

func (p *Pipeline) degrade(key, tier string, err error, event string) {
	p.metrics.Degraded(string(p.kind), tier)
	p.logger.WithError(err).
		WithFields(logging.TierFields(string(p.kind), key, tier)).
		Warn(event)
}

const writeChunk = 32 * 1024

func writeWithContext(ctx context.Context, dst io.Writer, data []byte) error {
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := len(data)
		if n > writeChunk {
			n = writeChunk
		}
		if _, err := dst.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, descriptor.ErrInvalidDescriptor):
		return "invalid_descriptor"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

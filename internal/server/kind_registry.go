package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/coverhub/internal/cache"
	"github.com/any-hub/coverhub/internal/config"
	"github.com/any-hub/coverhub/internal/cover"
	"github.com/any-hub/coverhub/internal/descriptor"
	"github.com/any-hub/coverhub/internal/kindmodule"
	"github.com/any-hub/coverhub/internal/memcache"
	"github.com/any-hub/coverhub/internal/metrics"
	"github.com/any-hub/coverhub/internal/pipeline"
)

// Dependencies 汇总所有实体类型共享的实例，启动时构建一次。
// Disk/Memory/Covers 为 nil 时对应缓存层被跳过。
type Dependencies struct {
	Client  *http.Client
	Disk    *cache.DiskCache
	Memory  *memcache.Cache
	Covers  *cover.Store
	Logger  *logrus.Logger
	Metrics *metrics.Recorder
}

// KindRoute 将 Kind 配置、模块元数据与构建好的 Pipeline 聚合在一起，
// 供 HTTP handler 直接复用，避免重复解析配置。
type KindRoute struct {
	// Config 是用户在 config.toml 中声明的 Kind 字段副本。
	Config config.KindConfig
	Module kindmodule.KindMetadata
	// Policy 代表模块默认策略与配置覆盖合并后的结果。
	Policy      kindmodule.Policy
	UpstreamURL *url.URL
	Pipeline    *pipeline.Pipeline
}

// Options 将合并后的策略转换为单次请求的管线选项。
func (r *KindRoute) Options() pipeline.Options {
	return pipeline.Options{
		SkipOverride:    r.Policy.SkipOverride,
		SkipDiskRead:    r.Policy.SkipDiskRead,
		SkipDiskWrite:   r.Policy.SkipDiskWrite,
		SkipMemoryWrite: r.Policy.SkipMemoryWrite,
	}
}

// KindRegistry 提供实体类型到 KindRoute 的查询能力。
type KindRegistry struct {
	routes  map[string]*KindRoute
	ordered []*KindRoute
	disk    *cache.DiskCache
	memory  *memcache.Cache
}

// NewKindRegistry 根据配置为每个 Kind 构建 Pipeline。调用方应在启动阶段创建一次并复用。
func NewKindRegistry(cfg *config.Config, deps Dependencies) (*KindRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &KindRegistry{
		routes: make(map[string]*KindRoute, len(cfg.Kinds)),
		disk:   deps.Disk,
		memory: deps.Memory,
	}

	for _, kind := range cfg.Kinds {
		name := normalizeKind(kind.Name)
		if name == "" {
			return nil, errors.New("kind name is required")
		}
		if _, exists := registry.routes[name]; exists {
			return nil, fmt.Errorf("duplicate kind %s", name)
		}

		route, err := buildKindRoute(cfg, kind, deps)
		if err != nil {
			return nil, err
		}

		registry.routes[name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据类型名查找 KindRoute，大小写不敏感。
func (r *KindRegistry) Lookup(kind string) (*KindRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[normalizeKind(kind)]
	return route, ok
}

// List 返回当前注册的 KindRoute 列表（按配置定义的顺序），用于诊断输出。
func (r *KindRegistry) List() []KindRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]KindRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

// CacheStats 汇总共享缓存实例的运行状态。
type CacheStats struct {
	Disk   *cache.Stats    `json:"disk,omitempty"`
	Memory *memcache.Stats `json:"memory,omitempty"`
}

// Stats returns a point-in-time view of the shared caches.
func (r *KindRegistry) Stats() CacheStats {
	var stats CacheStats
	if r == nil {
		return stats
	}
	if r.disk != nil {
		s := r.disk.Stats()
		stats.Disk = &s
	}
	if r.memory != nil {
		s := r.memory.Stats()
		stats.Memory = &s
	}
	return stats
}

func buildKindRoute(cfg *config.Config, kind config.KindConfig, deps Dependencies) (*KindRoute, error) {
	meta, err := moduleMetadataForKind(kind)
	if err != nil {
		return nil, fmt.Errorf("kind %s: %w", kind.Name, err)
	}

	upstreamURL, err := url.Parse(kind.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream for kind %s: %w", kind.Name, err)
	}

	runtime := config.BuildKindRuntime(kind, meta)
	fetcher := NewUpstreamFetcher(deps.Client, FetcherOptions{
		Kind:           meta.Key,
		Upstream:       upstreamURL,
		MaxBytes:       meta.MaxFetchBytes,
		MaxRetries:     cfg.Global.MaxRetries,
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
		Logger:         deps.Logger,
	})

	pipeCfg := pipeline.Config{
		Kind:    descriptor.ParseKind(meta.Key),
		Fetcher: fetcher,
		Disk:    deps.Disk,
		Memory:  deps.Memory,
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
	}
	if deps.Covers != nil {
		pipeCfg.Covers = deps.Covers
		pipeCfg.Locator = deps.Covers.Locator(meta.CoverDir)
	}
	pipe, err := pipeline.New(pipeCfg)
	if err != nil {
		return nil, fmt.Errorf("kind %s: %w", kind.Name, err)
	}

	return &KindRoute{
		Config:      kind,
		Module:      runtime.Module,
		Policy:      runtime.Policy,
		UpstreamURL: upstreamURL,
		Pipeline:    pipe,
	}, nil
}

func moduleMetadataForKind(kind config.KindConfig) (kindmodule.KindMetadata, error) {
	if meta, ok := kindmodule.Resolve(kind.Name); ok {
		return meta, nil
	}
	return kindmodule.KindMetadata{}, fmt.Errorf("kind module %s is not registered", kind.Name)
}

func normalizeKind(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

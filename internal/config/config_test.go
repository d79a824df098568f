package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.MaxMemoryEntries == 0 || cfg.Global.MaxMemoryCacheSize == 0 {
		t.Fatalf("内存缓存容量应该自动填充默认值")
	}
	if cfg.Global.MaxDiskCacheSize != 100*1024*1024 {
		t.Fatalf("MaxDiskCacheSize 应当被解析, got %d", cfg.Global.MaxDiskCacheSize)
	}
	if !filepath.IsAbs(cfg.Global.StoragePath) {
		t.Fatalf("StoragePath 应转换为绝对路径: %s", cfg.Global.StoragePath)
	}
	if cfg.Global.InitialBackoff.DurationValue() != 500*time.Millisecond {
		t.Fatalf("InitialBackoff 解析错误: %v", cfg.Global.InitialBackoff.DurationValue())
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 10*time.Second {
		t.Fatalf("纯数字 Duration 应按秒解析: %v", cfg.Global.UpstreamTimeout.DurationValue())
	}
	if cfg.Kinds[1].Name != "avatar" {
		t.Fatalf("Kind 名称应转换为小写: %s", cfg.Kinds[1].Name)
	}
	if strings.HasSuffix(cfg.Kinds[0].Upstream, "/") {
		t.Fatalf("Upstream 末尾斜杠应被去除: %s", cfg.Kinds[0].Upstream)
	}
}

func TestValidateRejectsBadKind(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestCoverDirFallsBackToStoragePath(t *testing.T) {
	g := GlobalConfig{StoragePath: "/data"}
	if got := g.CoverDir(); got != filepath.Join("/data", "covers") {
		t.Fatalf("未配置 CoverPath 时应位于 StoragePath 下: %s", got)
	}
	g.CoverPath = "/covers"
	if got := g.CoverDir(); got != "/covers" {
		t.Fatalf("CoverPath 应优先生效: %s", got)
	}
	if got := g.CacheDir(); got != filepath.Join("/data", "cache") {
		t.Fatalf("缓存目录错误: %s", got)
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateRequiresPositiveCacheLimits(t *testing.T) {
	mutators := map[string]func(*GlobalConfig){
		"disk size":      func(g *GlobalConfig) { g.MaxDiskCacheSize = 0 },
		"disk entries":   func(g *GlobalConfig) { g.MaxDiskEntries = -1 },
		"memory size":    func(g *GlobalConfig) { g.MaxMemoryCacheSize = 0 },
		"memory entries": func(g *GlobalConfig) { g.MaxMemoryEntries = 0 },
	}
	for name, mutate := range mutators {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg.Global)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestKindNameValidation(t *testing.T) {
	testCases := []struct {
		name      string
		kindName  string
		shouldErr bool
	}{
		{"poster ok", "poster", false},
		{"avatar ok", "avatar", false},
		{"bucket ok", "Bucket", false},
		{"missing name", "", true},
		{"unsupported kind", "banner", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Kinds[0].Name = tc.kindName
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for kind %q", tc.kindName)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for kind %q: %v", tc.kindName, err)
			}
		})
	}
}

func TestValidateRejectsDuplicateKinds(t *testing.T) {
	cfg := validConfig()
	cfg.Kinds = append(cfg.Kinds, KindConfig{Name: "POSTER", Upstream: "https://other.example.com"})
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("重复 Kind 应报错")
	}
	if fe, ok := err.(FieldError); !ok || fe.Field != "Kind[poster].Name" {
		t.Fatalf("错误字段不符合预期: %v", err)
	}
}

func TestValidateRejectsBadUpstream(t *testing.T) {
	for _, upstream := range []string{"", "ftp://x", "https://"} {
		cfg := validConfig()
		cfg.Kinds[0].Upstream = upstream
		if err := cfg.Validate(); err == nil {
			t.Fatalf("upstream %q 应报错", upstream)
		}
	}
}

func TestRuntimesMergePolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Kinds[0].SkipDiskWrite = true

	runtimes := cfg.Runtimes()
	if len(runtimes) != 1 {
		t.Fatalf("expected 1 runtime, got %d", len(runtimes))
	}
	rt := runtimes[0]
	if rt.Module.Key != "poster" || rt.Module.CoverDir != "posters" {
		t.Fatalf("模块元数据错误: %+v", rt.Module)
	}
	if !rt.Policy.SkipDiskWrite || rt.Policy.SkipDiskRead {
		t.Fatalf("策略合并错误: %+v", rt.Policy)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:         5000,
			StoragePath:        "./data",
			MaxDiskCacheSize:   1024,
			MaxDiskEntries:     10,
			MaxMemoryCacheSize: 1024,
			MaxMemoryEntries:   10,
			MaxRetries:         1,
			InitialBackoff:     Duration(time.Second),
			UpstreamTimeout:    Duration(time.Second),
		},
		Kinds: []KindConfig{
			{
				Name:     "poster",
				Upstream: "https://img.example.com",
			},
		},
	}
}

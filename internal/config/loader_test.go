package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"

[[Kind]]
Name = "poster"
Upstream = "https://img.example.com"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadRejectsKindLevelCacheLimits(t *testing.T) {
	cfg := `
StoragePath = "./data"

[[Kind]]
Name = "poster"
Upstream = "https://img.example.com"
MaxDiskCacheSize = 1024
`
	path := writeTempConfig(t, cfg)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Kind 级缓存容量应被拒绝")
	}
	if fe, ok := err.(FieldError); !ok || fe.Field != "Kind[poster].MaxDiskCacheSize" {
		t.Fatalf("错误字段不符合预期: %v", err)
	}
}

func TestLoadResolvesCoverPath(t *testing.T) {
	cfg := `
StoragePath = "./data"
CoverPath = "./covers"

[[Kind]]
Name = "bucket"
Upstream = "https://img.example.com"
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.CoverDir() == "./covers" {
		t.Fatalf("CoverPath 应转换为绝对路径")
	}
}

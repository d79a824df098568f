package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/any-hub/coverhub/internal/kindmodule"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有实体类型共享同一组缓存实例与上游参数。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	StoragePath        string   `mapstructure:"StoragePath"`
	CoverPath          string   `mapstructure:"CoverPath"`
	MaxDiskCacheSize   int64    `mapstructure:"MaxDiskCacheSize"`
	MaxDiskEntries     int      `mapstructure:"MaxDiskEntries"`
	MaxMemoryCacheSize int64    `mapstructure:"MaxMemoryCacheSize"`
	MaxMemoryEntries   int      `mapstructure:"MaxMemoryEntries"`
	MaxRetries         int      `mapstructure:"MaxRetries"`
	InitialBackoff     Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
}

// KindConfig 决定单个实体类型从哪里回源以及关闭哪些缓存层。
type KindConfig struct {
	Name            string `mapstructure:"Name"`
	Upstream        string `mapstructure:"Upstream"`
	SkipOverride    bool   `mapstructure:"SkipOverride"`
	SkipDiskRead    bool   `mapstructure:"SkipDiskRead"`
	SkipDiskWrite   bool   `mapstructure:"SkipDiskWrite"`
	SkipMemoryWrite bool   `mapstructure:"SkipMemoryWrite"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Kinds  []KindConfig `mapstructure:"Kind"`
}

// CacheDir 返回磁盘缓存目录。
func (g GlobalConfig) CacheDir() string {
	return filepath.Join(g.StoragePath, "cache")
}

// CoverDir 返回永久封面根目录，未配置 CoverPath 时位于 StoragePath 下。
func (g GlobalConfig) CoverDir() string {
	if g.CoverPath != "" {
		return g.CoverPath
	}
	return filepath.Join(g.StoragePath, "covers")
}

// PolicyOverrides 将 Kind 级开关映射为模块策略覆盖项。
func (k KindConfig) PolicyOverrides() kindmodule.PolicyOverrides {
	return kindmodule.PolicyOverrides{
		SkipOverride:    k.SkipOverride,
		SkipDiskRead:    k.SkipDiskRead,
		SkipDiskWrite:   k.SkipDiskWrite,
		SkipMemoryWrite: k.SkipMemoryWrite,
	}
}

// KindNames 返回所有 Kind 名称，供启动日志使用。
func KindNames(kinds []KindConfig) []string {
	if len(kinds) == 0 {
		return nil
	}
	result := make([]string, len(kinds))
	for i, kind := range kinds {
		result[i] = kind.Name
	}
	return result
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/any-hub/coverhub/internal/kindmodule"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.MaxDiskCacheSize <= 0 {
		return newFieldError("Global.MaxDiskCacheSize", "必须大于 0")
	}
	if g.MaxDiskEntries <= 0 {
		return newFieldError("Global.MaxDiskEntries", "必须大于 0")
	}
	if g.MaxMemoryCacheSize <= 0 {
		return newFieldError("Global.MaxMemoryCacheSize", "必须大于 0")
	}
	if g.MaxMemoryEntries <= 0 {
		return newFieldError("Global.MaxMemoryEntries", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if len(c.Kinds) == 0 {
		return errors.New("至少需要配置一个 Kind")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Kinds {
		kind := &c.Kinds[i]
		name := strings.ToLower(strings.TrimSpace(kind.Name))
		if name == "" {
			return newFieldError("Kind[].Name", "不能为空")
		}
		if _, exists := seenNames[name]; exists {
			return newFieldError(kindField(name, "Name"), "重复")
		}
		seenNames[name] = struct{}{}
		kind.Name = name

		if _, ok := kindmodule.Resolve(name); !ok {
			return newFieldError(kindField(name, "Name"), fmt.Sprintf("未注册类型，仅支持 %s", strings.Join(kindmodule.Keys(), "|")))
		}
		if err := validateUpstream(kind.Upstream); err != nil {
			return fmt.Errorf("%s: %w", kindField(name, "Upstream"), err)
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}

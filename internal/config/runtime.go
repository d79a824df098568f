package config

import (
	"github.com/any-hub/coverhub/internal/kindmodule"
)

// KindRuntime 将 Kind 配置与模块元数据合并，方便运行时快速取用策略。
type KindRuntime struct {
	Config KindConfig
	Module kindmodule.KindMetadata
	Policy kindmodule.Policy
}

// BuildKindRuntime 根据 Kind 配置和模块元数据创建运行时描述。
func BuildKindRuntime(cfg KindConfig, meta kindmodule.KindMetadata) KindRuntime {
	return KindRuntime{
		Config: cfg,
		Module: meta,
		Policy: kindmodule.ResolvePolicy(meta, cfg.PolicyOverrides()),
	}
}

// Runtimes 为每个已校验的 Kind 生成运行时描述（假定 Validate 已经通过）。
func (c *Config) Runtimes() []KindRuntime {
	result := make([]KindRuntime, 0, len(c.Kinds))
	for _, kind := range c.Kinds {
		meta, ok := kindmodule.Resolve(kind.Name)
		if !ok {
			continue
		}
		result = append(result, BuildKindRuntime(kind, meta))
	}
	return result
}

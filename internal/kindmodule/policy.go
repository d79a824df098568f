package kindmodule

// PolicyOverrides 描述来自 Kind 配置的覆盖项，只能关闭缓存层，不能重新打开。
type PolicyOverrides struct {
	SkipOverride    bool
	SkipDiskRead    bool
	SkipDiskWrite   bool
	SkipMemoryWrite bool
}

// ResolvePolicy 将类型默认策略与配置覆盖合并。
func ResolvePolicy(meta KindMetadata, opts PolicyOverrides) Policy {
	policy := meta.Policy
	policy.SkipOverride = policy.SkipOverride || opts.SkipOverride
	policy.SkipDiskRead = policy.SkipDiskRead || opts.SkipDiskRead
	policy.SkipDiskWrite = policy.SkipDiskWrite || opts.SkipDiskWrite
	policy.SkipMemoryWrite = policy.SkipMemoryWrite || opts.SkipMemoryWrite
	return policy
}

// Normalize fills metadata defaults derived from the key.
func Normalize(meta KindMetadata) KindMetadata {
	if meta.CoverDir == "" {
		meta.CoverDir = meta.Key + "s"
	}
	if meta.MaxFetchBytes < 0 {
		meta.MaxFetchBytes = 0
	}
	return meta
}

package kindmodule

// Policy 描述单个实体类型默认启用哪些缓存层。零值表示全部启用。
type Policy struct {
	SkipOverride    bool
	SkipDiskRead    bool
	SkipDiskWrite   bool
	SkipMemoryWrite bool
}

// KindMetadata 记录一个实体类型的静态信息，供配置校验、管线构建和诊断端使用。
type KindMetadata struct {
	Key         string
	Description string
	// CoverDir 是永久封面存储下的子目录名。
	CoverDir string
	// MaxFetchBytes 限制单次上游响应体大小，0 表示使用全局默认值。
	MaxFetchBytes int64
	Policy        Policy
}

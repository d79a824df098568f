// Package avatar 注册头像类型的管线元数据。
package avatar

import "github.com/any-hub/coverhub/internal/kindmodule"

const avatarMaxFetchBytes = 2 << 20

// 头像体积小，仅收紧响应大小，其余沿用默认策略。
func init() {
	kindmodule.MustRegister(kindmodule.KindMetadata{
		Key:           "avatar",
		Description:   "Person and profile avatars",
		CoverDir:      "avatars",
		MaxFetchBytes: avatarMaxFetchBytes,
	})
}

// Package bucket 注册合集封面类型的管线元数据。
package bucket

import "github.com/any-hub/coverhub/internal/kindmodule"

const bucketMaxFetchBytes = 10 << 20

// 合集封面多为用户上传，永久封面优先级最高。
func init() {
	kindmodule.MustRegister(kindmodule.KindMetadata{
		Key:           "bucket",
		Description:   "User collection covers, usually uploaded explicitly",
		CoverDir:      "buckets",
		MaxFetchBytes: bucketMaxFetchBytes,
	})
}

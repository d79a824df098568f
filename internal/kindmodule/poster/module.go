// Package poster 注册海报类型的管线元数据。
package poster

import "github.com/any-hub/coverhub/internal/kindmodule"

const posterMaxFetchBytes = 20 << 20

func init() {
	kindmodule.MustRegister(kindmodule.KindMetadata{
		Key:           "poster",
		Description:   "Title posters and backdrops, promoted when the title is favorited or in the library",
		CoverDir:      "posters",
		MaxFetchBytes: posterMaxFetchBytes,
	})
}

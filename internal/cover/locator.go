package cover

import (
	"path/filepath"
	"strings"

	"github.com/any-hub/coverhub/internal/descriptor"
)

const coverExt = ".img"

// Locator 决定描述符对应的永久封面文件路径，由管线按实体类型注入。
type Locator interface {
	CoverFile(d descriptor.Descriptor) (string, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(descriptor.Descriptor) (string, error)

// CoverFile makes LocatorFunc satisfy Locator.
func (f LocatorFunc) CoverFile(d descriptor.Descriptor) (string, error) {
	return f(d)
}

// Locator 返回把封面放在 <root>/<dir>/ 下的定位器，文件名为覆盖键的 sha1。
// 文件名与 LastModified 无关，元数据刷新后仍指向同一文件。
func (s *Store) Locator(dir string) Locator {
	dir = strings.Trim(filepath.Clean("/"+dir), "/")
	if dir == "" || dir == "." {
		dir = "default"
	}
	base := filepath.Join(s.root, dir)
	return LocatorFunc(func(d descriptor.Descriptor) (string, error) {
		key, err := descriptor.DeriveOverrideKey(d)
		if err != nil {
			return "", err
		}
		return filepath.Join(base, descriptor.Digest(key)+coverExt), nil
	})
}

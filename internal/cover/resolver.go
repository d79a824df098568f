package cover

import "github.com/any-hub/coverhub/internal/descriptor"

// Resolver 在所有其它层之前查询永久封面。
type Resolver struct {
	store   *Store
	locator Locator
}

// NewResolver binds a store to the locator of one entity kind.
func NewResolver(store *Store, locator Locator) *Resolver {
	return &Resolver{store: store, locator: locator}
}

// Locate returns the cover path for d whether or not the file exists.
func (r *Resolver) Locate(d descriptor.Descriptor) (string, error) {
	return r.locator.CoverFile(d)
}

// Resolve 返回已存在的封面路径。每次调用都重新检查文件系统，
// 因为外部进程可能随时删除封面。
func (r *Resolver) Resolve(d descriptor.Descriptor) (string, bool, error) {
	path, err := r.locator.CoverFile(d)
	if err != nil {
		return "", false, err
	}
	if !r.store.Exists(path) {
		return path, false, nil
	}
	return path, true, nil
}

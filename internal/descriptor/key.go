package descriptor

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
)

// Keyer 将描述符映射为稳定的字符串键。UI 侧代码可复用同一个 Keyer
// 对内存缓存做短路查询，确保与管线写入的键一致。
type Keyer interface {
	Key(d Descriptor) (string, error)
}

// KeyerFunc adapts a function to the Keyer interface.
type KeyerFunc func(Descriptor) (string, error)

// Key makes KeyerFunc satisfy Keyer.
func (f KeyerFunc) Key(d Descriptor) (string, error) {
	return f(d)
}

// DefaultKeyer 使用 DeriveKey 作为键派生规则。
var DefaultKeyer Keyer = KeyerFunc(DeriveKey)

// DeriveKey 返回 <kind>/id/<ID>@<LastModified>；缺少 ID 时以 URL 摘要代替。
// LastModified 始终参与派生，元数据刷新后键随之变化。
func DeriveKey(d Descriptor) (string, error) {
	base, err := identity(d)
	if err != nil {
		return "", err
	}
	return base + "@" + strconv.FormatInt(d.LastModified, 10), nil
}

// DeriveOverrideKey 仅由 (Kind, ID 或 URL) 派生，与 LastModified 无关，
// 因此晋升后的永久封面在元数据刷新后仍然可以命中。
func DeriveOverrideKey(d Descriptor) (string, error) {
	return identity(d)
}

func identity(d Descriptor) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	kind := string(ParseKind(string(d.Kind)))
	if d.HasID() {
		return kind + "/id/" + strconv.FormatInt(d.ID, 10), nil
	}
	return kind + "/url/" + Digest(strings.TrimSpace(d.URL)), nil
}

// Digest 返回 value 的 sha1 十六进制摘要，用于文件命名。
func Digest(value string) string {
	sum := sha1.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

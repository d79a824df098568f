package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResolveFields 提供 kind/key/来源层字段，供管线与 HTTP 请求日志复用。
func ResolveFields(kind, key, source string) logrus.Fields {
	return logrus.Fields{
		"kind":   kind,
		"key":    key,
		"source": source,
	}
}

// TierFields 描述某一缓存层的降级事件。
func TierFields(kind, key, tier string) logrus.Fields {
	return logrus.Fields{
		"kind": kind,
		"key":  key,
		"tier": tier,
	}
}

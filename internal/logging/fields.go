package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供应用/策略/来源字段，供拦截请求日志复用。
func RequestFields(app, cacheName, strategy, source string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"app":        app,
		"cache_name": cacheName,
		"strategy":   strategy,
		"source":     source,
		"cache_hit":  cacheHit,
	}
}

// StoreFields 描述一次缓存存储操作涉及的 store 与 key。
func StoreFields(action, store, key string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"store":  store,
		"key":    key,
	}
}

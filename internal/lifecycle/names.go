package lifecycle

import "strings"

// Names 由应用前缀与版本号推导缓存名。
// 只有修改 Version 才会让旧的外壳缓存过期。
type Names struct {
	Prefix  string
	Version string
}

// NewNames 构造 Names。
func NewNames(prefix, version string) Names {
	return Names{Prefix: prefix, Version: version}
}

// Shell 返回当前外壳缓存名：<prefix>-<version>。
func (n Names) Shell() string {
	return n.Prefix + "-" + n.Version
}

// API 返回当前 API 缓存名：<prefix>-<version>-api。
func (n Names) API() string {
	return n.Shell() + "-api"
}

// Owned 判断 name 是否带有本应用前缀。
func (n Names) Owned(name string) bool {
	return strings.HasPrefix(name, n.Prefix+"-")
}

// Current 判断 name 是否为当前版本的缓存。
func (n Names) Current(name string) bool {
	return name == n.Shell() || name == n.API()
}

// Obsolete 判断 name 属于本应用但版本不同。
func (n Names) Obsolete(name string) bool {
	return n.Owned(name) && !n.Current(name)
}

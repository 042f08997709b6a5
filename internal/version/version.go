package version

import "fmt"

// Version/Commit 可在构建时通过 -ldflags 注入。Version 同时作为缓存版本标签，
// 变更它即意味着下一次激活会淘汰旧的 shell/API 缓存。
var (
	Version = "0.2.2"
	Commit  = "dev"
)

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("shellcache %s (%s)", Version, Commit)
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.ControlPort < 0 || g.ControlPort > 65535 {
		return newFieldError("Global.ControlPort", "必须在 0-65535（0 表示关闭）")
	}
	if g.ControlPort != 0 && g.ControlPort == g.ListenPort {
		return newFieldError("Global.ControlPort", "不能与 ListenPort 相同")
	}
	switch g.StorageDriver {
	case StorageDriverFS, StorageDriverSQLite:
	default:
		return newFieldError("Global.StorageDriver", "仅支持 fs/sqlite")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	return c.App.validate()
}

func (a *AppConfig) validate() error {
	if err := validateName(a.Name); err != nil {
		return fmt.Errorf("%s: %w", appField("Name"), err)
	}
	if err := validateOrigin(a.Origin); err != nil {
		return fmt.Errorf("%s: %w", appField("Origin"), err)
	}
	if strings.ContainsAny(a.CacheVersion, " /") {
		return newFieldError(appField("CacheVersion"), "不允许包含空格或斜杠")
	}
	if !strings.HasPrefix(a.APIPrefix, "/") {
		return newFieldError(appField("APIPrefix"), "必须以 / 开头")
	}
	for field, urls := range map[string][]string{
		"CriticalURLs":   a.CriticalURLs,
		"RevalidateURLs": a.RevalidateURLs,
		"FallbackURLs":   a.FallbackURLs,
	} {
		for _, raw := range urls {
			if !strings.HasPrefix(raw, "/") {
				return newFieldError(appField(field), fmt.Sprintf("必须是以 / 开头的站内路径: %s", raw))
			}
		}
	}
	if a.ShellMaxEntries <= 0 {
		return newFieldError(appField("ShellMaxEntries"), "必须大于 0")
	}
	if a.APIMaxEntries <= 0 {
		return newFieldError(appField("APIMaxEntries"), "必须大于 0")
	}
	if a.NavigationTimeout.DurationValue() <= 0 {
		return newFieldError(appField("NavigationTimeout"), "必须大于 0")
	}
	if a.APITimeout.DurationValue() <= 0 {
		return newFieldError(appField("APITimeout"), "必须大于 0")
	}
	if a.StaticMaxAge.DurationValue() <= 0 {
		return newFieldError(appField("StaticMaxAge"), "必须大于 0")
	}
	if a.RevalidateInterval.DurationValue() < 0 {
		return newFieldError(appField("RevalidateInterval"), "不能为负数（0 表示关闭定时刷新）")
	}
	if a.InstallAttempts <= 0 {
		return newFieldError(appField("InstallAttempts"), "必须大于 0")
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(name, " /\\") {
		return errors.New("不允许包含空格或路径分隔符")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	return nil
}

// OriginURL 返回解析后的源站地址，调用前应已通过 Validate。
func (a AppConfig) OriginURL() (*url.URL, error) {
	if err := validateOrigin(a.Origin); err != nil {
		return nil, err
	}
	return url.Parse(a.Origin)
}

package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/shellcache/shellcache/internal/version"
)

// EnvPrefix 为环境变量覆盖的前缀，例如 SHELLCACHE_APP_ORIGIN 覆盖 [App].Origin。
const EnvPrefix = "SHELLCACHE"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyAppDefaults(&cfg.App)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("ControlPort", 5001)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StorageDriver", StorageDriverFS)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("InitialBackoff", "500ms")
	v.SetDefault("UpstreamTimeout", "30s")

	v.SetDefault("App.Name", "shellcache")
	v.SetDefault("App.Origin", "")
	v.SetDefault("App.CacheVersion", "")
	v.SetDefault("App.APIPrefix", "/api/")
	v.SetDefault("App.IgnorePatterns", DefaultIgnorePatterns())
	v.SetDefault("App.CriticalURLs", DefaultCriticalURLs())
	v.SetDefault("App.RevalidateURLs", DefaultRevalidateURLs())
	v.SetDefault("App.FallbackURLs", DefaultFallbackURLs())
	v.SetDefault("App.ShellMaxEntries", 100)
	v.SetDefault("App.APIMaxEntries", 50)
	v.SetDefault("App.NavigationTimeout", "5s")
	v.SetDefault("App.APITimeout", "10s")
	v.SetDefault("App.StaticMaxAge", "24h")
	v.SetDefault("App.RevalidateInterval", "30s")
	v.SetDefault("App.InstallAttempts", 3)
	v.SetDefault("App.SkipWaiting", true)
}

// DefaultIgnorePatterns 列出不应被拦截的 URL 片段：浏览器扩展与开发期热更新通道。
func DefaultIgnorePatterns() []string {
	return []string{"chrome-extension://", "browser-sync", "sockjs"}
}

// DefaultCriticalURLs 为安装阶段预热的应用外壳资源。
func DefaultCriticalURLs() []string {
	return []string{"/", "/app.js", "/style.css", "/manifest.json"}
}

// DefaultRevalidateURLs 为后台刷新覆盖的外壳资源。
func DefaultRevalidateURLs() []string {
	return []string{"/", "/app.js", "/style.css"}
}

// DefaultFallbackURLs 为导航失败时依次尝试的缓存键。
func DefaultFallbackURLs() []string {
	return []string{"/", "/index.html"}
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	g.StorageDriver = strings.ToLower(strings.TrimSpace(g.StorageDriver))
	if g.StorageDriver == "" {
		g.StorageDriver = StorageDriverFS
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(500 * time.Millisecond)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

func applyAppDefaults(a *AppConfig) {
	a.Name = strings.TrimSpace(a.Name)
	a.Origin = strings.TrimRight(strings.TrimSpace(a.Origin), "/")
	if strings.TrimSpace(a.CacheVersion) == "" {
		a.CacheVersion = version.Version
	}
	if a.APIPrefix == "" {
		a.APIPrefix = "/api/"
	}
	if a.ShellMaxEntries == 0 {
		a.ShellMaxEntries = 100
	}
	if a.APIMaxEntries == 0 {
		a.APIMaxEntries = 50
	}
	if a.NavigationTimeout.DurationValue() == 0 {
		a.NavigationTimeout = Duration(5 * time.Second)
	}
	if a.APITimeout.DurationValue() == 0 {
		a.APITimeout = Duration(10 * time.Second)
	}
	if a.StaticMaxAge.DurationValue() == 0 {
		a.StaticMaxAge = Duration(24 * time.Hour)
	}
	if a.InstallAttempts == 0 {
		a.InstallAttempts = 3
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

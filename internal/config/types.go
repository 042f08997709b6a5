package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// StorageDriver 取值。
const (
	StorageDriverFS     = "fs"
	StorageDriverSQLite = "sqlite"
)

// GlobalConfig 描述进程级运行参数：监听端口、日志、存储与上游客户端。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	ControlPort     int      `mapstructure:"ControlPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StorageDriver   string   `mapstructure:"StorageDriver"`
	StoragePath     string   `mapstructure:"StoragePath"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// AppConfig 描述被缓存的 Web 应用：源站地址、缓存命名与各策略参数。
type AppConfig struct {
	Name               string   `mapstructure:"Name"`
	Origin             string   `mapstructure:"Origin"`
	CacheVersion       string   `mapstructure:"CacheVersion"`
	APIPrefix          string   `mapstructure:"APIPrefix"`
	IgnorePatterns     []string `mapstructure:"IgnorePatterns"`
	CriticalURLs       []string `mapstructure:"CriticalURLs"`
	RevalidateURLs     []string `mapstructure:"RevalidateURLs"`
	FallbackURLs       []string `mapstructure:"FallbackURLs"`
	ShellMaxEntries    int      `mapstructure:"ShellMaxEntries"`
	APIMaxEntries      int      `mapstructure:"APIMaxEntries"`
	NavigationTimeout  Duration `mapstructure:"NavigationTimeout"`
	APITimeout         Duration `mapstructure:"APITimeout"`
	StaticMaxAge       Duration `mapstructure:"StaticMaxAge"`
	RevalidateInterval Duration `mapstructure:"RevalidateInterval"`
	InstallAttempts    int      `mapstructure:"InstallAttempts"`
	SkipWaiting        bool     `mapstructure:"SkipWaiting"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	App    AppConfig    `mapstructure:"App"`
}

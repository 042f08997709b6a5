package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shellcache/shellcache/internal/config"
	"github.com/shellcache/shellcache/internal/version"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "shellcache.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shellcache.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("未知日志级别应返回错误")
	}
}

func TestRequestFieldsCarryCacheHit(t *testing.T) {
	fields := RequestFields("journal", "journal-0.2.2", "static", "cache", true)
	if fields["cache_hit"] != true {
		t.Fatalf("cache_hit 字段缺失: %v", fields)
	}
	if fields["strategy"] != "static" || fields["source"] != "cache" {
		t.Fatalf("策略/来源字段不正确: %v", fields)
	}
}

func TestServiceHookStampsVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shellcache.log")
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info", LogFilePath: path})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.WithField("action", "probe").Info("hello")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志失败: %v", err)
	}
	if !strings.Contains(string(raw), `"service":"shellcache"`) {
		t.Fatalf("日志应包含 service 字段: %s", raw)
	}
	if !strings.Contains(string(raw), `"version":"`+version.Version+`"`) {
		t.Fatalf("日志应包含 version 字段: %s", raw)
	}
}

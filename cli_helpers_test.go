package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// captureCLI 将 stdOut/stdErr 换成内存缓冲，测试结束后恢复。
func captureCLI(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()

	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = out, errOut
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return out, errOut
}

// configFixture 返回 internal/config/testdata 下的夹具路径。
func configFixture(t *testing.T, name string) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("获取工作目录失败: %v", err)
	}
	return filepath.Join(wd, "internal", "config", "testdata", name)
}

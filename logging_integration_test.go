package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/templateflow/tfget/internal/testutil"
)

func TestLoggingFallbackToStderr(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 用户不受目录权限限制")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	stub := testutil.NewBucketStub(t)
	logPath := filepath.Join(blocked, "sub", "tfget.log")
	cfgPath, _ := stubConfig(t, stub, fmt.Sprintf("LogFilePath: %s", logPath))

	useBufferWriters(t, "")
	code := run([]string{"config", "--config", cfgPath})
	if code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d", code)
	}
}

func TestLoggingWritesRotatingFile(t *testing.T) {
	stub := testutil.NewBucketStub(t)
	logPath := filepath.Join(t.TempDir(), "logs", "tfget.log")
	cfgPath, _ := stubConfig(t, stub, fmt.Sprintf("LogFilePath: %s", logPath))

	useBufferWriters(t, "")
	if code := run([]string{"ls", "MNI152Lin", "--config", cfgPath, "--log-level", "info"}); code != 0 {
		t.Fatalf("ls 失败: %s", stdErrBuffer().String())
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("日志文件未生成: %v", err)
	}
	if !strings.Contains(string(data), "archive not cached") {
		t.Fatalf("日志应记录归档初始化: %s", data)
	}
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/testutil"
)

var repoRoot string

func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("无法定位项目根目录")
	}
	return repoRoot
}

func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "internal", "config", "testdata", name)
}

// clearEnv 清空 TEMPLATEFLOW_* 环境变量，避免宿主环境影响测试。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{config.EnvHome, config.EnvUseDatalad, config.EnvAutoupdate, config.EnvConfig, config.EnvLogLevel} {
		t.Setenv(name, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}

// stubConfig 写出指向桶模拟器的配置文件，返回配置路径与归档根目录。
func stubConfig(t *testing.T, stub *testutil.BucketStub, extra string) (string, string) {
	t.Helper()
	clearEnv(t)
	root := filepath.Join(t.TempDir(), "templateflow")
	cfg := stub.Config(root)
	path := writeConfigFile(t, fmt.Sprintf(`
Home: %s
S3Root: %s
SkeletonURL: %s
UseDatalad: "off"
LogLevel: error
%s
`, root, cfg.S3Root, cfg.SkeletonURL, extra))
	return path, root
}

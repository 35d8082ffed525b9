package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

// 环境变量名称，与 Python 客户端保持一致，方便两者共享同一个缓存目录。
const (
	EnvHome       = "TEMPLATEFLOW_HOME"
	EnvUseDatalad = "TEMPLATEFLOW_USE_DATALAD"
	EnvAutoupdate = "TEMPLATEFLOW_AUTOUPDATE"
	EnvConfig     = "TEMPLATEFLOW_CONFIG"
	EnvLogLevel   = "TEMPLATEFLOW_LOG_LEVEL"
)

var (
	switchesOn  = map[string]struct{}{"true": {}, "on": {}, "1": {}, "yes": {}, "y": {}}
	switchesOff = map[string]struct{}{"false": {}, "off": {}, "0": {}, "no": {}, "n": {}}
)

// ParseSwitch 将 on/off/true/false/1/0/yes/no 等开关写法（大小写不敏感）转换为布尔值。
// 第二个返回值表示 raw 是否属于可识别的词表。
func ParseSwitch(raw string) (bool, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := switchesOn[normalized]; ok {
		return true, true
	}
	if _, ok := switchesOff[normalized]; ok {
		return false, true
	}
	return false, false
}

// EnvToBool 读取环境变量开关；未设置时返回 def，无法识别时输出告警并退回 def。
func EnvToBool(name string, def bool) bool {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	return switchOrDefault(name, raw, def)
}

func switchOrDefault(name, raw string, def bool) bool {
	value, ok := ParseSwitch(raw)
	if ok {
		return value
	}
	logrus.WithFields(logrus.Fields{
		"action":  "parse_switch",
		"name":    name,
		"value":   raw,
		"default": def,
	}).Warnf("%s is set to unknown value <%s>, falling back to default value <%t>", name, raw, def)
	return def
}

// DefaultHome 返回平台默认缓存目录下的 templateflow 子目录。
func DefaultHome() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "templateflow")
	}
	if home, err := homedir.Dir(); err == nil {
		return filepath.Join(home, ".cache", "templateflow")
	}
	return filepath.Join(".cache", "templateflow")
}

// ResolveRoot 展开 "~" 并转换为绝对路径。
func ResolveRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultHome()
	}
	expanded, err := homedir.Expand(root)
	if err != nil {
		return "", fmt.Errorf("expand cache root %q: %w", root, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve cache root %q: %w", root, err)
	}
	return abs, nil
}

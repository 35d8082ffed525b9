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

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// CacheConfig 描述一个缓存根目录及其回源方式。构造完成后视为只读，
// 仅测试代码会直接改写字段。
type CacheConfig struct {
	// Root 是缓存根目录（TEMPLATEFLOW_HOME），Normalize 之后总是绝对路径。
	Root string `mapstructure:"Home"`
	// Origin 是 DataLad 数据集的克隆源。
	Origin string `mapstructure:"Origin"`
	// S3Root 是对象存储桶的 HTTP 根地址，资产路径直接拼接在其后。
	S3Root string `mapstructure:"S3Root"`
	// SkeletonURL 为远端骨架包的地址前缀，追加 ".md5" / ".zip" 后使用。
	SkeletonURL string   `mapstructure:"SkeletonURL"`
	UseDatalad  bool     `mapstructure:"UseDatalad"`
	Autoupdate  bool     `mapstructure:"Autoupdate"`
	Timeout     Duration `mapstructure:"Timeout"`
}

// LogConfig 控制 logrus 输出格式、级别以及 lumberjack 滚动参数。
type LogConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFormat     string `mapstructure:"LogFormat"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// Config 是配置文件 + 环境变量合并后的整体结构。
type Config struct {
	Cache CacheConfig `mapstructure:",squash"`
	Log   LogConfig   `mapstructure:",squash"`
}

// Mode 返回当前启用的回源模式名称，供日志与错误提示使用。
func (c CacheConfig) Mode() string {
	if c.UseDatalad {
		return "datalad"
	}
	return "s3"
}

// SkeletonChecksumURL 返回远端骨架包校验和文件的地址。
func (c CacheConfig) SkeletonChecksumURL() string {
	return c.SkeletonURL + ".md5"
}

// SkeletonArchiveURL 返回远端骨架包 zip 的地址。
func (c CacheConfig) SkeletonArchiveURL() string {
	return c.SkeletonURL + ".zip"
}

package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	DefaultOrigin      = "https://github.com/templateflow/templateflow.git"
	DefaultS3Root      = "https://templateflow.s3.amazonaws.com"
	DefaultSkeletonURL = "https://raw.githubusercontent.com/templateflow/python-client/master/templateflow/conf/templateflow-skel"
	DefaultTimeout     = 10 * time.Second
)

// switchDefaults 列出所有支持 on/off 词表的布尔键及其默认值和对应环境变量。
var switchDefaults = []struct {
	key string
	env string
	def bool
}{
	{key: "UseDatalad", env: EnvUseDatalad, def: false},
	{key: "Autoupdate", env: EnvAutoupdate, def: true},
	{key: "LogCompress", env: "", def: true},
}

// Load 依次合并默认值、可选配置文件（path 为空时读取 TEMPLATEFLOW_CONFIG）与环境变量，
// 并完成根目录归一化与语义校验。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	resolveSwitches(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyCacheDefaults(&cfg.Cache)
	applyLogDefaults(&cfg.Log)

	root, err := ResolveRoot(cfg.Cache.Root)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Cache.Root = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv 仅根据环境变量构造缓存配置，等价于 Python 客户端的默认全局配置。
func FromEnv() (CacheConfig, error) {
	cfg, err := Load("")
	if err != nil {
		return CacheConfig{}, err
	}
	return cfg.Cache, nil
}

// Normalize 填充缺省字段并把 Root 解析为绝对路径，供直接构造 CacheConfig 的调用方使用。
func (c *CacheConfig) Normalize() error {
	applyCacheDefaults(c)
	root, err := ResolveRoot(c.Root)
	if err != nil {
		return err
	}
	c.Root = root
	return c.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Home", "")
	v.SetDefault("Origin", DefaultOrigin)
	v.SetDefault("S3Root", DefaultS3Root)
	v.SetDefault("SkeletonURL", DefaultSkeletonURL)
	v.SetDefault("Timeout", "10s")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "text")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	for _, sw := range switchDefaults {
		v.SetDefault(sw.key, sw.def)
	}
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"Home":       EnvHome,
		"UseDatalad": EnvUseDatalad,
		"Autoupdate": EnvAutoupdate,
		"LogLevel":   EnvLogLevel,
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}
	return nil
}

// resolveSwitches 把字符串形式的开关值按词表转换成布尔值，无法识别时告警并退回默认值。
func resolveSwitches(v *viper.Viper) {
	for _, sw := range switchDefaults {
		raw, ok := v.Get(sw.key).(string)
		if !ok {
			continue
		}
		name := sw.env
		if name == "" {
			name = sw.key
		}
		v.Set(sw.key, switchOrDefault(name, raw, sw.def))
	}
}

func applyCacheDefaults(c *CacheConfig) {
	if strings.TrimSpace(c.Origin) == "" {
		c.Origin = DefaultOrigin
	}
	if strings.TrimSpace(c.S3Root) == "" {
		c.S3Root = DefaultS3Root
	}
	c.S3Root = strings.TrimRight(c.S3Root, "/")
	if strings.TrimSpace(c.SkeletonURL) == "" {
		c.SkeletonURL = DefaultSkeletonURL
	}
	if c.Timeout.DurationValue() == 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
}

func applyLogDefaults(l *LogConfig) {
	if l.LogLevel == "" {
		l.LogLevel = "info"
	}
	if l.LogFormat == "" {
		l.LogFormat = "text"
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

package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入缓存层。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Log.LogMaxSize < 0 {
		return newFieldError("LogMaxSize", "不能为负数")
	}
	if c.Log.LogMaxBackups < 0 {
		return newFieldError("LogMaxBackups", "不能为负数")
	}
	switch strings.ToLower(c.Log.LogFormat) {
	case "", "text", "json":
	default:
		return newFieldError("LogFormat", "仅支持 text/json")
	}
	return nil
}

// Validate 校验缓存配置；Root 必须已经是绝对路径。
func (c CacheConfig) Validate() error {
	if c.Root == "" {
		return newFieldError("Home", "不能为空")
	}
	if !filepath.IsAbs(c.Root) {
		return newFieldError("Home", "必须为绝对路径")
	}
	if c.Timeout.DurationValue() <= 0 {
		return newFieldError("Timeout", "必须大于 0")
	}
	if strings.TrimSpace(c.Origin) == "" {
		return newFieldError("Origin", "不能为空")
	}
	if err := validateHTTPURL(c.S3Root); err != nil {
		return fmt.Errorf("S3Root: %w", err)
	}
	if err := validateHTTPURL(c.SkeletonURL); err != nil {
		return fmt.Errorf("SkeletonURL: %w", err)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("无效 URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("仅支持 http/https")
	}
	if parsed.Host == "" {
		return errors.New("缺少 Host")
	}
	return nil
}

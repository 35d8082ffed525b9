package cache

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Repair 将旧版本客户端误存的 S3 XML 错误正文截断为零字节，使其重新被识别为
// Placeholder 并触发再次下载。符号链接一律跳过，未获取的 annex 条目不会被解引用。
// 重复执行没有额外效果。
func Repair(paths []string) error {
	for _, p := range paths {
		info, ok := IsRegularNoFollow(p)
		if !ok {
			continue
		}
		if size := info.Size(); size == 0 || size >= CorruptionThreshold {
			continue
		}
		corrupt, err := looksLikeS3Error(p)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", p, err)
		}
		if !corrupt {
			continue
		}
		if err := os.Truncate(p, 0); err != nil {
			return fmt.Errorf("truncate %s: %w", p, err)
		}
		logrus.WithFields(logrus.Fields{
			"action": "repair",
			"path":   p,
		}).Debug("truncated stored S3 error body")
	}
	return nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Store 负责管理归档根目录下资产文件的读写。磁盘布局与归档保持一致：
//
//	<Root>/tpl-<T>/[sub/]tpl-<T>_..._<suffix><ext>
//
// 条目即资产文件本身，ModTime/Size 由文件系统提供。
type Store interface {
	// Stat 描述已落盘的资产，不跟随符号链接。不存在或为目录时返回 ErrNotFound。
	Stat(ctx context.Context, locator Locator) (*Entry, error)

	// Put 将远端内容写入资产路径，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败（含大小校验失败）时清理临时文件。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除资产文件，文件不存在时视为成功。
	Remove(ctx context.Context, locator Locator) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
	// ExpectedSize 大于 0 时，写入字节数必须与之相等，否则放弃本次写入并返回 *SizeError。
	ExpectedSize int64
}

// Locator 唯一定位一个资产，Path 为相对归档根目录的 slash 路径。
type Locator struct {
	Path string
}

// Entry 表示一个已落盘的资产。符号链接条目的 SizeBytes 为 0，State 由 Classify 给出。
type Entry struct {
	Locator   Locator
	FilePath  string
	SizeBytes int64
	ModTime   time.Time
	State     State
}

// ErrNotFound 表示资产不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrSizeMismatch 表示写入字节数与声明的长度不一致。
var ErrSizeMismatch = errors.New("size mismatch")

// SizeError 记录一次大小校验失败的细节。
type SizeError struct {
	Path     string
	Expected int64
	Written  int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: wrote %d bytes, expected %d", e.Path, e.Written, e.Expected)
}

// Unwrap 使 errors.Is(err, ErrSizeMismatch) 成立。
func (e *SizeError) Unwrap() error {
	return ErrSizeMismatch
}

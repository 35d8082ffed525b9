package cache

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
)

// State 描述单个资产在本地归档中的状态，每次调用重新计算，不做缓存。
type State int

const (
	// Absent 表示文件不存在（含指向未获取对象的 annex 符号链接）。
	Absent State = iota
	// Placeholder 表示文件存在但为零字节骨架，或是残留的 S3 XML 错误正文。
	Placeholder
	// Complete 表示文件已是可用内容。
	Complete
)

// CorruptionThreshold 以下大小的文件才会被当作潜在的 S3 错误正文检查。
const CorruptionThreshold = 1024

// sniffLen 是识别错误正文时读取的前导字节数。
const sniffLen = 100

var (
	xmlPrologue   = []byte("<?xml")
	s3ErrorMarker = []byte("<Error><Code>")
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Placeholder:
		return "placeholder"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Classify 跟随符号链接判断 path 的状态。只有小于阈值的文件会被读取前导字节。
func Classify(path string) (State, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Absent, nil
		}
		return Absent, err
	}
	if !info.Mode().IsRegular() {
		return Absent, nil
	}
	size := info.Size()
	if size == 0 {
		return Placeholder, nil
	}
	if size < CorruptionThreshold {
		corrupt, err := looksLikeS3Error(path)
		if err != nil {
			return Absent, err
		}
		if corrupt {
			return Placeholder, nil
		}
	}
	return Complete, nil
}

// IsRegularNoFollow 在不跟随符号链接的前提下判断 path 是否为普通文件。
func IsRegularNoFollow(path string) (os.FileInfo, bool) {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return info, true
}

func looksLikeS3Error(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	head = head[:n]
	return bytes.HasPrefix(head, xmlPrologue) && bytes.Contains(head, s3ErrorMarker), nil
}

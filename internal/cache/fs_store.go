package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewStore 以归档根目录 basePath 构建磁盘存储。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("archive root required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve archive root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &fileStore{root: abs, locks: newKeyedLocks()}, nil
}

// fileStore 直接在归档目录中读写资产，同一资产在进程内串行写入。
type fileStore struct {
	root  string
	locks *keyedLocks
}

func (s *fileStore) Stat(ctx context.Context, locator Locator) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	case info.IsDir():
		return nil, ErrNotFound
	}

	state, err := Classify(target)
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		Locator:  locator,
		FilePath: target,
		ModTime:  info.ModTime(),
		State:    state,
	}
	if info.Mode().IsRegular() {
		entry.SizeBytes = info.Size()
	}
	return entry, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	target, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}
	release := s.locks.acquire(target)
	defer release()

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// 未获取的 annex 条目是指向不存在对象的符号链接，需先移除才能落下真实文件。
	if err := clearNonRegular(target); err != nil {
		return nil, err
	}

	staged, written, err := stage(ctx, dir, body)
	if err == nil && opts.ExpectedSize > 0 && written != opts.ExpectedSize {
		err = &SizeError{Path: locator.Path, Expected: opts.ExpectedSize, Written: written}
	}
	if err != nil {
		if staged != "" {
			os.Remove(staged)
		}
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := commit(staged, target, modTime); err != nil {
		return nil, err
	}
	state, err := Classify(target)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Locator:   locator,
		FilePath:  target,
		SizeBytes: written,
		ModTime:   modTime,
		State:     state,
	}, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.entryPath(locator)
	if err != nil {
		return err
	}
	release := s.locks.acquire(target)
	defer release()

	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// entryPath 将 slash 相对路径映射到根目录下，越界路径会被折叠回根目录内。
func (s *fileStore) entryPath(locator Locator) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+locator.Path), "/")
	if rel == "" {
		return "", errors.New("asset path required")
	}
	target := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("asset path %q escapes archive root", locator.Path)
	}
	return target, nil
}

// stage 把 body 写入 dir 下的临时文件，返回临时文件名与写入字节数。
func stage(ctx context.Context, dir string, body io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(dir, ".tfget-*")
	if err != nil {
		return "", 0, err
	}
	written, err := io.CopyBuffer(tmp, ctxReader{ctx: ctx, r: body}, make([]byte, 32*1024))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	return tmp.Name(), written, err
}

// commit 以 rename 替换目标文件并设置修改时间。
func commit(staged, target string, modTime time.Time) error {
	if err := os.Rename(staged, target); err != nil {
		os.Remove(staged)
		return err
	}
	return os.Chtimes(target, modTime, modTime)
}

func clearNonRegular(target string) error {
	info, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case info.Mode().IsRegular():
		return nil
	case info.IsDir():
		return fmt.Errorf("%s is a directory", target)
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ctxReader 在每次读取前检查 ctx，使长时间的下载可以被取消。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// keyedLocks 为每个路径提供一把互斥锁，无人持有时回收。
type keyedLocks struct {
	mu   sync.Mutex
	held map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	waiters int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{held: make(map[string]*refMutex)}
}

func (k *keyedLocks) acquire(key string) func() {
	k.mu.Lock()
	m, ok := k.held[key]
	if !ok {
		m = &refMutex{}
		k.held[key] = m
	}
	m.waiters++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.waiters--
		if m.waiters == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}

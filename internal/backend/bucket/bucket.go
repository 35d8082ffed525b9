// Package bucket implements the object-storage backend: assets are plain HTTP
// GETs against the public S3 bucket and the catalogue is a zip skeleton of
// zero-byte placeholders shipped inside the binary.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/templateflow/tfget/internal/cache"
	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/logging"
	"github.com/templateflow/tfget/internal/transport"
)

// Name 是该后端在日志与错误提示中的标识。
const Name = "s3"

// Backend 通过 HTTP 从桶下载资产，并用内置骨架初始化/更新归档。
type Backend struct {
	cfg    config.CacheConfig
	client *http.Client
	logger *logrus.Logger

	mu     sync.Mutex
	stores map[string]cache.Store
}

// New 构造桶后端；client 为 nil 时使用 http.DefaultClient，logger 为 nil 时丢弃日志。
func New(cfg config.CacheConfig, client *http.Client, logger *logrus.Logger) *Backend {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Backend{
		cfg:    cfg,
		client: client,
		logger: logger,
		stores: make(map[string]cache.Store),
	}
}

func (b *Backend) Name() string {
	return Name
}

// FetchOne 下载 rel 对应的对象并原子地替换本地文件。非 2xx 返回 *StatusError，
// 字节数与 Content-Length 不符返回 *IntegrityError，两种情况下本地文件都保持原状。
func (b *Backend) FetchOne(ctx context.Context, root, rel string) error {
	store, err := b.store(root)
	if err != nil {
		return err
	}

	target := b.objectURL(rel)
	fields := logging.WithOperation(ctx, logging.FetchFields(Name, root, rel))
	fields["url"] = target

	// 并发的调用方可能已经完成了下载。
	existing, err := store.Stat(ctx, cache.Locator{Path: rel})
	switch {
	case err == nil && existing.State == cache.Complete:
		b.logger.WithFields(fields).Debug("fetch_skip_complete")
		return nil
	case err != nil && !errors.Is(err, cache.ErrNotFound):
		return fmt.Errorf("inspect %s: %w", rel, err)
	}
	b.logger.WithFields(fields).Info("fetch_start")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", target, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		fields["status"] = resp.StatusCode
		b.logger.WithFields(fields).Warn("fetch_failed")
		return &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	entry, err := store.Put(ctx, cache.Locator{Path: rel}, resp.Body, cache.PutOptions{ExpectedSize: resp.ContentLength})
	if err != nil {
		var sizeErr *cache.SizeError
		if errors.As(err, &sizeErr) {
			b.logger.WithFields(fields).Warn("fetch_incomplete")
			return &IntegrityError{URL: target, Expected: sizeErr.Expected, Written: sizeErr.Written, Err: err}
		}
		if errors.Is(err, transport.ErrIdleTimeout) {
			b.logger.WithFields(fields).WithError(err).Warn("fetch_stalled")
			return fmt.Errorf("download %s: %w", target, err)
		}
		return fmt.Errorf("store %s: %w", rel, err)
	}

	fields["size"] = humanize.Bytes(uint64(entry.SizeBytes))
	b.logger.WithFields(fields).Info("fetch_complete")
	return nil
}

// objectURL 逐段转义相对路径后拼接到桶根地址上。
func (b *Backend) objectURL(rel string) string {
	segments := strings.Split(strings.TrimPrefix(rel, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(b.cfg.S3Root, "/") + "/" + strings.Join(segments, "/")
}

// store 按根目录复用 cache.Store，使同一路径的并发写入共享一把锁。
func (b *Backend) store(root string) (cache.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.stores[root]; ok {
		return s, nil
	}
	s, err := cache.NewStore(root)
	if err != nil {
		return nil, err
	}
	b.stores[root] = s
	return s, nil
}

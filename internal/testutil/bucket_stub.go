// Package testutil hosts fixtures shared by package tests: an HTTP stand-in
// for the public bucket and the skeleton release files.
package testutil

import (
	"archive/zip"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/templateflow/tfget/internal/config"
)

const (
	bucketPrefix   = "/bucket/"
	skeletonPrefix = "/skel/templateflow-skel"
)

// S3NotFoundBody 是桶对缺失对象返回的 XML 错误正文。
const S3NotFoundBody = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

// RecordedRequest 捕获每次请求的方法/路径/Headers，便于断言后端行为。
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
}

// BucketStub 模拟公共桶与骨架发布地址。
type BucketStub struct {
	URL string

	server   *http.Server
	listener net.Listener

	done chan struct{}

	mu             sync.Mutex
	requests       []RecordedRequest
	objects        map[string][]byte
	stalled        map[string]stalledObject
	checksum       string
	checksumBody   *string
	checksumStatus int
	archive        []byte
}

// stalledObject 只发送 prefix，随后停止写入，直到客户端断开或测试结束。
type stalledObject struct {
	prefix []byte
	total  int
}

// NewBucketStub 启动桶模拟器，测试结束时自动关闭。无法监听端口时跳过测试。
func NewBucketStub(t *testing.T) *BucketStub {
	t.Helper()

	stub := &BucketStub{
		done:           make(chan struct{}),
		objects:        make(map[string][]byte),
		stalled:        make(map[string]stalledObject),
		checksumStatus: http.StatusOK,
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start bucket stub listener: %v", err)
	}
	server := &http.Server{Handler: http.HandlerFunc(stub.serve)}

	stub.server = server
	stub.listener = listener
	stub.URL = "http://" + listener.Addr().String()

	go func() {
		_ = server.Serve(listener)
	}()

	t.Cleanup(func() {
		close(stub.done)
		_ = server.Close()
	})
	return stub
}

// Config 返回指向模拟器的缓存配置。
func (s *BucketStub) Config(root string) config.CacheConfig {
	return config.CacheConfig{
		Root:        root,
		Origin:      config.DefaultOrigin,
		S3Root:      s.S3Root(),
		SkeletonURL: s.URL + skeletonPrefix,
		Timeout:     config.Duration(5 * time.Second),
	}
}

// S3Root 返回桶根地址。
func (s *BucketStub) S3Root() string {
	return strings.TrimSuffix(s.URL+bucketPrefix, "/")
}

// SetObject 注册相对路径 rel 对应的对象内容。
func (s *BucketStub) SetObject(rel string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[rel] = data
}

// StallObject 让 rel 的响应声明 total 字节，只写出 prefix 后停滞。
func (s *BucketStub) StallObject(rel string, prefix []byte, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled[rel] = stalledObject{prefix: prefix, total: total}
}

// SetChecksumBody 让 .md5 地址原样返回 body，用于构造空白或畸形的校验和文件。
func (s *BucketStub) SetChecksumBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checksumBody = &body
	s.checksumStatus = http.StatusOK
}

// SetSkeleton 发布远端骨架；checksum 为空时根据 archive 计算。
func (s *BucketStub) SetSkeleton(checksum string, archive []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if checksum == "" && archive != nil {
		checksum = MD5(archive)
	}
	s.checksum = checksum
	s.checksumBody = nil
	s.archive = archive
	s.checksumStatus = http.StatusOK
}

// FailSkeleton 让校验和地址返回给定状态码。
func (s *BucketStub) FailSkeleton(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checksumStatus = status
}

// Requests 返回目前为止收到的请求副本。
func (s *BucketStub) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// ObjectRequests 统计命中桶对象的请求数。
func (s *BucketStub) ObjectRequests() int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, bucketPrefix) {
			n++
		}
	}
	return n
}

// RequestsFor 统计请求路径以 suffix 结尾的请求数。
func (s *BucketStub) RequestsFor(suffix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasSuffix(r.Path, suffix) {
			n++
		}
	}
	return n
}

func (s *BucketStub) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
	})
	s.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, bucketPrefix):
		s.serveObject(w, r, strings.TrimPrefix(r.URL.Path, bucketPrefix))
	case r.URL.Path == skeletonPrefix+".md5":
		s.mu.Lock()
		status, checksum, raw := s.checksumStatus, s.checksum, s.checksumBody
		s.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if raw != nil {
			_, _ = w.Write([]byte(*raw))
			return
		}
		if checksum == "" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(checksum + "  templateflow-skel.zip\n"))
	case r.URL.Path == skeletonPrefix+".zip":
		s.mu.Lock()
		archive := s.archive
		s.mu.Unlock()
		if archive == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	default:
		http.NotFound(w, r)
	}
}

func (s *BucketStub) serveObject(w http.ResponseWriter, r *http.Request, rel string) {
	s.mu.Lock()
	data, ok := s.objects[rel]
	stall, stalled := s.stalled[rel]
	s.mu.Unlock()
	if stalled {
		w.Header().Set("Content-Length", strconv.Itoa(stall.total))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(stall.prefix)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-s.done:
		}
		return
	}
	if !ok {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(S3NotFoundBody))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// BuildSkeleton 用给定的 "相对路径 → 内容" 构造骨架 zip，目录条目自动补齐。
func BuildSkeleton(t *testing.T, files map[string]string) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	dirs := map[string]bool{}
	for name, content := range files {
		if i := strings.LastIndex(name, "/"); i > 0 && !dirs[name[:i+1]] {
			dirs[name[:i+1]] = true
			if _, err := zw.Create(name[:i+1]); err != nil {
				t.Fatalf("zip dir: %v", err)
			}
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// MD5 返回 data 的十六进制 MD5。
func MD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// NewConfig 返回不指向任何真实服务的缓存配置，供不发起网络请求的测试使用。
func NewConfig(root string) config.CacheConfig {
	return config.CacheConfig{
		Root:        root,
		Origin:      config.DefaultOrigin,
		S3Root:      "https://bucket.invalid/templateflow",
		SkeletonURL: "https://skeleton.invalid/templateflow-skel",
		Timeout:     config.Duration(5 * time.Second),
	}
}

// Package transport builds the shared HTTP client used for bucket downloads
// and skeleton freshness checks.
package transport

import (
	"net"
	"net/http"
	"time"

	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/version"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
}

// NewClient 返回共享 http.Client。
//
// 超时作用于建连、等待响应头以及正文的每次读取，而不是整个请求：模板文件可能有数百 MB，
// 只要数据持续到达就不会被打断，停滞超过超时时间则以 ErrIdleTimeout 失败。
func NewClient(cfg config.CacheConfig) *http.Client {
	timeout := config.DefaultTimeout
	if cfg.Timeout.DurationValue() > 0 {
		timeout = cfg.Timeout.DurationValue()
	}

	transport := defaultTransport.Clone()
	transport.ResponseHeaderTimeout = timeout
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &http.Client{
		Transport: &userAgentTransport{
			base:  &idleTimeoutTransport{base: transport, timeout: timeout},
			agent: version.UserAgent(),
		},
	}
}

// userAgentTransport 为未设置 User-Agent 的请求补齐客户端标识。
type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}

package bucket

import "fmt"

// StatusError 表示桶返回了非 2xx 状态码，不会重试。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to download %s with status code %d", e.URL, e.StatusCode)
}

// IntegrityError 表示写入字节数与 Content-Length 不一致，目标文件保持原状。
type IntegrityError struct {
	URL      string
	Expected int64
	Written  int64
	Err      error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("incomplete download of %s: wrote %d of %d bytes", e.URL, e.Written, e.Expected)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

package datalad

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultBinary 是 DataLad 命令行工具的可执行文件名。
const DefaultBinary = "datalad"

// unregisteredMessage 是 DataLad 对未安装子数据集中的路径给出的失败信息。
const unregisteredMessage = "path not associated with any dataset"

// ErrUnregisteredPath 表示目标路径不属于任何已安装的数据集，需要先 install。
var ErrUnregisteredPath = errors.New("path not associated with any dataset")

// Tool 抽象 DataLad 的 install/get/update 能力，便于替换为测试实现。
type Tool interface {
	Install(ctx context.Context, path, source string, recursive bool) error
	Get(ctx context.Context, dataset, path string) error
	Update(ctx context.Context, dataset string, recursive, merge bool) error
}

// Result 对应 `datalad -f json` 输出的一条结果记录。
type Result struct {
	Action  string          `json:"action"`
	Path    string          `json:"path"`
	Status  string          `json:"status"`
	Type    string          `json:"type"`
	Refds   string          `json:"refds"`
	RawMsg  json.RawMessage `json:"message"`
	Message string          `json:"-"`
}

// Failed 判断记录是否表示失败。
func (r Result) Failed() bool {
	return r.Status == "error" || r.Status == "impossible"
}

// ToolError 描述一次失败的 DataLad 调用。
type ToolError struct {
	Args    []string
	Records []Result
	Stderr  string
	Err     error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "datalad %s failed", strings.Join(e.Args, " "))
	for _, r := range e.Records {
		if r.Failed() && r.Message != "" {
			fmt.Fprintf(&b, ": %s", r.Message)
			return b.String()
		}
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		fmt.Fprintf(&b, ": %s", lastLine(msg))
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap 在识别出未注册路径时返回 ErrUnregisteredPath，否则返回底层错误。
func (e *ToolError) Unwrap() []error {
	errs := []error{}
	for _, r := range e.Records {
		if r.Failed() && r.Message == unregisteredMessage {
			errs = append(errs, ErrUnregisteredPath)
			break
		}
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Runner 执行外部命令并返回 stdout/stderr。
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecTool 通过 `datalad -f json` 子进程实现 Tool。
type ExecTool struct {
	Binary string
	run    Runner
}

// NewExecTool 返回调用 binary 的 Tool；binary 为空时使用 DefaultBinary。
func NewExecTool(binary string) *ExecTool {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ExecTool{Binary: binary, run: execRunner}
}

// Available 判断 DataLad 可执行文件是否在 PATH 中。
func (t *ExecTool) Available() bool {
	_, err := exec.LookPath(t.Binary)
	return err == nil
}

func (t *ExecTool) Install(ctx context.Context, path, source string, recursive bool) error {
	args := []string{"install", "--source", source}
	if recursive {
		args = append(args, "--recursive")
	}
	args = append(args, path)
	return t.invoke(ctx, args)
}

func (t *ExecTool) Get(ctx context.Context, dataset, path string) error {
	return t.invoke(ctx, []string{"get", "--dataset", dataset, path})
}

func (t *ExecTool) Update(ctx context.Context, dataset string, recursive, merge bool) error {
	args := []string{"update", "--dataset", dataset}
	if recursive {
		args = append(args, "--recursive")
	}
	if merge {
		args = append(args, "--how", "merge")
	}
	return t.invoke(ctx, args)
}

func (t *ExecTool) invoke(ctx context.Context, args []string) error {
	full := append([]string{"-f", "json"}, args...)
	stdout, stderr, runErr := t.run(ctx, t.Binary, full...)
	records, parseErr := parseResults(stdout)
	if parseErr != nil && runErr == nil {
		return &ToolError{Args: args, Stderr: string(stderr), Err: parseErr}
	}

	failed := false
	for _, r := range records {
		if r.Failed() {
			failed = true
			break
		}
	}
	if runErr == nil && !failed {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		runErr = ctxErr
	}
	return &ToolError{Args: args, Records: records, Stderr: string(stderr), Err: runErr}
}

// parseResults 逐行解析 JSON 结果记录，跳过非 JSON 的提示行。
func parseResults(stdout []byte) ([]Result, error) {
	var records []Result
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var r Result
		if err := json.Unmarshal(line, &r); err != nil {
			return records, fmt.Errorf("parse datalad result: %w", err)
		}
		r.Message = renderMessage(r.RawMsg)
		records = append(records, r)
	}
	return records, scanner.Err()
}

// renderMessage 处理 message 的两种形态：字符串，或 [格式串, 参数...] 数组。
func renderMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []any
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		return string(raw)
	}
	format, ok := parts[0].(string)
	if !ok {
		return string(raw)
	}
	if len(parts) == 1 {
		return format
	}
	return fmt.Sprintf(strings.ReplaceAll(format, "%r", "%v"), parts[1:]...)
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func lastLine(s string) string {
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

package datalad

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/templateflow/tfget/internal/backend"
	"github.com/templateflow/tfget/internal/logging"
	"github.com/templateflow/tfget/internal/testutil"
)

// fakeTool 记录调用顺序，并按预设脚本返回错误。
type fakeTool struct {
	calls     []string
	getErrs   []error
	installFn func(path string) error
	updateErr error
}

func (f *fakeTool) Install(ctx context.Context, path, source string, recursive bool) error {
	f.calls = append(f.calls, "install "+source)
	if f.installFn != nil {
		return f.installFn(path)
	}
	return nil
}

func (f *fakeTool) Get(ctx context.Context, dataset, path string) error {
	f.calls = append(f.calls, "get "+filepath.Base(path))
	if len(f.getErrs) == 0 {
		return nil
	}
	err := f.getErrs[0]
	f.getErrs = f.getErrs[1:]
	return err
}

func (f *fakeTool) Update(ctx context.Context, dataset string, recursive, merge bool) error {
	f.calls = append(f.calls, "update")
	return f.updateErr
}

func unregistered() error {
	return &ToolError{Args: []string{"get"}, Records: []Result{{Status: "impossible", Message: unregisteredMessage}}}
}

func TestFetchOneInstallsOnceOnUnregisteredPath(t *testing.T) {
	tool := &fakeTool{getErrs: []error{unregistered()}}
	root := t.TempDir()
	b := New(testutil.NewConfig(root), tool, logging.Discard())

	if err := b.FetchOne(context.Background(), root, "tpl-A/tpl-A_T1w.nii.gz"); err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	want := []string{"get tpl-A_T1w.nii.gz", "install https://github.com/templateflow/templateflow.git", "get tpl-A_T1w.nii.gz"}
	if diff := cmp.Diff(want, tool.calls); diff != "" {
		t.Fatalf("unexpected call sequence (-want +got):\n%s", diff)
	}
}

func TestFetchOneRetriesOnlyOnce(t *testing.T) {
	tool := &fakeTool{getErrs: []error{unregistered(), unregistered()}}
	root := t.TempDir()
	b := New(testutil.NewConfig(root), tool, logging.Discard())

	err := b.FetchOne(context.Background(), root, "tpl-A/tpl-A_T1w.nii.gz")
	if !errors.Is(err, ErrUnregisteredPath) {
		t.Fatalf("expected ErrUnregisteredPath after single retry, got %v", err)
	}
	if len(tool.calls) != 3 {
		t.Fatalf("expected get/install/get, got %v", tool.calls)
	}
}

func TestFetchOneOtherErrorsPropagate(t *testing.T) {
	boom := &ToolError{Args: []string{"get"}, Records: []Result{{Status: "error", Message: "annex remote unavailable"}}}
	tool := &fakeTool{getErrs: []error{boom}}
	root := t.TempDir()
	b := New(testutil.NewConfig(root), tool, logging.Discard())

	err := b.FetchOne(context.Background(), root, "tpl-A/tpl-A_T1w.nii.gz")
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || errors.Is(err, ErrUnregisteredPath) {
		t.Fatalf("expected plain ToolError, got %v", err)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("no install expected, got %v", tool.calls)
	}
}

func TestUpdateFailureIsWarning(t *testing.T) {
	tool := &fakeTool{updateErr: errors.New("merge conflict")}
	b := New(testutil.NewConfig(t.TempDir()), tool, logging.Discard())

	changed, err := b.Update(context.Background(), t.TempDir(), backend.UpdateOptions{})
	if err != nil || changed {
		t.Fatalf("update failure should yield (false, nil), got (%v, %v)", changed, err)
	}
	tool.updateErr = nil
	if changed, _ := b.Update(context.Background(), t.TempDir(), backend.UpdateOptions{}); !changed {
		t.Fatalf("successful update should report change")
	}
}

func TestWipeIsNoop(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(root, "tpl-A")
	if err := os.Mkdir(marker, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	b := New(testutil.NewConfig(root), &fakeTool{}, logging.Discard())
	if err := b.Wipe(root); err != nil {
		t.Fatalf("wipe error: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("datalad wipe must leave the dataset in place: %v", err)
	}
}

func TestExecToolClassifiesUnregisteredPath(t *testing.T) {
	tool := NewExecTool("")
	var gotArgs []string
	tool.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = append([]string{name}, args...)
		stdout := `[INFO] some chatter
{"action": "get", "path": "/tf/tpl-A/x.nii.gz", "status": "impossible", "message": "path not associated with any dataset", "type": "file"}
`
		return []byte(stdout), nil, errors.New("exit status 1")
	}

	err := tool.Get(context.Background(), "/tf", "/tf/tpl-A/x.nii.gz")
	if !errors.Is(err, ErrUnregisteredPath) {
		t.Fatalf("expected ErrUnregisteredPath, got %v", err)
	}
	want := []string{"datalad", "-f", "json", "get", "--dataset", "/tf", "/tf/tpl-A/x.nii.gz"}
	if diff := cmp.Diff(want, gotArgs); diff != "" {
		t.Fatalf("unexpected command line (-want +got):\n%s", diff)
	}
}

func TestExecToolReportsFailedRecords(t *testing.T) {
	tool := NewExecTool("datalad")
	tool.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		stdout := `{"action": "update", "path": "/tf", "status": "error", "message": ["could not merge %s", "origin/master"]}`
		return []byte(stdout), []byte("CommandError"), nil
	}

	err := tool.Update(context.Background(), "/tf", true, true)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if !strings.Contains(err.Error(), "could not merge origin/master") {
		t.Fatalf("message not rendered: %v", err)
	}
	if errors.Is(err, ErrUnregisteredPath) {
		t.Fatalf("merge failure is not an unregistered path")
	}
}

func TestExecToolSuccess(t *testing.T) {
	tool := NewExecTool("datalad")
	var gotArgs []string
	tool.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(`{"action": "install", "path": "/tf", "status": "ok"}`), nil, nil
	}
	if err := tool.Install(context.Background(), "/tf", "https://example.org/tf.git", true); err != nil {
		t.Fatalf("install error: %v", err)
	}
	want := []string{"-f", "json", "install", "--source", "https://example.org/tf.git", "--recursive", "/tf"}
	if diff := cmp.Diff(want, gotArgs); diff != "" {
		t.Fatalf("unexpected arguments (-want +got):\n%s", diff)
	}
}

func TestExecToolAvailable(t *testing.T) {
	if NewExecTool("tfget-definitely-not-installed").Available() {
		t.Fatalf("missing binary reported as available")
	}
}

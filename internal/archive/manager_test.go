package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/templateflow/tfget/internal/backend"
	"github.com/templateflow/tfget/internal/cache"
	"github.com/templateflow/tfget/internal/logging"
	"github.com/templateflow/tfget/internal/testutil"
)

type stubTool struct {
	available bool
	installs  int
	updates   int
}

func (s *stubTool) Available() bool { return s.available }

func (s *stubTool) Install(ctx context.Context, path, source string, recursive bool) error {
	s.installs++
	if err := os.MkdirAll(filepath.Join(path, ".datalad"), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(path, "tpl-MNI152Lin"), 0o755)
}

func (s *stubTool) Get(ctx context.Context, dataset, path string) error { return nil }

func (s *stubTool) Update(ctx context.Context, dataset string, recursive, merge bool) error {
	s.updates++
	return nil
}

func TestManagerBucketLifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "templateflow")
	m, err := NewManager(testutil.NewConfig(root), Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.Precached() || m.Phase() != Uninitialized {
		t.Fatalf("fresh root should be uninitialized, got precached=%v phase=%s", m.Precached(), m.Phase())
	}
	if m.Mode() != "s3" {
		t.Fatalf("unexpected mode %s", m.Mode())
	}

	ctx := context.Background()
	idx, err := m.Index(ctx)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if m.Phase() != Bootstrapped || !m.Cached() {
		t.Fatalf("index should bootstrap the archive, phase=%s", m.Phase())
	}
	again, _ := m.Index(ctx)
	if again != idx {
		t.Fatalf("index should be reused until invalidated")
	}

	removed := filepath.Join(root, "tpl-MNI152Lin", "tpl-MNI152Lin_res-02_T1w.nii.gz")
	if err := os.Remove(removed); err != nil {
		t.Fatalf("remove: %v", err)
	}
	changed, err := m.Update(ctx, backend.UpdateOptions{Local: true, Silent: true})
	if err != nil || !changed {
		t.Fatalf("update: changed=%v err=%v", changed, err)
	}
	if m.Phase() != Synced {
		t.Fatalf("expected synced, got %s", m.Phase())
	}
	rebuilt, _ := m.Index(ctx)
	if rebuilt == idx {
		t.Fatalf("index should be rebuilt after a changing update")
	}

	if err := m.Wipe(); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if m.Phase() != Uninitialized || m.Cached() {
		t.Fatalf("wipe should reset the archive, phase=%s", m.Phase())
	}
}

func TestManagerPrecached(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "tpl-A"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	m, err := NewManager(testutil.NewConfig(root), Options{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if !m.Precached() || m.Phase() != Bootstrapped {
		t.Fatalf("existing root should be precached")
	}
}

func TestManagerTiers(t *testing.T) {
	root := t.TempDir()

	m, _ := NewManager(testutil.NewConfig(root), Options{})
	tiers := m.Tiers()
	if len(tiers) != 1 || !tiers[0].Claimed(cache.Absent) || !tiers[0].Claimed(cache.Placeholder) {
		t.Fatalf("bucket mode should use a single tier for absent and placeholder files: %+v", tiers)
	}
	if _, ok := m.Versioned(); ok {
		t.Fatalf("bucket mode has no versioned backend")
	}

	cfg := testutil.NewConfig(root)
	cfg.UseDatalad = true
	m, _ = NewManager(cfg, Options{DataladTool: &stubTool{available: true}})
	tiers = m.Tiers()
	if len(tiers) != 2 {
		t.Fatalf("versioned mode should use two tiers, got %d", len(tiers))
	}
	if tiers[0].Backend.Name() != "datalad" || !tiers[0].Claimed(cache.Absent) || tiers[0].Claimed(cache.Placeholder) {
		t.Fatalf("first tier should be datalad for absent files")
	}
	if tiers[1].Backend.Name() != "s3" || !tiers[1].Claimed(cache.Placeholder) || tiers[1].Claimed(cache.Absent) {
		t.Fatalf("second tier should be the bucket for placeholders")
	}
}

func TestManagerFallsBackWhenDataladMissing(t *testing.T) {
	cfg := testutil.NewConfig(t.TempDir())
	cfg.UseDatalad = true
	m, err := NewManager(cfg, Options{DataladTool: &stubTool{available: false}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.Mode() != "s3" || m.Config().UseDatalad {
		t.Fatalf("unavailable datalad should fall back to the bucket, mode=%s", m.Mode())
	}
}

func TestManagerDataladEnsureAndWipe(t *testing.T) {
	root := filepath.Join(t.TempDir(), "templateflow")
	cfg := testutil.NewConfig(root)
	cfg.UseDatalad = true
	tool := &stubTool{available: true}
	m, _ := NewManager(cfg, Options{DataladTool: tool})

	ctx := context.Background()
	if err := m.Ensure(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := m.Ensure(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if tool.installs != 1 {
		t.Fatalf("install should run once, ran %d times", tool.installs)
	}

	if err := m.Wipe(); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if !m.Cached() {
		t.Fatalf("datalad wipe must not delete the dataset")
	}
}

func TestManagerSetup(t *testing.T) {
	stub := testutil.NewBucketStub(t)
	root := filepath.Join(t.TempDir(), "templateflow")
	m, _ := NewManager(stub.Config(root), Options{})
	ctx := context.Background()

	changed, err := m.Setup(ctx, false)
	if err != nil || changed {
		t.Fatalf("first setup should bootstrap and report false: %v %v", changed, err)
	}
	if !m.Cached() {
		t.Fatalf("setup should create the stub")
	}
	if stub.RequestsFor(".md5") != 0 {
		t.Fatalf("bootstrap must not touch the network")
	}

	if changed, err := m.Setup(ctx, false); err != nil || changed {
		t.Fatalf("setup without force or autoupdate is a no-op: %v %v", changed, err)
	}
	if stub.RequestsFor(".md5") != 0 {
		t.Fatalf("no update expected without force")
	}

	if _, err := m.Setup(ctx, true); err != nil {
		t.Fatalf("forced setup: %v", err)
	}
	if stub.RequestsFor(".md5") != 1 {
		t.Fatalf("forced setup should check the remote skeleton")
	}
}

func TestManagerUpdateErrorKeepsPhase(t *testing.T) {
	m, _ := NewManager(testutil.NewConfig(t.TempDir()), Options{})
	m.active = failingBackend{}

	if _, err := m.Update(context.Background(), backend.UpdateOptions{}); err == nil {
		t.Fatalf("expected update error")
	}
	if m.Phase() != Uninitialized {
		t.Fatalf("failed update must not change the phase, got %s", m.Phase())
	}
}

func TestManagerUpdateWithoutChangesMarksStale(t *testing.T) {
	root := filepath.Join(t.TempDir(), "templateflow")
	m, _ := NewManager(testutil.NewConfig(root), Options{Logger: logging.Discard()})
	ctx := context.Background()
	if err := m.Ensure(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	idx, _ := m.Index(ctx)

	changed, err := m.Update(ctx, backend.UpdateOptions{Local: true, Silent: true})
	if err != nil || changed {
		t.Fatalf("update over a fresh stub should find nothing new: %v %v", changed, err)
	}
	if m.Phase() != Stale {
		t.Fatalf("expected stale, got %s", m.Phase())
	}
	if again, _ := m.Index(ctx); again != idx {
		t.Fatalf("an update without changes must keep the index")
	}
}

func TestManagerEnsureLogsByPrecached(t *testing.T) {
	for name, tc := range map[string]struct {
		prepopulate bool
		level       logrus.Level
		message     string
	}{
		"fresh cache":   {prepopulate: false, level: logrus.InfoLevel, message: "archive not cached, creating stub"},
		"missing cache": {prepopulate: true, level: logrus.WarnLevel, message: "archive expected but missing, recreating stub"},
	} {
		t.Run(name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "templateflow")
			if tc.prepopulate {
				if err := os.MkdirAll(filepath.Join(root, "tpl-A"), 0o755); err != nil {
					t.Fatalf("mkdir: %v", err)
				}
			}
			logger, hook := logtest.NewNullLogger()
			m, err := NewManager(testutil.NewConfig(root), Options{Logger: logger})
			if err != nil {
				t.Fatalf("new manager: %v", err)
			}
			if err := os.RemoveAll(root); err != nil {
				t.Fatalf("remove root: %v", err)
			}

			if err := m.Ensure(context.Background()); err != nil {
				t.Fatalf("ensure: %v", err)
			}
			found := false
			for _, entry := range hook.AllEntries() {
				if entry.Message == tc.message && entry.Level == tc.level {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s entry %q, got %+v", tc.level, tc.message, hook.AllEntries())
			}
			if !m.Precached() {
				t.Fatalf("a bootstrapped archive is expected to exist from now on")
			}
		})
	}
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) Install(ctx context.Context, root string, overwrite bool) error { return nil }

func (failingBackend) Update(ctx context.Context, root string, opts backend.UpdateOptions) (bool, error) {
	return false, errors.New("disk full")
}

func (failingBackend) Wipe(root string) error { return nil }

func (failingBackend) FetchOne(ctx context.Context, root, rel string) error { return nil }

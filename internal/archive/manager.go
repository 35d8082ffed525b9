// Package archive manages the lifecycle of the local TemplateFlow archive:
// bootstrapping it from the active backend, syncing it, wiping it and keeping
// the filename index in step with what is on disk.
package archive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/templateflow/tfget/internal/backend"
	"github.com/templateflow/tfget/internal/backend/bucket"
	"github.com/templateflow/tfget/internal/backend/datalad"
	"github.com/templateflow/tfget/internal/cache"
	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/layout"
	"github.com/templateflow/tfget/internal/logging"
)

// Phase 描述归档的生命周期阶段。
type Phase int

const (
	Uninitialized Phase = iota
	Bootstrapped
	Synced
	Stale
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Bootstrapped:
		return "bootstrapped"
	case Synced:
		return "synced"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Options 注入 Manager 的可选依赖，零值均有默认实现。
type Options struct {
	HTTPClient  *http.Client
	DataladTool datalad.Tool
	Logger      *logrus.Logger
	Vocabulary  *layout.Vocabulary
}

// availability 由能探测自身是否可用的 Tool 实现（例如 ExecTool）。
type availability interface {
	Available() bool
}

// Manager 持有配置、构造时选定的活动后端以及惰性构建的索引。
type Manager struct {
	cfg       config.CacheConfig
	logger    *logrus.Logger
	vocab     *layout.Vocabulary
	active    backend.Backend
	versioned backend.Backend
	tiers     []backend.Tier
	precached bool

	mu    sync.Mutex
	index *layout.Index
	phase Phase
}

// NewManager 根据 cfg 选定活动后端。启用 DataLad 但工具不可用时记录警告并退回桶模式。
func NewManager(cfg config.CacheConfig, opts Options) (*Manager, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	vocab := opts.Vocabulary
	if vocab == nil {
		v, err := layout.DefaultVocabulary()
		if err != nil {
			return nil, err
		}
		vocab = v
	}

	if cfg.UseDatalad {
		tool := opts.DataladTool
		if tool == nil {
			tool = datalad.NewExecTool(datalad.DefaultBinary)
		}
		if probe, ok := tool.(availability); ok && !probe.Available() {
			logger.WithFields(logging.BaseFields("configure", cfg.Root)).
				Warn("DataLad is not installed ➔ disabled.")
			cfg.UseDatalad = false
		} else {
			opts.DataladTool = tool
		}
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		vocab:  vocab,
	}

	s3 := bucket.New(cfg, opts.HTTPClient, logger)
	if cfg.UseDatalad {
		dl := datalad.New(cfg, opts.DataladTool, logger)
		m.active = dl
		m.versioned = dl
		m.tiers = []backend.Tier{
			{Backend: dl, Claims: []cache.State{cache.Absent}},
			{Backend: s3, Claims: []cache.State{cache.Placeholder}},
		}
	} else {
		m.active = s3
		m.tiers = []backend.Tier{
			{Backend: s3, Claims: []cache.State{cache.Absent, cache.Placeholder}},
		}
	}

	m.precached = m.Cached()
	if m.precached {
		m.phase = Bootstrapped
	}
	return m, nil
}

// Config 返回生效的配置副本（DataLad 回退后 UseDatalad 为 false）。
func (m *Manager) Config() config.CacheConfig {
	return m.cfg
}

// Mode 返回活动后端名称。
func (m *Manager) Mode() string {
	return m.active.Name()
}

// Vocabulary 返回实体词表。
func (m *Manager) Vocabulary() *layout.Vocabulary {
	return m.vocab
}

// Tiers 返回获取顺序，调用方按层依次处理资产，无需关心当前模式。
func (m *Manager) Tiers() []backend.Tier {
	return append([]backend.Tier(nil), m.tiers...)
}

// Versioned 返回 DataLad 后端；桶模式下第二个返回值为 false。
func (m *Manager) Versioned() (backend.Backend, bool) {
	return m.versioned, m.versioned != nil
}

// Precached 报告归档是否应当已存在：构造时已存在或已由本进程创建，且之后未被 Wipe。
func (m *Manager) Precached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.precached
}

// Phase 返回当前阶段。
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Cached 实时检查根目录是否存在且非空。
func (m *Manager) Cached() bool {
	entries, err := os.ReadDir(m.cfg.Root)
	return err == nil && len(entries) > 0
}

// Ensure 在根目录缺失或为空时安装归档，安装失败不会自动重试。
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(ctx)
}

func (m *Manager) ensureLocked(ctx context.Context) error {
	if m.Cached() {
		if m.phase == Uninitialized {
			m.phase = Bootstrapped
		}
		return nil
	}

	fields := logging.WithOperation(ctx, logging.BaseFields("install", m.cfg.Root))
	fields["backend"] = m.active.Name()
	if m.precached {
		m.logger.WithFields(fields).Warn("archive expected but missing, recreating stub")
	} else {
		m.logger.WithFields(fields).Info("archive not cached, creating stub")
	}
	if err := m.active.Install(ctx, m.cfg.Root, m.cfg.Autoupdate); err != nil {
		return fmt.Errorf("bootstrap archive at %s: %w", m.cfg.Root, err)
	}
	m.phase = Bootstrapped
	m.precached = true
	m.index = nil
	return nil
}

// Update 委托给活动后端。有变更时进入 Synced 并使索引失效，没有新内容时进入 Stale；
// 出错时阶段保持不变。
func (m *Manager) Update(ctx context.Context, opts backend.UpdateOptions) (bool, error) {
	changed, err := m.active.Update(ctx, m.cfg.Root, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		return false, err
	}
	if !changed {
		m.phase = Stale
		return false, nil
	}
	m.phase = Synced
	m.index = nil
	return true, nil
}

// Wipe 委托给活动后端并使索引失效；根目录被删除后回到 Uninitialized。
func (m *Manager) Wipe() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.index = nil
	if err := m.active.Wipe(m.cfg.Root); err != nil {
		return err
	}
	if !m.Cached() {
		m.phase = Uninitialized
		m.precached = false
	}
	return nil
}

// Setup 是显式的初始化入口：归档不存在时创建骨架并返回 false；
// 已存在时若 force 或开启了 Autoupdate 则做一次增量更新。
func (m *Manager) Setup(ctx context.Context, force bool) (bool, error) {
	if !m.Cached() {
		m.logger.WithFields(logging.BaseFields("setup", m.cfg.Root)).
			Info("TemplateFlow: repository not found. Populating a new TemplateFlow stub.")
		return false, m.Ensure(ctx)
	}
	if force || m.cfg.Autoupdate {
		return m.Update(ctx, backend.UpdateOptions{Local: false, Overwrite: false})
	}
	return false, nil
}

// Index 返回当前索引，必要时先确保归档存在再构建。
func (m *Manager) Index(ctx context.Context) (*layout.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.index != nil {
		return m.index, nil
	}
	if err := m.ensureLocked(ctx); err != nil {
		return nil, err
	}
	idx, err := layout.Build(m.cfg.Root, m.vocab)
	if err != nil {
		return nil, err
	}
	m.index = idx
	return idx, nil
}

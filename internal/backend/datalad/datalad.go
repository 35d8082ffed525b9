// Package datalad implements the versioned-dataset backend on top of the
// DataLad command line tool. Content retrieval goes through git-annex, so an
// unfetched asset is a dangling symlink until Get resolves it.
package datalad

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/templateflow/tfget/internal/backend"
	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/logging"
)

// Name 是该后端在日志与错误提示中的标识。
const Name = "datalad"

// Backend 通过 Tool 操作 DataLad 数据集。
type Backend struct {
	cfg    config.CacheConfig
	tool   Tool
	logger *logrus.Logger
}

// New 构造 DataLad 后端；tool 为 nil 时使用 PATH 中的 datalad 命令。
func New(cfg config.CacheConfig, tool Tool, logger *logrus.Logger) *Backend {
	if tool == nil {
		tool = NewExecTool(DefaultBinary)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Backend{cfg: cfg, tool: tool, logger: logger}
}

func (b *Backend) Name() string {
	return Name
}

// Install 从 Origin 递归安装数据集；DataLad 自行处理已有内容，overwrite 不起作用。
func (b *Backend) Install(ctx context.Context, root string, overwrite bool) error {
	fields := logging.WithOperation(ctx, logging.BaseFields("install", root))
	fields["backend"] = Name
	fields["origin"] = b.cfg.Origin
	b.logger.WithFields(fields).Info("dataset_install")

	if err := b.tool.Install(ctx, root, b.cfg.Origin, true); err != nil {
		return fmt.Errorf("install dataset from %s: %w", b.cfg.Origin, err)
	}
	return nil
}

// Update 递归合并上游变更。失败时只记录警告并返回 false。
func (b *Backend) Update(ctx context.Context, root string, opts backend.UpdateOptions) (bool, error) {
	fields := logging.WithOperation(ctx, logging.BaseFields("update", root))
	fields["backend"] = Name
	if !opts.Silent {
		b.logger.WithFields(fields).Info("Updating TEMPLATEFLOW_HOME using DataLad ...")
	}

	if err := b.tool.Update(ctx, root, true, true); err != nil {
		b.logger.WithFields(fields).WithError(err).Warn("Error updating TemplateFlow's home directory (using DataLad)")
		return false, nil
	}
	return true, nil
}

// Wipe 在 DataLad 模式下不做任何事。
func (b *Backend) Wipe(root string) error {
	b.logger.WithFields(logging.BaseFields("wipe", root)).
		Warn("TemplateFlow is configured in DataLad mode, wipe() has no effect")
	return nil
}

// FetchOne 获取单个资产。路径所在的子数据集尚未安装时，先从 Origin 安装再重试一次。
func (b *Backend) FetchOne(ctx context.Context, root, rel string) error {
	target := filepath.Join(root, filepath.FromSlash(rel))
	fields := logging.WithOperation(ctx, logging.FetchFields(Name, root, rel))
	b.logger.WithFields(fields).Info("fetch_start")

	err := b.tool.Get(ctx, root, target)
	if errors.Is(err, ErrUnregisteredPath) {
		b.logger.WithFields(fields).Info("dataset_install_retry")
		if err := b.tool.Install(ctx, root, b.cfg.Origin, true); err != nil {
			return fmt.Errorf("install dataset from %s: %w", b.cfg.Origin, err)
		}
		err = b.tool.Get(ctx, root, target)
	}
	if err != nil {
		b.logger.WithFields(fields).WithError(err).Warn("fetch_failed")
		return fmt.Errorf("datalad get %s: %w", rel, err)
	}
	b.logger.WithFields(fields).Info("fetch_complete")
	return nil
}

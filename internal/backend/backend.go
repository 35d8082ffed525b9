// Package backend defines the contract shared by the two archive backends: the
// versioned DataLad mirror and the plain object-storage bucket. The manager
// picks one active backend at construction time and describes fetch order as
// a list of tiers, so callers never branch on the configured mode.
package backend

import (
	"context"
	"slices"

	"github.com/templateflow/tfget/internal/cache"
)

// Backend 是归档后端的统一接口。
type Backend interface {
	// Name 返回后端标识，用于日志与错误提示（"datalad" 或 "s3"）。
	Name() string
	// Install 在 root 下建立归档骨架。
	Install(ctx context.Context, root string, overwrite bool) error
	// Update 同步骨架或数据集，返回值表示是否有内容发生变化。
	Update(ctx context.Context, root string, opts UpdateOptions) (bool, error)
	// Wipe 删除本地归档；不支持的后端只记录警告。
	Wipe(root string) error
	// FetchOne 获取相对 root 的单个资产。
	FetchOne(ctx context.Context, root, rel string) error
}

// UpdateOptions 控制 Update 的行为。
type UpdateOptions struct {
	// Local 为 true 时只使用内置骨架，不访问网络。
	Local bool
	// Overwrite 为 true 时覆盖已有文件，否则只补齐缺失项。
	Overwrite bool
	// Silent 为 true 时不输出新增文件列表。
	Silent bool
}

// Tier 描述一轮获取：由 Backend 负责处理状态落在 Claims 中的资产。
type Tier struct {
	Backend Backend
	Claims  []cache.State
}

// Claimed 判断 state 是否由该层负责。
func (t Tier) Claimed(state cache.State) bool {
	return slices.Contains(t.Claims, state)
}

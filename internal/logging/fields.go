package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type operationKey struct{}

// BaseFields 构建 action + 缓存根目录等基础字段，便于不同入口复用。
func BaseFields(action, root string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"root":   root,
	}
}

// FetchFields 提供单个资产回源日志的公共字段。
func FetchFields(backend, root, asset string) logrus.Fields {
	return logrus.Fields{
		"action":  "fetch",
		"backend": backend,
		"root":    root,
		"asset":   asset,
	}
}

// NewOperationID 为一次 Get/Update 调用生成关联 ID，串联同一操作产生的多条日志。
func NewOperationID() string {
	return uuid.NewString()
}

// ContextWithOperation 将操作 ID 挂到 ctx 上，供下游后端写日志时取用。
func ContextWithOperation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationKey{}, id)
}

// OperationID 返回 ctx 携带的操作 ID，没有时返回空字符串。
func OperationID(ctx context.Context) string {
	id, _ := ctx.Value(operationKey{}).(string)
	return id
}

// WithOperation 在 fields 中补充 operation_id（若 ctx 携带），返回同一个 map。
func WithOperation(ctx context.Context, fields logrus.Fields) logrus.Fields {
	if id := OperationID(ctx); id != "" {
		fields["operation_id"] = id
	}
	return fields
}

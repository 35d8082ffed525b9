package layout

import (
	"errors"
	"strconv"
	"strings"
)

// AnyTemplate 作为模板参数时匹配所有模板。
const AnyTemplate = "*"

var (
	// ErrIndexUnavailable 表示索引无法构建（词表缺失/损坏、根目录不可读），属于配置错误，
	// 与 "查询结果为空" 严格区分。
	ErrIndexUnavailable = errors.New("layout index unavailable")
	// ErrUnknownEntity 表示查询中出现了词表未定义的实体。
	ErrUnknownEntity = errors.New("unknown entity")
)

// Term 是过滤条件中的单个取值；Null 为 true 时表示 "该实体必须不存在"。
type Term struct {
	Value string
	Null  bool
}

// Filter 是某个实体的候选取值集合，命中任意一个即视为匹配；空 Filter 不施加约束。
type Filter []Term

// Query 将实体名映射到过滤条件。
type Query map[string]Filter

// Eq 构造精确匹配任一取值的过滤条件。
func Eq(values ...string) Filter {
	f := make(Filter, len(values))
	for i, v := range values {
		f[i] = Term{Value: v}
	}
	return f
}

// EqInt 构造数值型实体（如 resolution）的过滤条件。
func EqInt(values ...int) Filter {
	f := make(Filter, len(values))
	for i, v := range values {
		f[i] = Term{Value: strconv.Itoa(v)}
	}
	return f
}

// None 构造 "实体必须缺席" 的过滤条件。
func None() Filter {
	return Filter{{Null: true}}
}

// NormalizeExt 为扩展名补齐前导点，逐项处理且保留 Null 与空字符串。
func NormalizeExt(f Filter) Filter {
	if f == nil {
		return nil
	}
	out := make(Filter, len(f))
	for i, t := range f {
		out[i] = NormalizeExtTerm(t)
	}
	return out
}

// NormalizeExtTerm 处理单个扩展名取值。
func NormalizeExtTerm(t Term) Term {
	if t.Null || t.Value == "" || strings.HasPrefix(t.Value, ".") {
		return t
	}
	return Term{Value: "." + t.Value}
}

// Clone 复制查询，并对 extension 做归一化，调用方的原始 map 不会被修改。
func (q Query) Clone() Query {
	out := make(Query, len(q))
	for k, f := range q {
		if k == "extension" {
			out[k] = NormalizeExt(f)
			continue
		}
		out[k] = append(Filter(nil), f...)
	}
	return out
}

func (f Filter) matches(e Entity, value string, present bool) bool {
	if len(f) == 0 {
		return true
	}
	for _, t := range f {
		if t.Null {
			if !present {
				return true
			}
			continue
		}
		if present && valuesEqual(e, t.Value, value) {
			return true
		}
	}
	return false
}

func valuesEqual(e Entity, want, got string) bool {
	if e.IsInt() {
		wi, werr := strconv.Atoi(strings.TrimSpace(want))
		gi, gerr := strconv.Atoi(got)
		if werr == nil && gerr == nil {
			return wi == gi
		}
	}
	return want == got
}

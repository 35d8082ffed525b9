package layout

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed config.json
var defaultVocabulary []byte

// EntityKind 区分普通 key-value 实体与 template/suffix/extension 等特殊位置实体。
type EntityKind string

const (
	KindEntity    EntityKind = "entity"
	KindTemplate  EntityKind = "template"
	KindSuffix    EntityKind = "suffix"
	KindExtension EntityKind = "extension"
)

// Entity 描述词表中的一个实体。
type Entity struct {
	Name  string     `json:"name"`
	Key   string     `json:"key"`
	Kind  EntityKind `json:"kind"`
	DType string     `json:"dtype"`
}

// IsInt 表示该实体按数值比较，例如 resolution=1 可以匹配 res-01。
func (e Entity) IsInt() bool {
	return e.DType == "int"
}

// Vocabulary 是加载后的实体词表，同时持有按实体生成的查询访问器。
type Vocabulary struct {
	Name     string   `json:"name"`
	Entities []Entity `json:"entities"`
	Ignore   []string `json:"ignore"`

	byName    map[string]Entity
	byKey     map[string]Entity
	accessors map[string]Accessor
}

var (
	defaultOnce  sync.Once
	defaultVocab *Vocabulary
	defaultErr   error
)

// DefaultVocabulary 返回内置的 TemplateFlow 实体词表，只解析一次。
func DefaultVocabulary() (*Vocabulary, error) {
	defaultOnce.Do(func() {
		defaultVocab, defaultErr = LoadVocabulary(defaultVocabulary)
	})
	return defaultVocab, defaultErr
}

// LoadVocabulary 解析 JSON 词表并校验实体定义。
func LoadVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: parse vocabulary: %v", ErrIndexUnavailable, err)
	}
	if len(v.Entities) == 0 {
		return nil, fmt.Errorf("%w: vocabulary has no entities", ErrIndexUnavailable)
	}

	v.byName = make(map[string]Entity, len(v.Entities))
	v.byKey = make(map[string]Entity, len(v.Entities))
	v.accessors = make(map[string]Accessor, len(v.Entities))
	seenKinds := map[EntityKind]bool{}
	for i := range v.Entities {
		e := &v.Entities[i]
		e.Name = strings.TrimSpace(e.Name)
		if e.Kind == "" {
			e.Kind = KindEntity
		}
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entity #%d has no name", ErrIndexUnavailable, i)
		}
		if _, dup := v.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %q", ErrIndexUnavailable, e.Name)
		}
		switch e.Kind {
		case KindEntity, KindTemplate:
			if e.Key == "" {
				return nil, fmt.Errorf("%w: entity %q has no key", ErrIndexUnavailable, e.Name)
			}
			v.byKey[e.Key] = *e
		case KindSuffix, KindExtension:
		default:
			return nil, fmt.Errorf("%w: entity %q has unknown kind %q", ErrIndexUnavailable, e.Name, e.Kind)
		}
		if e.Kind != KindEntity {
			if seenKinds[e.Kind] {
				return nil, fmt.Errorf("%w: more than one %s entity", ErrIndexUnavailable, e.Kind)
			}
			seenKinds[e.Kind] = true
		}
		v.byName[e.Name] = *e
		v.accessors[e.Name] = Accessor{entity: *e}
	}
	if !seenKinds[KindTemplate] {
		return nil, fmt.Errorf("%w: vocabulary defines no template entity", ErrIndexUnavailable)
	}
	return &v, nil
}

// Lookup 按名称查找实体定义。
func (v *Vocabulary) Lookup(name string) (Entity, bool) {
	e, ok := v.byName[name]
	return e, ok
}

// Accessors 返回加载词表时为每个实体生成的访问器，键为实体名。
func (v *Vocabulary) Accessors() map[string]Accessor {
	out := make(map[string]Accessor, len(v.accessors))
	for k, a := range v.accessors {
		out[k] = a
	}
	return out
}

func (v *Vocabulary) templateEntity() Entity {
	for _, e := range v.Entities {
		if e.Kind == KindTemplate {
			return e
		}
	}
	return Entity{}
}

func (v *Vocabulary) ignored(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range v.Ignore {
		if name == pattern {
			return true
		}
	}
	return false
}

// Accessor 针对单个实体枚举取值，对应 "列出某实体全部取值" 这一类查询。
type Accessor struct {
	entity Entity
}

// Entity 返回访问器绑定的实体定义。
func (a Accessor) Entity() Entity {
	return a.entity
}

// Values 在 idx 中枚举满足 q 的文件上该实体的不同取值。
func (a Accessor) Values(idx *Index, q Query) ([]string, error) {
	return idx.Values(a.entity.Name, q)
}

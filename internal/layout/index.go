package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// File 是索引中的一条记录。
type File struct {
	// Path 是相对根目录的 slash 路径，例如 tpl-MNI152Lin/tpl-MNI152Lin_res-01_T1w.nii.gz。
	Path     string
	Entities map[string]string
}

// Index 是根目录下所有 tpl-* 资产的快照。
type Index struct {
	root  string
	vocab *Vocabulary
	files []File
}

// Build 遍历 root 并解析文件名。遍历按字典序进行，因此查询结果顺序稳定。
// 无法读取根目录或词表为空时返回包装了 ErrIndexUnavailable 的错误。
func Build(root string, vocab *Vocabulary) (*Index, error) {
	if vocab == nil {
		return nil, fmt.Errorf("%w: no vocabulary", ErrIndexUnavailable)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrIndexUnavailable, root)
	}

	idx := &Index{root: root, vocab: vocab}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == root {
				return walkErr
			}
			// 单个子目录不可读时跳过，不影响其余模板。
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}
		if vocab.ignored(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if entities, ok := vocab.parse(d.Name()); ok {
			idx.files = append(idx.files, File{Path: filepath.ToSlash(rel), Entities: entities})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return idx, nil
}

// Query 返回匹配 template 与 q 的相对路径，顺序与索引遍历顺序一致。
// template 为 AnyTemplate 或空字符串时匹配所有模板。
func (idx *Index) Query(template string, q Query) ([]string, error) {
	matched, err := idx.match(template, q)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matched))
	for i, f := range matched {
		out[i] = f.Path
	}
	return out, nil
}

// Templates 返回满足 q 的模板标识，按字母序排列。
func (idx *Index) Templates(q Query) ([]string, error) {
	return idx.Values(idx.vocab.templateEntity().Name, q)
}

// Values 返回满足 q 的文件上 entity 的不同取值；数值型实体按数值排序，其余按字典序。
func (idx *Index) Values(entity string, q Query) ([]string, error) {
	e, ok := idx.vocab.Lookup(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	matched, err := idx.match(AnyTemplate, q)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var values []string
	for _, f := range matched {
		v, ok := f.Entities[e.Name]
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sortValues(e, values)
	return values, nil
}

// String 输出索引摘要。
func (idx *Index) String() string {
	templates, _ := idx.Templates(nil)
	return fmt.Sprintf("TemplateFlow Layout\n - Home: %s\n - Templates: %s.", idx.root, strings.Join(templates, ", "))
}

func (idx *Index) match(template string, q Query) ([]File, error) {
	q = q.Clone()
	tplEntity := idx.vocab.templateEntity()
	if template != "" && template != AnyTemplate {
		q[tplEntity.Name] = Eq(template)
	}

	entities := make([]Entity, 0, len(q))
	filters := make([]Filter, 0, len(q))
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e, ok := idx.vocab.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
		}
		entities = append(entities, e)
		filters = append(filters, q[name])
	}

	var out []File
	for _, f := range idx.files {
		ok := true
		for i, e := range entities {
			value, present := f.Entities[e.Name]
			if !filters[i].matches(e, value, present) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// parse 解析形如 tpl-<id>[_<key>-<value>]..._<suffix><ext> 的文件名。
// 不以模板前缀开头的文件（如 template_description.json）不进入索引。
func (v *Vocabulary) parse(name string) (map[string]string, bool) {
	tpl := v.templateEntity()
	prefix := tpl.Key + "-"
	if !strings.HasPrefix(name, prefix) {
		return nil, false
	}

	stem, ext := splitExt(name)
	if ext == "" {
		return nil, false
	}
	parts := strings.Split(stem, "_")
	template := strings.TrimPrefix(parts[0], prefix)
	if template == "" {
		return nil, false
	}

	entities := map[string]string{tpl.Name: template}
	if e, ok := v.kindEntity(KindExtension); ok {
		entities[e.Name] = ext
	}

	rest := parts[1:]
	if n := len(rest); n > 0 && !strings.Contains(rest[n-1], "-") {
		if e, ok := v.kindEntity(KindSuffix); ok && rest[n-1] != "" {
			entities[e.Name] = rest[n-1]
		}
		rest = rest[:n-1]
	}
	for _, part := range rest {
		key, value, ok := strings.Cut(part, "-")
		if !ok || value == "" {
			continue
		}
		e, known := v.byKey[key]
		if !known || e.Kind != KindEntity {
			continue
		}
		entities[e.Name] = value
	}
	return entities, true
}

func (v *Vocabulary) kindEntity(kind EntityKind) (Entity, bool) {
	for _, e := range v.Entities {
		if e.Kind == kind {
			return e, true
		}
	}
	return Entity{}, false
}

// splitExt 以第一个 "." 切分，保留 .nii.gz / .surf.gii 这类多段扩展名。
func splitExt(name string) (string, string) {
	base := path.Base(name)
	if i := strings.Index(base, "."); i > 0 {
		return base[:i], base[i:]
	}
	return base, ""
}

func sortValues(e Entity, values []string) {
	if e.IsInt() {
		sort.SliceStable(values, func(i, j int) bool {
			a, aerr := strconv.Atoi(values[i])
			b, berr := strconv.Atoi(values[j])
			if aerr != nil || berr != nil {
				return values[i] < values[j]
			}
			return a < b
		})
		return
	}
	sort.Strings(values)
}

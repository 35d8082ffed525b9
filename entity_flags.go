package main

import (
	"github.com/spf13/cobra"

	"github.com/templateflow/tfget/pkg/templateflow"
)

// nullValue 在命令行上表示 "该实体必须不存在"。
const nullValue = "null"

// entityShorthands 为常用实体提供额外的长/短选项名。
var entityShorthands = map[string]struct {
	alias string
	short string
}{
	"resolution":   {alias: "res"},
	"density":      {alias: "den"},
	"atlas":        {short: "a"},
	"suffix":       {short: "s"},
	"desc":         {alias: "description", short: "d"},
	"extension":    {alias: "ext", short: "x"},
	"label":        {short: "l"},
	"segmentation": {alias: "seg"},
}

// entityFlags 收集由词表生成的实体选项取值。
type entityFlags map[string]*[]string

// addEntityFlags 为词表中除 template 外的每个实体注册一个可重复的选项。
func addEntityFlags(cmd *cobra.Command, entities []templateflow.Entity) entityFlags {
	flags := make(entityFlags, len(entities))
	for _, e := range entities {
		if e.Name == "template" {
			continue
		}
		values := new([]string)
		flags[e.Name] = values

		usage := "Filter on " + e.Name + " (repeatable, \"null\" requires the entity to be absent)"
		extra := entityShorthands[e.Name]
		cmd.Flags().StringArrayVarP(values, e.Name, extra.short, nil, usage)
		if extra.alias != "" {
			cmd.Flags().StringArrayVar(values, extra.alias, nil, "Alias of --"+e.Name)
		}
	}
	return flags
}

// query 将选项取值转换为查询，未给出的实体不施加约束。
func (f entityFlags) query() templateflow.Query {
	q := templateflow.Query{}
	for name, values := range f {
		if len(*values) == 0 {
			continue
		}
		filter := make(templateflow.Filter, 0, len(*values))
		for _, v := range *values {
			if v == nullValue {
				filter = append(filter, templateflow.Term{Null: true})
				continue
			}
			filter = append(filter, templateflow.Term{Value: v})
		}
		q[name] = filter
	}
	return q
}

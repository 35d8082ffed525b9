// Package layout indexes a TemplateFlow archive by parsing BIDS-like file
// names (tpl-<id>[_<key>-<value>]..._<suffix><ext>) against a data-driven
// entity vocabulary, and answers entity queries over that index. The index is
// a snapshot: callers rebuild it whenever the set of files on disk may have
// changed, they never patch it incrementally.
package layout

package templateflow

import (
	"github.com/templateflow/tfget/internal/archive"
	"github.com/templateflow/tfget/internal/backend"
	"github.com/templateflow/tfget/internal/backend/datalad"
	"github.com/templateflow/tfget/internal/cache"
	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/layout"
)

type (
	// Query maps entity names to filters.
	Query = layout.Query
	// Filter lists acceptable values for one entity; empty means unconstrained.
	Filter = layout.Filter
	// Term is a single filter value, or the requirement that the entity is absent.
	Term = layout.Term
	// Accessor enumerates the values of one entity.
	Accessor = layout.Accessor
	// Entity describes one vocabulary entry.
	Entity = layout.Entity
	// CacheConfig is the archive configuration.
	CacheConfig = config.CacheConfig
	// UpdateOptions controls Update.
	UpdateOptions = backend.UpdateOptions
	// Phase is the archive lifecycle phase.
	Phase = archive.Phase
	// State is the cache state of a single asset.
	State = cache.State
	// DataladTool abstracts the DataLad command line.
	DataladTool = datalad.Tool
)

// AnyTemplate matches every template.
const AnyTemplate = layout.AnyTemplate

var (
	// Eq matches any of the given values.
	Eq = layout.Eq
	// EqInt matches any of the given integers, compared numerically.
	EqInt = layout.EqInt
	// None requires the entity to be absent.
	None = layout.None
	// NormalizeExt prefixes a dot to extension values.
	NormalizeExt = layout.NormalizeExt

	// ErrIndexUnavailable reports a broken vocabulary or unreadable archive root.
	ErrIndexUnavailable = layout.ErrIndexUnavailable
	// ErrUnknownEntity reports a query on an entity the vocabulary does not define.
	ErrUnknownEntity = layout.ErrUnknownEntity
)

// Entities returns the built-in entity vocabulary in declaration order.
func Entities() ([]Entity, error) {
	v, err := layout.DefaultVocabulary()
	if err != nil {
		return nil, err
	}
	return append([]Entity(nil), v.Entities...), nil
}

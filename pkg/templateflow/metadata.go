package templateflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/templateflow/tfget/internal/cache"
	"github.com/templateflow/tfget/internal/logging"
)

const descriptionFile = "template_description.json"

// Metadata reads tpl-<template>/template_description.json. When the file has
// no content yet it is fetched through the DataLad backend, if one is active.
func (c *Client) Metadata(ctx context.Context, template string) (map[string]any, error) {
	ctx = logging.ContextWithOperation(ctx, logging.NewOperationID())
	if _, err := c.manager.Index(ctx); err != nil {
		return nil, err
	}

	root := c.manager.Config().Root
	rel := "tpl-" + template + "/" + descriptionFile
	p := filepath.Join(root, filepath.FromSlash(rel))

	state, err := cache.Classify(p)
	if err != nil {
		return nil, err
	}
	if state != cache.Complete {
		if versioned, ok := c.manager.Versioned(); ok {
			if err := versioned.FetchOne(ctx, root, rel); err != nil {
				c.logger.WithFields(c.logFields(ctx, "metadata")).WithError(err).Warn("metadata_fetch_failed")
				return nil, fmt.Errorf("fetch metadata of %s: %w", template, err)
			}
		}
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read metadata of %s: %w", template, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse metadata of %s: %w", template, err)
	}
	return out, nil
}

// Citations returns the ReferencesAndLinks entries of a template. Object
// values are flattened in key order.
func (c *Client) Citations(ctx context.Context, template string) ([]string, error) {
	meta, err := c.Metadata(ctx, template)
	if err != nil {
		return nil, err
	}

	var refs []string
	switch v := meta["ReferencesAndLinks"].(type) {
	case nil:
	case string:
		refs = append(refs, v)
	case []any:
		for _, r := range v {
			refs = append(refs, fmt.Sprint(r))
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			refs = append(refs, fmt.Sprint(v[k]))
		}
	default:
		return nil, fmt.Errorf("unexpected ReferencesAndLinks type %T in %s", v, template)
	}
	return refs, nil
}

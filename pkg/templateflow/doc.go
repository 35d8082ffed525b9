// Package templateflow is the public entry point for resolving and fetching
// TemplateFlow assets.
//
// A Client resolves a template identifier plus BIDS-style entity filters into
// files under the local archive, repairs leftovers from earlier failed
// downloads, fetches whatever is still missing from the configured backends
// and only returns paths whose content is actually on disk:
//
//	client, err := templateflow.New()
//	if err != nil {
//		return err
//	}
//	res, err := client.Get(ctx, "MNI152Lin", templateflow.Query{
//		"resolution": templateflow.EqInt(1),
//		"suffix":     templateflow.Eq("T1w"),
//		"desc":       templateflow.None(),
//	})
//
// Configuration comes from TEMPLATEFLOW_HOME, TEMPLATEFLOW_USE_DATALAD and
// TEMPLATEFLOW_AUTOUPDATE unless an explicit CacheConfig is passed with
// WithConfig.
package templateflow

// Package cache owns everything that touches asset files under the archive
// root: the disk store used by fetch backends (temp file + rename, per-path
// locks), the three-state classifier that decides whether an asset still has
// to be fetched, and the repair pass that truncates persisted S3 error bodies
// so they are refetched instead of being served as data.
package cache

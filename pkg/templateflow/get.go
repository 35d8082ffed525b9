package templateflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/templateflow/tfget/internal/cache"
	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/logging"
)

// ErrNoResults is returned by Get with RaiseEmpty when nothing matches.
var ErrNoResults = errors.New("no results found")

// Result holds the paths returned by Get.
type Result struct {
	paths []string
}

// Paths returns every resolved path in index order.
func (r Result) Paths() []string {
	return append([]string(nil), r.paths...)
}

// Path returns the single resolved path. The boolean is false unless exactly
// one file matched.
func (r Result) Path() (string, bool) {
	if len(r.paths) != 1 {
		return "", false
	}
	return r.paths[0], true
}

// Len returns the number of resolved paths.
func (r Result) Len() int {
	return len(r.paths)
}

// FetchError lists the assets that are still incomplete after every backend
// tier was tried.
type FetchError struct {
	Paths []string
	Mode  string
	Hints []string
	// Err joins the per-asset backend errors, if any.
	Err error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not fetch template files: %s.", strings.Join(e.Paths, ", "))
	for _, h := range e.Hints {
		b.WriteString(" ")
		b.WriteString(h)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type getSettings struct {
	raiseEmpty bool
}

// GetOption customises Get.
type GetOption func(*getSettings)

// RaiseEmpty makes Get fail with ErrNoResults when no file matches.
func RaiseEmpty() GetOption {
	return func(s *getSettings) {
		s.raiseEmpty = true
	}
}

// Get resolves template and q to files, fetches the ones whose content is not
// on disk yet and returns the paths. Every returned path is complete; if any
// asset stays incomplete the call fails with *FetchError.
func (c *Client) Get(ctx context.Context, template string, q Query, opts ...GetOption) (Result, error) {
	s := getSettings{}
	for _, opt := range opts {
		opt(&s)
	}

	ctx = logging.ContextWithOperation(ctx, logging.NewOperationID())
	paths, err := c.Ls(ctx, template, q)
	if err != nil {
		return Result{}, err
	}
	if len(paths) == 0 {
		if s.raiseEmpty {
			return Result{}, ErrNoResults
		}
		return Result{}, nil
	}

	if err := cache.Repair(paths); err != nil {
		return Result{}, err
	}

	root := c.manager.Config().Root
	seenPlaceholder := make(map[string]bool)
	wasAbsent := make(map[string]bool)
	var fetchErrs []error
	for i, tier := range c.manager.Tiers() {
		for _, p := range paths {
			state, err := cache.Classify(p)
			if err != nil {
				fetchErrs = append(fetchErrs, fmt.Errorf("%s: %w", p, err))
				continue
			}
			if i == 0 && state == cache.Absent {
				wasAbsent[p] = true
			}
			if state == cache.Placeholder {
				seenPlaceholder[p] = true
			}
			if !tier.Claimed(state) {
				continue
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				fetchErrs = append(fetchErrs, err)
				continue
			}
			if err := tier.Backend.FetchOne(ctx, root, filepath.ToSlash(rel)); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Result{}, ctxErr
				}
				fetchErrs = append(fetchErrs, err)
			}
		}
	}

	var incomplete []string
	absentMissing, placeholderMissing := false, false
	for _, p := range paths {
		state, err := cache.Classify(p)
		if err == nil && state == cache.Complete {
			continue
		}
		incomplete = append(incomplete, p)
		absentMissing = absentMissing || wasAbsent[p]
		placeholderMissing = placeholderMissing || seenPlaceholder[p] || state == cache.Placeholder
	}
	if len(incomplete) == 0 {
		return Result{paths: paths}, nil
	}

	cfg := c.manager.Config()
	fe := &FetchError{Paths: incomplete, Mode: c.manager.Mode(), Err: errors.Join(fetchErrs...)}
	if absentMissing && !cfg.UseDatalad {
		fe.Hints = append(fe.Hints, fmt.Sprintf(
			"The $%s folder %s seems to contain an initiated DataLad dataset, but the environment variable $%s is not set or set to one of (false, off, 0). Please set $%s on (possible values: true, on, 1).",
			config.EnvHome, root, config.EnvUseDatalad, config.EnvUseDatalad))
	}
	if placeholderMissing && cfg.UseDatalad {
		fe.Hints = append(fe.Hints, fmt.Sprintf(
			"The $%s folder %s seems to contain a plain dataset, but the environment variable $%s is set to one of (true, on, 1). Please set $%s off (possible values: false, off, 0).",
			config.EnvHome, root, config.EnvUseDatalad, config.EnvUseDatalad))
	}

	fields := c.logFields(ctx, "get")
	fields["incomplete"] = len(incomplete)
	fields["mode"] = fe.Mode
	c.logger.WithFields(fields).WithError(fe.Err).Warn("fetch_incomplete")
	return Result{}, fe
}

func (c *Client) logFields(ctx context.Context, action string) logrus.Fields {
	return logging.WithOperation(ctx, logging.BaseFields(action, c.manager.Config().Root))
}

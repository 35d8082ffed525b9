package templateflow

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/templateflow/tfget/internal/archive"
	"github.com/templateflow/tfget/internal/config"
	"github.com/templateflow/tfget/internal/layout"
	"github.com/templateflow/tfget/internal/logging"
	"github.com/templateflow/tfget/internal/transport"
)

// Client resolves and fetches assets of one local archive.
type Client struct {
	manager *archive.Manager
	logger  *logrus.Logger
}

type settings struct {
	cfg        *config.CacheConfig
	logger     *logrus.Logger
	httpClient *http.Client
	tool       DataladTool
}

// Option customises New.
type Option func(*settings)

// WithConfig uses cfg instead of reading the environment.
func WithConfig(cfg CacheConfig) Option {
	return func(s *settings) {
		s.cfg = &cfg
	}
}

// WithLogger routes client logs to logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client used for bucket downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// WithDataladTool replaces the DataLad command line adapter.
func WithDataladTool(tool DataladTool) Option {
	return func(s *settings) {
		s.tool = tool
	}
}

// New builds a Client. Without WithConfig the configuration is read from the
// TEMPLATEFLOW_* environment variables.
func New(opts ...Option) (*Client, error) {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	var cfg config.CacheConfig
	if s.cfg != nil {
		cfg = *s.cfg
		if err := cfg.Normalize(); err != nil {
			return nil, err
		}
	} else {
		loaded, err := config.FromEnv()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := s.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	httpClient := s.httpClient
	if httpClient == nil {
		httpClient = transport.NewClient(cfg)
	}

	manager, err := archive.NewManager(cfg, archive.Options{
		HTTPClient:  httpClient,
		DataladTool: s.tool,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return &Client{manager: manager, logger: logger}, nil
}

var (
	defaultOnce   sync.Once
	defaultClient *Client
	defaultErr    error
)

// Default returns a process-wide Client configured from the environment.
func Default() (*Client, error) {
	defaultOnce.Do(func() {
		defaultClient, defaultErr = New()
	})
	return defaultClient, defaultErr
}

// Config returns the effective configuration.
func (c *Client) Config() CacheConfig {
	return c.manager.Config()
}

// Mode returns the active backend name, "datalad" or "s3".
func (c *Client) Mode() string {
	return c.manager.Mode()
}

// Phase returns the archive lifecycle phase.
func (c *Client) Phase() Phase {
	return c.manager.Phase()
}

// Ls lists the absolute paths matching template and q without fetching.
func (c *Client) Ls(ctx context.Context, template string, q Query) ([]string, error) {
	idx, err := c.manager.Index(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := idx.Query(template, q)
	if err != nil {
		return nil, err
	}
	return c.absolute(rels), nil
}

// Templates lists the template identifiers that have files matching q.
func (c *Client) Templates(ctx context.Context, q Query) ([]string, error) {
	idx, err := c.manager.Index(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Templates(q)
}

// Entity returns the accessor for one vocabulary entity.
func (c *Client) Entity(name string) (Accessor, bool) {
	a, ok := c.manager.Vocabulary().Accessors()[name]
	return a, ok
}

// Values lists the distinct values entity takes on files matching q.
func (c *Client) Values(ctx context.Context, entity string, q Query) ([]string, error) {
	a, ok := c.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", layout.ErrUnknownEntity, entity)
	}
	idx, err := c.manager.Index(ctx)
	if err != nil {
		return nil, err
	}
	return a.Values(idx, q)
}

// Update syncs the archive with the active backend.
func (c *Client) Update(ctx context.Context, opts UpdateOptions) (bool, error) {
	ctx = logging.ContextWithOperation(ctx, logging.NewOperationID())
	return c.manager.Update(ctx, opts)
}

// Wipe deletes the local archive. In DataLad mode it only logs a warning.
func (c *Client) Wipe() error {
	return c.manager.Wipe()
}

// Setup bootstraps a missing archive, or updates an existing one when force
// is set or autoupdate is configured.
func (c *Client) Setup(ctx context.Context, force bool) (bool, error) {
	ctx = logging.ContextWithOperation(ctx, logging.NewOperationID())
	return c.manager.Setup(ctx, force)
}

// Summary describes the archive root and the templates it holds.
func (c *Client) Summary(ctx context.Context) (string, error) {
	idx, err := c.manager.Index(ctx)
	if err != nil {
		return "", err
	}
	return idx.String(), nil
}

func (c *Client) absolute(rels []string) []string {
	root := c.manager.Config().Root
	out := make([]string, len(rels))
	for i, rel := range rels {
		out[i] = filepath.Join(root, filepath.FromSlash(rel))
	}
	return out
}

// Package opensearch feeds and queries the perfume autocomplete index.
package opensearch

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/turtacn/fragrance-etl/internal/config"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "opensearch: at least one address is required")
	ErrConnectionFailed = errors.New(errors.ErrCodeServiceUnavailable, "opensearch: connection failed")
)

// DefaultIndex is used when the configuration names none.
const DefaultIndex = "perfumes"

// Client wraps the OpenSearch client with a background health probe.
type Client struct {
	client   *opensearch.Client
	cfg      config.OpenSearchConfig
	logger   logging.Logger
	healthy  atomic.Bool
	cancel   context.CancelFunc
	interval time.Duration
}

// NewClient connects and verifies the cluster with a ping.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}

	osc, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    3,
		RetryBackoff:  func(int) time.Duration { return 100 * time.Millisecond },
		RetryOnStatus: []int{502, 503, 504, 429},
		Transport:     &http.Transport{MaxIdleConnsPerHost: 10},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create opensearch client")
	}

	hctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		client:   osc,
		cfg:      cfg,
		logger:   logger.Named("opensearch"),
		cancel:   cancel,
		interval: 30 * time.Second,
	}
	if err := c.Ping(ctx); err != nil {
		cancel()
		return nil, ErrConnectionFailed.WithCause(err)
	}
	go c.healthLoop(hctx)

	c.logger.Info("connected to opensearch",
		logging.Strings("addresses", cfg.Addresses),
		logging.String("index", cfg.Index))
	return c, nil
}

// Ping checks the cluster and records the result.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping failed", logging.Err(err))
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.Newf(errors.ErrCodeExternalService, "ping returned status %d", resp.StatusCode)
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy returns the last observed health state.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// Index is the configured index name.
func (c *Client) Index() string { return c.cfg.Index }

// GetClient returns the underlying client.
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// Close stops the health probe.
func (c *Client) Close() error {
	c.cancel()
	c.logger.Info("opensearch client closed")
	return nil
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()

			if prev && !curr {
				c.logger.Error("opensearch cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("opensearch cluster recovered")
			}
		}
	}
}

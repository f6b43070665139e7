package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/solar-gateway/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultFlushInterval = 10 * time.Second
	defaultBatchSize     = 100

	// Derived batches stay within these bounds whatever the poll rate.
	minBatchSize = 10
	maxBatchSize = 5000

	// The retry buffer holds roughly this much polling when the server
	// is down, clamped to [minRetryBuffer, maxRetryBuffer] points.
	retryWindow    = time.Hour
	minRetryBuffer = 1000
	maxRetryBuffer = 50000
)

// Series identifies the tracker whose samples a Client writes. DeviceID and
// SiteID become default tags on every point.
type Series struct {
	DeviceID     string
	SiteID       string
	PollInterval time.Duration
}

// Policy is the batching the write API runs with.
type Policy struct {
	BatchSize        uint
	FlushInterval    time.Duration
	RetryBufferLimit uint
}

// PolicyFor derives write batching from the poll rate.
//
// An explicit batch_size wins. Otherwise a batch is one flush interval
// of tracking points, so the batch fills at about the time the flush timer
// fires and a sample is never held for longer than flush_interval.
func PolicyFor(cfg config.InfluxDBConfig, poll time.Duration) Policy {
	p := Policy{
		BatchSize:        defaultBatchSize,
		FlushInterval:    defaultFlushInterval,
		RetryBufferLimit: maxRetryBuffer,
	}
	if cfg.FlushInterval > 0 {
		p.FlushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}
	if poll > 0 {
		p.BatchSize = clamp(uint((p.FlushInterval+poll-1)/poll), minBatchSize, maxBatchSize)
		p.RetryBufferLimit = clamp(uint(retryWindow/poll), minRetryBuffer, maxRetryBuffer)
	}
	if cfg.BatchSize > 0 {
		p.BatchSize = uint(cfg.BatchSize)
	}
	return p
}

func clamp(v, lo, hi uint) uint {
	return max(lo, min(v, hi))
}

// Stats counts points handed to the write API and async write failures.
type Stats struct {
	Queued      uint64 `json:"queued"`
	WriteErrors uint64 `json:"write_errors"`
}

// Client writes one tracker's history to InfluxDB v2.
//
// The gateway's in-memory history is bounded; InfluxDB is where long-term
// tracking data lives. Writes never block the caller: points are batched
// per Policy and failures arrive through SetOnError.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig
	series   Series
	policy   Policy

	queued      atomic.Uint64
	writeErrors atomic.Uint64

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect pings the server and opens a batching write API tagged with
// the tracker's device and site. It returns ErrDisabled when the
// integration is switched off.
func Connect(cfg config.InfluxDBConfig, series Series) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	policy := PolicyFor(cfg, series.PollInterval)
	opts := influxdb2.DefaultOptions().
		SetBatchSize(policy.BatchSize).
		SetFlushInterval(uint(policy.FlushInterval.Milliseconds())). // #nosec G115 -- positive by construction
		SetRetryBufferLimit(policy.RetryBufferLimit)
	if series.DeviceID != "" {
		opts.AddDefaultTag("device_id", series.DeviceID)
	}
	if series.SiteID != "" {
		opts.AddDefaultTag("site", series.SiteID)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		series:    series,
		policy:    policy,
		connected: true,
	}
	go c.drainErrors(c.writeAPI.Errors())

	return c, nil
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(fmt.Errorf("writing %s samples: %w", c.series.DeviceID, err))
		}
	}
}

// Policy returns the batching the client was opened with.
func (c *Client) Policy() Policy {
	return c.policy
}

// Stats returns write counters since Connect.
func (c *Client) Stats() Stats {
	return Stats{Queued: c.queued.Load(), WriteErrors: c.writeErrors.Load()}
}

// Close flushes pending points and releases the client. Safe on a zero Client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	case !healthy:
		return ErrUnhealthy
	}
	return nil
}

// IsConnected reports the last known state; it does not ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers the callback for async write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are sent. No-op after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

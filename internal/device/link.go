package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/solar-gateway/internal/infrastructure/metrics"
)

// Link is the gateway's only path to the tracker.
//
// Implementations perform exactly one attempt per call: no retries and no
// caching. Every error is an *Error classified as unreachable or rejected.
type Link interface {
	// Poll reads the full device state. It never returns a partial Reading.
	Poll(ctx context.Context) (Reading, error)

	// Send applies one command and returns an Ack on success.
	Send(ctx context.Context, cmd Command) (Ack, error)
}

// Logger defines the logging interface used by HTTPLink.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Device HTTP paths.
const (
	pathRoot          = "/"
	pathAngles        = "/angles"
	pathMotor         = "/motor"
	pathPID           = "/pidParameters"
	pathConfig        = "/config"
	pathConfigPID     = "/config/pidParameters"
	pathTracking      = "/tracking"
	pathClearTracking = "/clear_tracking"
)

const maxResponseBytes = 1 << 20

// BreakerConfig enables a circuit breaker in front of the device.
type BreakerConfig struct {
	// MaxFailures is the run of consecutive unreachable results that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request.
	OpenTimeout time.Duration
}

// LinkConfig configures an HTTPLink.
type LinkConfig struct {
	// BaseURL is the device root, e.g. "http://192.168.0.101:80".
	BaseURL string

	// PollTimeout bounds one complete Poll.
	PollTimeout time.Duration

	// CommandTimeout bounds one Send.
	CommandTimeout time.Duration

	// Breaker is optional; nil disables the circuit breaker.
	Breaker *BreakerConfig

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// HTTPLink talks to the tracker firmware over its JSON HTTP API.
//
// All device I/O is serialised by a weighted semaphore of one, so a Send
// issued while a Poll is in flight waits for the poll to finish. Every wait
// is bounded by the caller's timeout. The device is a single
// microcontroller and does not tolerate concurrent requests well.
type HTTPLink struct {
	client         *http.Client
	baseURL        atomic.Pointer[string]
	pollTimeout    time.Duration
	commandTimeout time.Duration
	breaker        *gobreaker.CircuitBreaker[[]byte]

	// io serialises device I/O. Waiters give up when their context ends,
	// so a slow command cannot hold a poll past its timeout.
	io     *semaphore.Weighted
	logger Logger
	now    func() time.Time
}

// NewHTTPLink creates a link for the device at cfg.BaseURL.
func NewHTTPLink(cfg LinkConfig) (*HTTPLink, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: empty base URL", ErrInvalidAddress)
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	l := &HTTPLink{
		client:         client,
		pollTimeout:    cfg.PollTimeout,
		commandTimeout: cfg.CommandTimeout,
		io:             semaphore.NewWeighted(1),
		logger:         noopLogger{},
		now:            time.Now,
	}
	base := cfg.BaseURL
	l.baseURL.Store(&base)

	if cfg.Breaker != nil {
		l.breaker = l.newBreaker(*cfg.Breaker)
	}
	return l, nil
}

// SetLogger sets the logger for the link.
func (l *HTTPLink) SetLogger(logger Logger) {
	l.logger = logger
}

// BaseURL returns the device root currently in use.
func (l *HTTPLink) BaseURL() string {
	return *l.baseURL.Load()
}

func (l *HTTPLink) newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[[]byte] {
	const name = "device-link"
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("device circuit breaker state change",
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(to.String()))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// A rejected command proves the device is up.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
	})
}

// Poll reads angles, motor, PID and config from the device. If any of the
// four requests fails the whole poll fails with an unreachable error.
//
// The poll timeout covers the wait for the device lock, so a command in
// flight turns the poll into an unreachable result rather than a stall.
func (l *HTTPLink) Poll(ctx context.Context) (Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, l.pollTimeout)
	defer cancel()

	start := l.now()
	if err := l.acquire(ctx, "poll"); err != nil {
		metrics.RecordPoll(l.now().Sub(start), err)
		return Reading{}, err
	}
	defer l.io.Release(1)

	reading, err := l.poll(ctx)
	metrics.RecordPoll(l.now().Sub(start), err)
	return reading, err
}

// acquire takes the device lock or fails as unreachable when ctx ends first.
func (l *HTTPLink) acquire(ctx context.Context, op string) error {
	if err := l.io.Acquire(ctx, 1); err != nil {
		return unreachable(op, fmt.Errorf("waiting for device: %w", err))
	}
	return nil
}

func (l *HTTPLink) poll(ctx context.Context) (Reading, error) {
	var (
		angles anglesPayload
		motor  motorPayload
		pid    pidPayload
		cfg    configPayload
	)
	if err := l.getJSON(ctx, pathAngles, &angles); err != nil {
		return Reading{}, err
	}
	if err := l.getJSON(ctx, pathMotor, &motor); err != nil {
		return Reading{}, err
	}
	if err := l.getJSON(ctx, pathPID, &pid); err != nil {
		return Reading{}, err
	}
	if err := l.getJSON(ctx, pathConfig, &cfg); err != nil {
		return Reading{}, err
	}
	return buildReading(angles, motor, pid, cfg, l.now()), nil
}

// Send applies cmd to the device.
func (l *HTTPLink) Send(ctx context.Context, cmd Command) (Ack, error) {
	method, path, body, err := encodeCommand(cmd)
	if err != nil {
		return Ack{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.commandTimeout)
	defer cancel()

	if err := l.acquire(ctx, method+" "+path); err != nil {
		return Ack{}, err
	}
	defer l.io.Release(1)

	status, _, err := l.do(ctx, method, path, body)
	if err != nil {
		return Ack{}, err
	}
	l.logger.Info("device command accepted", "kind", string(cmd.Kind), "status", status)
	return Ack{Command: cmd, Status: status, AcceptedAt: l.now()}, nil
}

func encodeCommand(cmd Command) (method, path string, body []byte, err error) {
	var payload any
	switch cmd.Kind {
	case CommandSetMode:
		payload = configPatch{Mode: cmd.Mode, ManualSetpoint: cmd.ManualSetpoint}
		method, path = http.MethodPatch, pathConfig
	case CommandAdjustClock:
		payload = configPatch{Adjust: &adjustBlock{RTC: cmd.Timestamp}}
		method, path = http.MethodPatch, pathConfig
	case CommandSetManualSetpoint:
		sp := cmd.Setpoint
		payload = configPatch{ManualSetpoint: &sp}
		method, path = http.MethodPatch, pathConfig
	case CommandTunePID:
		if cmd.Gains == nil {
			return "", "", nil, fmt.Errorf("device: tunePID without gains")
		}
		payload = pidPatch{Adjust: *cmd.Gains}
		method, path = http.MethodPatch, pathConfigPID
	case CommandClearTracking:
		return http.MethodDelete, pathClearTracking, nil, nil
	default:
		return "", "", nil, fmt.Errorf("device: unknown command kind %q", cmd.Kind)
	}

	body, err = json.Marshal(payload)
	if err != nil {
		return "", "", nil, fmt.Errorf("encoding %s command: %w", cmd.Kind, err)
	}
	return method, path, body, nil
}

// TrackingLog fetches the CSV tracking log stored on the device.
func (l *HTTPLink) TrackingLog(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.commandTimeout)
	defer cancel()

	if err := l.acquire(ctx, "GET "+pathTracking); err != nil {
		return nil, err
	}
	defer l.io.Release(1)

	_, body, err := l.do(ctx, http.MethodGet, pathTracking, nil)
	return body, err
}

// Ping checks the device answers on its root path.
func (l *HTTPLink) Ping(ctx context.Context) error {
	if err := l.acquire(ctx, "GET "+pathRoot); err != nil {
		return err
	}
	defer l.io.Release(1)
	return l.ping(ctx)
}

func (l *HTTPLink) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.pollTimeout)
	defer cancel()
	_, _, err := l.do(ctx, http.MethodGet, pathRoot, nil)
	return err
}

// Retarget points the link at a new device address and verifies it answers.
// If the new address is unreachable the previous one is restored and the
// error returned.
func (l *HTTPLink) Retarget(ctx context.Context, host string, port int) error {
	if net.ParseIP(host) == nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, host)
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidAddress, port)
	}

	if err := l.acquire(ctx, "retarget"); err != nil {
		return err
	}
	defer l.io.Release(1)

	previous := l.baseURL.Load()
	next := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
	l.baseURL.Store(&next)

	if err := l.ping(ctx); err != nil {
		l.baseURL.Store(previous)
		l.logger.Warn("device retarget failed, reverting",
			"address", next,
			"previous", *previous,
			"error", err,
		)
		return err
	}
	l.logger.Info("device retargeted", "address", next, "previous", *previous)
	return nil
}

func (l *HTTPLink) getJSON(ctx context.Context, path string, v any) error {
	_, body, err := l.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return unreachable("GET "+path, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// do performs one request through the breaker. Non-2xx replies to reads
// are unreachable; to writes they are rejected.
func (l *HTTPLink) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	op := method + " " + path
	var status int

	call := func() ([]byte, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, l.BaseURL()+path, rdr)
		if err != nil {
			return nil, unreachable(op, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := l.client.Do(req)
		if err != nil {
			return nil, unreachable(op, err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, unreachable(op, fmt.Errorf("reading response: %w", err))
		}
		if status < 200 || status > 299 {
			if method == http.MethodGet {
				return nil, unreachable(op, fmt.Errorf("status %d", status))
			}
			return nil, rejected(op, status)
		}
		return data, nil
	}

	if l.breaker == nil {
		data, err := call()
		return status, data, err
	}

	data, err := l.breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, nil, unreachable(op, err)
	}
	return status, data, err
}

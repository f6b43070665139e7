package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/solar-gateway/internal/audit"
	"github.com/nerrad567/solar-gateway/internal/control"
	"github.com/nerrad567/solar-gateway/internal/device"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/config"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

// Commander executes tracker commands. *control.Gateway satisfies it.
type Commander interface {
	RequestMode(ctx context.Context, mode string) (control.Result, error)
	RequestModeWithSetpoint(ctx context.Context, mode string, degrees float64) (control.Result, error)
	RequestClockAdjust(ctx context.Context, ts int64) (control.Result, error)
	RequestManualSetpoint(ctx context.Context, degrees float64) (control.Result, error)
	RequestPIDTuning(ctx context.Context, gains device.PIDGains) (control.Result, error)
	RequestClearDeviceTracking(ctx context.Context) (control.Result, error)
}

// Collector exposes the aggregator's history operations and status.
// *telemetry.Aggregator satisfies it.
type Collector interface {
	ClearHistory() int
	Statistics() telemetry.Statistics
	Running() bool
	LastSuccess() time.Time
	ConsecutiveFailures() int
}

// DeviceAdmin covers device operations outside the polling path.
// *device.HTTPLink satisfies it.
type DeviceAdmin interface {
	TrackingLog(ctx context.Context) ([]byte, error)
	Retarget(ctx context.Context, host string, port int) error
	BaseURL() string
}

// AuditSink queues audit entries. *audit.Writer satisfies it.
type AuditSink interface {
	Enqueue(e *audit.Entry) error
}

// ConnectionProbe reports whether an optional integration is connected.
type ConnectionProbe interface {
	IsConnected() bool
}

// DBStatser reports connection pool statistics. *sql.DB satisfies it.
type DBStatser interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	// DeviceID and DevicePort identify the tracker; DevicePort is used
	// when the device registers a new address.
	DeviceID   string
	DevicePort int

	Cache     *telemetry.Cache
	History   *telemetry.History
	Hub       *telemetry.Hub
	Collector Collector
	Commands  Commander

	// Optional.
	Device    DeviceAdmin
	AuditRepo audit.Repository
	Audit     AuditSink
	MQTT      ConnectionProbe
	InfluxDB  ConnectionProbe
	DB        DBStatser

	Version string
}

// Server is the HTTP API server for the gateway.
//
// It owns the router and handlers only. Listening and graceful shutdown
// are handled by the supervisor's HTTP service wrapping HTTPServer().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	deviceID   string
	devicePort int

	cache     *telemetry.Cache
	history   *telemetry.History
	hub       *telemetry.Hub
	collector Collector
	commands  Commander

	device    DeviceAdmin
	auditRepo audit.Repository
	audit     AuditSink
	mqtt      ConnectionProbe
	influx    ConnectionProbe
	db        DBStatser

	validate  *validator.Validate
	version   string
	startTime time.Time
	now       func() time.Time
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Required dependencies (logger, cache, history, hub, collector, commands)
//
// Returns:
//   - *Server: Configured server
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Cache == nil:
		return nil, errors.New("snapshot cache is required")
	case deps.History == nil:
		return nil, errors.New("history is required")
	case deps.Hub == nil:
		return nil, errors.New("telemetry hub is required")
	case deps.Collector == nil:
		return nil, errors.New("collector is required")
	case deps.Commands == nil:
		return nil, errors.New("command gateway is required")
	}

	wsCfg := deps.WS
	if wsCfg.Path == "" {
		wsCfg.Path = "/ws/live"
	}
	if wsCfg.PingInterval <= 0 {
		wsCfg.PingInterval = 30
	}
	if wsCfg.PongTimeout <= 0 {
		wsCfg.PongTimeout = 10
	}
	if wsCfg.MaxMessageSize <= 0 {
		wsCfg.MaxMessageSize = 8192
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      wsCfg,
		logger:     deps.Logger,
		deviceID:   deps.DeviceID,
		devicePort: deps.DevicePort,
		cache:      deps.Cache,
		history:    deps.History,
		hub:        deps.Hub,
		collector:  deps.Collector,
		commands:   deps.Commands,
		device:     deps.Device,
		auditRepo:  deps.AuditRepo,
		audit:      deps.Audit,
		mqtt:       deps.MQTT,
		influx:     deps.InfluxDB,
		db:         deps.DB,
		validate:   validator.New(),
		version:    deps.Version,
		startTime:  time.Now(),
		now:        time.Now,
	}, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// HTTPServer builds the *http.Server for this API. TLS, when enabled, is
// applied by the caller through the configured certificate files.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
}

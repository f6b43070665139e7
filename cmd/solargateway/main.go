// Solar Gateway - tracker telemetry and control service
//
// The gateway polls a single solar tracker over HTTP, keeps the latest
// snapshot and a bounded tracking history, serves both over REST and a
// live WebSocket feed, and relays operator commands back to the device.
// MQTT and InfluxDB integrations are optional.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/solar-gateway/migrations"

	"github.com/nerrad567/solar-gateway/internal/api"
	"github.com/nerrad567/solar-gateway/internal/audit"
	"github.com/nerrad567/solar-gateway/internal/bridges/influxbridge"
	"github.com/nerrad567/solar-gateway/internal/bridges/mqttbridge"
	"github.com/nerrad567/solar-gateway/internal/control"
	"github.com/nerrad567/solar-gateway/internal/device"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/config"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/database"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/solar-gateway/internal/supervisor"
	"github.com/nerrad567/solar-gateway/internal/supervisor/services"
	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting solar gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"device", cfg.DeviceBaseURL(),
		"level", cfg.Logging.Level,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	link, err := newDeviceLink(cfg, log)
	if err != nil {
		return fmt.Errorf("creating device link: %w", err)
	}

	cache := telemetry.NewCache(telemetry.InitialSnapshot(time.Now()))
	history := telemetry.NewHistory(cfg.Device.HistoryCapacity)
	hub := telemetry.NewHub(cfg.WebSocket.SendBuffer)
	hub.SetLogger(log.Component("hub"))
	defer hub.Close()

	aggregator := telemetry.NewAggregator(link, cache, history, hub, telemetry.AggregatorConfig{
		Interval:         cfg.Device.PollInterval,
		OfflineThreshold: cfg.Device.OfflineThreshold,
	})
	aggregator.SetLogger(log.Component("aggregator"))
	aggregator.AddSink(logSink(log.Component("events")))

	gateway := control.NewGateway(link, cache)
	gateway.SetLogger(log.Component("control"))

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, audit.WriterConfig{
		DeviceID:  cfg.Device.ID,
		Retention: time.Duration(cfg.Database.AuditRetentionDays) * 24 * time.Hour,
	})
	auditWriter.SetLogger(log.Component("audit"))
	aggregator.AddSink(auditWriter)
	gateway.AddRecorder(auditWriter)

	tree := supervisor.NewTree(log.Component("supervisor").Logger, supervisor.FromConfig(cfg.Supervisor))
	tree.AddDataService(auditWriter)
	tree.AddCoreService(aggregator)

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		DeviceID:   cfg.Device.ID,
		DevicePort: cfg.Device.HTTPPort,
		Cache:      cache,
		History:    history,
		Hub:        hub,
		Collector:  aggregator,
		Commands:   gateway,
		Device:     link,
		AuditRepo:  auditRepo,
		Audit:      auditWriter,
		DB:         db,
		Version:    version,
	}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(cfg, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		bridge := mqttbridge.NewBridge(mqttClient, mqttClient.Topics(), hub, gateway)
		bridge.SetLogger(log.Component("mqtt-bridge"))
		aggregator.AddSink(bridge)
		tree.AddMessagingService(bridge)
		deps.MQTT = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, influxdb.Series{
			DeviceID:     cfg.Device.ID,
			SiteID:       cfg.Site.ID,
			PollInterval: cfg.Device.PollInterval,
		})
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			st := influxClient.Stats()
			log.Info("InfluxDB closed", "points", st.Queued, "write_errors", st.WriteErrors)
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
			"batch_size", influxClient.Policy().BatchSize,
			"flush_interval", influxClient.Policy().FlushInterval,
		)

		recorder := influxbridge.NewRecorder(influxClient, hub, cfg.Device.ID)
		recorder.SetLogger(log.Component("influx-recorder"))
		aggregator.AddSink(recorder)
		gateway.AddRecorder(recorder)
		tree.AddMessagingService(recorder)
		deps.InfluxDB = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	tree.AddAPIService(services.NewHTTPServerService(
		httpServer(cfg, apiServer.HTTPServer()),
		cfg.Supervisor.ShutdownTimeout,
	))
	log.Info("API server configured",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
		"websocket", cfg.WebSocket.Path,
	)

	log.Info("initialisation complete, serving")
	serveErr := tree.Serve(ctx)

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		log.Warn("services did not stop within timeout", "count", len(report))
	}
	if serveErr != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor: %w", serveErr)
	}

	log.Info("solar gateway stopped")
	return nil
}

// loadConfig reads the config file, falling back to built-in defaults
// when no file exists at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = config.Default()
	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validating default config: %w", validateErr)
	}
	return cfg, nil
}

// getConfigPath returns the configuration file path.
// Uses SOLARGW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SOLARGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newDeviceLink(cfg *config.Config, log *logging.Logger) (*device.HTTPLink, error) {
	linkCfg := device.LinkConfig{
		BaseURL:        cfg.DeviceBaseURL(),
		PollTimeout:    cfg.Device.PollTimeout,
		CommandTimeout: cfg.Device.CommandTimeout,
	}
	if cb := cfg.Device.CircuitBreaker; cb.Enabled {
		linkCfg.Breaker = &device.BreakerConfig{
			MaxFailures: cb.MaxFailures,
			OpenTimeout: cb.OpenTimeout,
		}
	}
	link, err := device.NewHTTPLink(linkCfg)
	if err != nil {
		return nil, err
	}
	link.SetLogger(log.Component("device"))
	return link, nil
}

func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Site.ID, cfg.Device.ID)
	client, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// httpServer wraps srv for TLS when certificates are configured.
func httpServer(cfg *config.Config, srv *http.Server) services.HTTPServer {
	if cfg.API.TLS.Enabled {
		return &services.TLSServer{
			Server:   srv,
			CertFile: cfg.API.TLS.CertFile,
			KeyFile:  cfg.API.TLS.KeyFile,
		}
	}
	return srv
}

// logSink logs aggregator events.
func logSink(log *logging.Logger) telemetry.EventSink {
	return telemetry.EventSinkFunc(func(_ context.Context, ev telemetry.Event) error {
		switch ev.Type {
		case telemetry.EventDeviceOffline:
			log.Warn("device offline", "failures", ev.Failures)
		case telemetry.EventDeviceOnline:
			log.Info("device online")
		case telemetry.EventModeChanged:
			log.Info("tracker mode changed", "from", string(ev.FromMode), "to", string(ev.ToMode))
		}
		return nil
	})
}

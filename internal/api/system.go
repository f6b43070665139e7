package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the GET /api/system response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Collector     CollectorMetrics `json:"collector"`
	Live          LiveMetrics      `json:"live"`
	MQTT          *ConnMetrics     `json:"mqtt,omitempty"`
	InfluxDB      *ConnMetrics     `json:"influxdb,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// CollectorMetrics describes the polling loop.
type CollectorMetrics struct {
	Running             bool   `json:"running"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastSuccess         string `json:"last_success,omitempty"`
	HistorySamples      int    `json:"history_samples"`
	HistoryCapacity     int    `json:"history_capacity"`
	DeviceURL           string `json:"device_url,omitempty"`
}

// LiveMetrics contains live subscription statistics.
type LiveMetrics struct {
	Subscribers int `json:"subscribers"`
}

// ConnMetrics reports an optional integration's connection state.
type ConnMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystem returns runtime and component status.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := SystemMetrics{
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Collector: CollectorMetrics{
			Running:             s.collector.Running(),
			ConsecutiveFailures: s.collector.ConsecutiveFailures(),
			HistorySamples:      s.history.Len(),
			HistoryCapacity:     s.history.Cap(),
		},
		Live: LiveMetrics{Subscribers: s.hub.Count()},
	}
	if t := s.collector.LastSuccess(); !t.IsZero() {
		m.Collector.LastSuccess = t.UTC().Format(time.RFC3339Nano)
	}
	if s.device != nil {
		m.Collector.DeviceURL = s.device.BaseURL()
	}
	if s.mqtt != nil {
		m.MQTT = &ConnMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.influx != nil {
		m.InfluxDB = &ConnMetrics{Connected: s.influx.IsConnected()}
	}
	if s.db != nil {
		st := s.db.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, m)
}

// Package supervisor runs the gateway's long-lived services under a
// suture supervisor tree so a crashed service is restarted with backoff
// instead of taking the process down.
//
// The tree has four layers:
//
//	solar-gateway (root)
//	├── data-layer        audit writer
//	├── core-layer        telemetry aggregator
//	├── messaging-layer   MQTT bridge, InfluxDB recorder
//	└── api-layer         HTTP server
package supervisor

// Package influxbridge records tracker telemetry in InfluxDB.
//
// Each live snapshot becomes a tracking point, connectivity transitions
// become connectivity points, and commands that reached the device become
// command points.
package influxbridge

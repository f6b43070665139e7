// Package api provides the HTTP REST API and WebSocket server for the
// solar tracker gateway.
//
// Read endpoints serve the cached snapshot and never touch the device.
// Control endpoints go through the command gateway, one command at a time.
// Live updates are streamed over a WebSocket fed by the telemetry hub.
//
// Routes (all JSON):
//
//	GET    /api/health               gateway and device reachability
//	GET    /api/snapshot             full current snapshot
//	GET    /api/angles               sun, lens and manual setpoint angles
//	GET    /api/motor                motor power and raw PWM
//	GET    /api/pid                  PID gains and live terms
//	GET    /api/system-status        mode, device clock, connectivity
//	GET    /api/control-signals      derived control signals
//	GET    /api/solar-irradiation    irradiance estimate
//	GET    /api/statistics           statistics over recent samples
//	GET    /api/system               runtime and component status
//	PATCH  /api/mode                 set operating mode
//	PATCH  /api/clock                adjust the device clock
//	PATCH  /api/manual-setpoint      set the manual setpoint
//	PATCH  /api/pid                  tune PID gains
//	GET    /api/tracking-data        device tracking log
//	DELETE /api/tracking-data        clear the gateway's sample history
//	DELETE /api/device/tracking      clear the device's tracking log
//	GET    /api/data-history         recent samples, most recent first
//	GET    /api/events               audit log
//	GET    /api/demo-data            simulated snapshot
//	POST   /api/register-ip          re-target the device link
//	GET    /metrics                  Prometheus metrics
//	GET    /ws/live                  live snapshot stream
package api

// Package influxdb provides InfluxDB connectivity for the solar gateway.
//
// A Client is opened for one tracker. Its device and site are default tags
// on every point, and its batch size follows the poll interval (see
// PolicyFor).
//
// The gateway writes:
//   - tracker_tracking: one point per successful poll (angles, error, motor effort)
//   - tracker_connectivity: device online/offline transitions
//   - tracker_command: accepted and failed operator commands
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, influxdb.Series{
//	    DeviceID:     cfg.Device.ID,
//	    SiteID:       cfg.Site.ID,
//	    PollInterval: cfg.Device.PollInterval,
//	})
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history stays in memory only
//	}
//	defer client.Close()
//
//	client.WriteTracking(influxdb.TrackingPoint{DeviceID: "tracker-001", SunAngle: 45.5})
package influxdb

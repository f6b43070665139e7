// Package mqtt provides MQTT connectivity for the solar gateway.
//
// The gateway mirrors its telemetry onto a broker so that other site
// systems (historians, SCADA dashboards, home automation) can follow the
// tracker without polling the HTTP API. It also accepts a small set of
// control commands on per-device command topics.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees (raw and JSON)
//   - Subscriptions restored on reconnect
//   - Last Will and Testament (LWT) on the gateway status topic
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Site.ID, cfg.Device.ID)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(topics.Snapshot(), snap, false)
package mqtt

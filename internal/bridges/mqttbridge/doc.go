// Package mqttbridge mirrors the tracker onto an MQTT broker.
//
// Every snapshot the aggregator publishes is forwarded to the snapshot
// topic, the retained online flag follows the device's reachability, and
// aggregator events go to per-type event topics. Commands arriving on the
// command topics are routed through the control gateway and their outcome
// is published on the result topic.
package mqttbridge

package mqtt

import "fmt"

// Topics builds the gateway's MQTT topic tree:
//
//	{prefix}/{site}/gateway/status            retained, LWT
//	{prefix}/{site}/{device}/snapshot          every aggregator tick
//	{prefix}/{site}/{device}/online            retained, "true"/"false"
//	{prefix}/{site}/{device}/events/{type}     mode and connectivity transitions
//	{prefix}/{site}/{device}/command/{kind}    inbound commands
//	{prefix}/{site}/{device}/command/result    command outcomes
//
// A zero Topics uses prefix "solar" and empty site/device segments; callers
// should always go through NewTopics.
type Topics struct {
	Prefix   string
	SiteID   string
	DeviceID string
}

// NewTopics returns a topic builder for one site and device.
func NewTopics(prefix, siteID, deviceID string) Topics {
	if prefix == "" {
		prefix = "solar"
	}
	return Topics{Prefix: prefix, SiteID: siteID, DeviceID: deviceID}
}

func (t Topics) site() string {
	p := t.Prefix
	if p == "" {
		p = "solar"
	}
	return fmt.Sprintf("%s/%s", p, t.SiteID)
}

func (t Topics) device() string {
	return fmt.Sprintf("%s/%s", t.site(), t.DeviceID)
}

// GatewayStatus is the retained online/offline topic for this gateway process.
func (t Topics) GatewayStatus() string {
	return t.site() + "/gateway/status"
}

// Snapshot carries one full snapshot per tick.
func (t Topics) Snapshot() string {
	return t.device() + "/snapshot"
}

// DeviceOnline carries the retained device reachability flag.
func (t Topics) DeviceOnline() string {
	return t.device() + "/online"
}

// Event returns the topic for a transition event of the given type.
//
// Example: solar/site-001/tracker-001/events/mode_changed
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/events/%s", t.device(), eventType)
}

// Command returns the inbound command topic for a command kind.
//
// Example: solar/site-001/tracker-001/command/mode
func (t Topics) Command(kind string) string {
	return fmt.Sprintf("%s/command/%s", t.device(), kind)
}

// AllCommands matches every inbound command topic for this device.
func (t Topics) AllCommands() string {
	return t.device() + "/command/+"
}

// CommandResult carries the outcome of commands received over MQTT.
func (t Topics) CommandResult() string {
	return t.device() + "/command/result"
}

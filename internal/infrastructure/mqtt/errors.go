package mqtt

import "errors"

// Connection state.
var (
	// ErrConnectionFailed wraps the broker's refusal or a connect timeout.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned while the client is between reconnects.
	// The bridge drops snapshots rather than queueing them on this error.
	ErrNotConnected = errors.New("mqtt: not connected")
)

// Operation failures. Timeouts are reported through these, not separately.
var (
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
)

// Argument checks made before anything reaches the broker.
var (
	ErrInvalidTopic = errors.New("mqtt: empty topic")
	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
)

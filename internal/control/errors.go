package control

import (
	"errors"
	"fmt"

	"github.com/nerrad567/solar-gateway/internal/device"
)

// Command errors. Callers distinguish local validation problems, contention
// and device-side failures with errors.Is.
var (
	// ErrInvalidArgument is returned before any device I/O for malformed input.
	ErrInvalidArgument = errors.New("control: invalid argument")

	// ErrBusy means another command is in flight. Retry later.
	ErrBusy = errors.New("control: command in flight")

	// ErrDeviceUnreachable means the command could not be delivered.
	ErrDeviceUnreachable = errors.New("control: device unreachable")

	// ErrDeviceRejected means the device refused the command.
	ErrDeviceRejected = errors.New("control: device rejected command")

	// ErrInternal signals a broken invariant.
	ErrInternal = errors.New("control: internal error")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// mapDeviceError translates a device.Link failure into the command taxonomy,
// keeping the original error in the chain.
func mapDeviceError(err error) error {
	switch {
	case errors.Is(err, device.ErrRejected):
		return fmt.Errorf("%w: %w", ErrDeviceRejected, err)
	case errors.Is(err, device.ErrUnreachable):
		return fmt.Errorf("%w: %w", ErrDeviceUnreachable, err)
	default:
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
}

// Outcome labels an error for metrics and the audit trail.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrDeviceRejected):
		return "rejected"
	case errors.Is(err, ErrDeviceUnreachable):
		return "unreachable"
	default:
		return "internal"
	}
}

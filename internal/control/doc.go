// Package control forwards operator commands to the tracker.
//
// Gateway enforces a single in-flight command: a request arriving while
// another is pending fails fast with ErrBusy. Input is validated before the
// device is contacted, and device failures are reported as
// ErrDeviceUnreachable or ErrDeviceRejected so callers can tell whether a
// retry makes sense.
//
//	res, err := gw.RequestMode(control.WithSource(ctx, "api"), "halt")
//	switch {
//	case errors.Is(err, control.ErrInvalidArgument): // 400
//	case errors.Is(err, control.ErrBusy):            // 409, retry later
//	case errors.Is(err, control.ErrDeviceUnreachable): // 503
//	case errors.Is(err, control.ErrDeviceRejected):    // 502
//	}
//
// An acknowledged command updates the cached snapshot immediately. The
// overlay is provisional: the next successful poll replaces it with what
// the device actually reports.
package control

package services

import (
	"errors"
	"fmt"

	"fieldops/internal/location"
)

// GeofenceViolationError is returned when the fix is outside the work-site radius
type GeofenceViolationError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *GeofenceViolationError) Error() string {
	return fmt.Sprintf("outside geofence: %.0fm from center, limit %.0fm", e.DistanceMeters, e.RadiusMeters)
}

// TimeoutError is returned when the watchdog fires before the operation finishes
type TimeoutError struct {
	Phase Phase
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out while %s", e.Phase)
}

// BackendError wraps a failed backend call. Error keeps the backend message verbatim.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// Message maps an operation error to user-facing text
func (c Catalog) Message(err error) string {
	var (
		denied  *location.PermissionDeniedError
		outside *GeofenceViolationError
		timeout *TimeoutError
		backend *BackendError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &denied):
		return c.PermissionDenied(denied.SettingsURL)
	case errors.Is(err, location.ErrServiceDisabled):
		return c.ServiceDisabled()
	case errors.Is(err, location.ErrLocationUnavailable):
		return c.LocationUnavailable()
	case errors.As(err, &outside):
		return c.OutsideGeofence(outside.DistanceMeters, outside.RadiusMeters)
	case errors.As(err, &timeout):
		return c.Timeout(timeout.Phase)
	case errors.As(err, &backend):
		return backend.Error()
	}
	return err.Error()
}

// Package location acquires a best-effort device position under a hard deadline
package location

import (
	"context"
	"errors"
	"fmt"

	"fieldops/internal/models"
)

// Accuracy is the accuracy class requested from a source
type Accuracy int

const (
	AccuracyLowest Accuracy = iota
	AccuracyBalanced
	AccuracyHigh
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyLowest:
		return "lowest"
	case AccuracyBalanced:
		return "balanced"
	case AccuracyHigh:
		return "high"
	}
	return fmt.Sprintf("accuracy(%d)", int(a))
}

// Permission is the foreground location permission state
type Permission int

const (
	PermissionUndetermined Permission = iota
	PermissionGranted
	PermissionDenied
)

// Source is a device location provider
type Source interface {
	// ServicesEnabled reports whether device location is switched on
	ServicesEnabled(ctx context.Context) (bool, error)
	// Permission returns the current foreground permission state
	Permission(ctx context.Context) (Permission, error)
	// RequestPermission prompts the user and returns the resulting state
	RequestPermission(ctx context.Context) (Permission, error)
	// LastKnown returns the cached position, or nil if none is cached
	LastKnown(ctx context.Context) (*models.Position, error)
	// Current takes a single fresh reading
	Current(ctx context.Context, accuracy Accuracy) (models.Position, error)
	// Watch starts a continuous subscription. The caller must Stop it.
	Watch(ctx context.Context, accuracy Accuracy) (Subscription, error)
}

// Subscription is a running position watch
type Subscription interface {
	Positions() <-chan models.Position
	Stop()
}

var (
	// ErrServiceDisabled is returned when device location is switched off
	ErrServiceDisabled = errors.New("location services disabled")
	// ErrLocationUnavailable is returned when every strategy failed and fallback is off
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrNoReading is returned by sources that cannot serve a strategy
	ErrNoReading = errors.New("no location reading")
)

// PermissionDeniedError is returned when the user declined location access
type PermissionDeniedError struct {
	SettingsURL string
}

func (e *PermissionDeniedError) Error() string {
	return "location permission denied"
}

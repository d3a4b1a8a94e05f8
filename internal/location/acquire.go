package location

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fieldops/internal/geo"
	"fieldops/internal/models"
)

// Default step timeouts
const (
	DefaultLastKnownTimeout = 3 * time.Second
	DefaultCurrentTimeout   = 8 * time.Second
	DefaultWatchTimeout     = 9 * time.Second
	DefaultOverallTimeout   = 25 * time.Second
	DefaultSettingsURL      = "app-settings:"
)

var errNonFinite = errors.New("non-finite coordinate")

// Config tunes the acquisition chain
type Config struct {
	LastKnownTimeout time.Duration
	CurrentTimeout   time.Duration
	WatchTimeout     time.Duration
	OverallTimeout   time.Duration

	// AllowFallbackCenter substitutes the geofence center when no fix is obtained
	AllowFallbackCenter bool
	Geofence            geo.Geofence
	SettingsURL         string
}

// Acquirer runs the ordered fallback chain
type Acquirer struct {
	cfg Config
}

// NewAcquirer creates an acquirer, filling zero values with defaults
func NewAcquirer(cfg Config) *Acquirer {
	if cfg.LastKnownTimeout <= 0 {
		cfg.LastKnownTimeout = DefaultLastKnownTimeout
	}
	if cfg.CurrentTimeout <= 0 {
		cfg.CurrentTimeout = DefaultCurrentTimeout
	}
	if cfg.WatchTimeout <= 0 {
		cfg.WatchTimeout = DefaultWatchTimeout
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = DefaultOverallTimeout
	}
	if cfg.Geofence.RadiusMeters <= 0 {
		cfg.Geofence = geo.DefaultGeofence()
	}
	if cfg.SettingsURL == "" {
		cfg.SettingsURL = DefaultSettingsURL
	}
	return &Acquirer{cfg: cfg}
}

// Geofence returns the fence distances are measured against
func (a *Acquirer) Geofence() geo.Geofence {
	return a.cfg.Geofence
}

type step struct {
	source  string
	timeout time.Duration
	read    func(ctx context.Context) (models.Position, error)
}

// Acquire obtains a fix from src. Distance is measured from the geofence center.
func (a *Acquirer) Acquire(ctx context.Context, src Source) (models.LocationFix, error) {
	if err := a.ensureAccess(ctx, src); err != nil {
		return models.LocationFix{}, err
	}

	chainCtx, cancel := context.WithTimeout(ctx, a.cfg.OverallTimeout)
	defer cancel()

	pos, source, err := a.firstFix(chainCtx, src)
	if err != nil {
		return a.fallback(err)
	}
	if !geo.IsFinite(pos.Latitude) || !geo.IsFinite(pos.Longitude) {
		return a.fallback(errNonFinite)
	}

	distance := a.cfg.Geofence.Distance(geo.Point{Lat: pos.Latitude, Lng: pos.Longitude})
	if !geo.IsFinite(distance) {
		return a.fallback(fmt.Errorf("distance: %w", errNonFinite))
	}

	log.Printf("📍 Fix acquired via %s: %.6f,%.6f (%.0fm from center)", source, pos.Latitude, pos.Longitude, distance)
	return models.LocationFix{
		Latitude:       pos.Latitude,
		Longitude:      pos.Longitude,
		DistanceMeters: distance,
		AccuracyM:      pos.AccuracyM,
		Source:         source,
	}, nil
}

func (a *Acquirer) ensureAccess(ctx context.Context, src Source) error {
	enabled, err := src.ServicesEnabled(ctx)
	if err != nil {
		return fmt.Errorf("check location services: %w", err)
	}
	if !enabled {
		return ErrServiceDisabled
	}

	perm, err := src.Permission(ctx)
	if err != nil {
		return fmt.Errorf("check location permission: %w", err)
	}
	if perm == PermissionUndetermined {
		if perm, err = src.RequestPermission(ctx); err != nil {
			return fmt.Errorf("request location permission: %w", err)
		}
	}
	if perm != PermissionGranted {
		return &PermissionDeniedError{SettingsURL: a.cfg.SettingsURL}
	}
	return nil
}

func (a *Acquirer) steps(src Source) []step {
	return []step{
		{
			source:  models.SourceLastKnown,
			timeout: a.cfg.LastKnownTimeout,
			read: func(ctx context.Context) (models.Position, error) {
				p, err := src.LastKnown(ctx)
				if err != nil {
					return models.Position{}, err
				}
				if p == nil {
					return models.Position{}, ErrNoReading
				}
				return *p, nil
			},
		},
		{
			source:  models.SourceCurrentLowest,
			timeout: a.cfg.CurrentTimeout,
			read: func(ctx context.Context) (models.Position, error) {
				return src.Current(ctx, AccuracyLowest)
			},
		},
		{
			source:  models.SourceWatchBalanced,
			timeout: a.cfg.WatchTimeout,
			read: func(ctx context.Context) (models.Position, error) {
				return watchFirst(ctx, src, AccuracyBalanced)
			},
		},
		{
			source:  models.SourceWatchHigh,
			timeout: a.cfg.WatchTimeout,
			read: func(ctx context.Context) (models.Position, error) {
				return watchFirst(ctx, src, AccuracyHigh)
			},
		},
	}
}

// firstFix tries every step in order until one yields a reading
func (a *Acquirer) firstFix(ctx context.Context, src Source) (models.Position, string, error) {
	var lastErr error
	for _, s := range a.steps(src) {
		if ctx.Err() != nil {
			return models.Position{}, "", fmt.Errorf("overall deadline: %w", ctx.Err())
		}

		pos, err := runStep(ctx, s)
		if err == nil {
			return pos, s.source, nil
		}
		log.Printf("⚠️ Location strategy %s failed: %v", s.source, err)
		lastErr = err
	}
	return models.Position{}, "", lastErr
}

// runStep bounds one strategy by its own timeout even if the source ignores ctx
func runStep(ctx context.Context, s step) (models.Position, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		pos models.Position
		err error
	}
	done := make(chan result, 1)
	go func() {
		pos, err := s.read(stepCtx)
		done <- result{pos, err}
	}()

	select {
	case r := <-done:
		return r.pos, r.err
	case <-stepCtx.Done():
		return models.Position{}, stepCtx.Err()
	}
}

// watchFirst resolves on the first reading of a watch and always stops it
func watchFirst(ctx context.Context, src Source, accuracy Accuracy) (models.Position, error) {
	sub, err := src.Watch(ctx, accuracy)
	if err != nil {
		return models.Position{}, err
	}
	defer sub.Stop()

	select {
	case p, ok := <-sub.Positions():
		if !ok {
			return models.Position{}, fmt.Errorf("watch %s closed: %w", accuracy, ErrNoReading)
		}
		return p, nil
	case <-ctx.Done():
		return models.Position{}, ctx.Err()
	}
}

func (a *Acquirer) fallback(cause error) (models.LocationFix, error) {
	if !a.cfg.AllowFallbackCenter {
		return models.LocationFix{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, cause)
	}

	log.Printf("⚠️ Location unavailable (%v), substituting fallback center", cause)
	return models.LocationFix{
		Latitude:       a.cfg.Geofence.Center.Lat,
		Longitude:      a.cfg.Geofence.Center.Lng,
		DistanceMeters: 0,
		Fallback:       true,
		Source:         models.SourceFallbackCenter,
	}, nil
}

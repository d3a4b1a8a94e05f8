package location

import (
	"context"

	"fieldops/internal/models"
)

// Reported serves a single reading uploaded by a client. It only satisfies the
// last-known strategy; fresh readings and watches fail immediately.
type Reported struct {
	Position *models.Position
}

// NewReported wraps an uploaded reading. A nil position makes every strategy fail.
func NewReported(p *models.Position) *Reported {
	return &Reported{Position: p}
}

func (r *Reported) ServicesEnabled(ctx context.Context) (bool, error) { return true, nil }

func (r *Reported) Permission(ctx context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (r *Reported) RequestPermission(ctx context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (r *Reported) LastKnown(ctx context.Context) (*models.Position, error) {
	return r.Position, nil
}

func (r *Reported) Current(ctx context.Context, accuracy Accuracy) (models.Position, error) {
	return models.Position{}, ErrNoReading
}

func (r *Reported) Watch(ctx context.Context, accuracy Accuracy) (Subscription, error) {
	return nil, ErrNoReading
}

var _ Source = (*Reported)(nil)

package geo

import (
	"context"
	"errors"

	"github.com/atinyakov/GophFood/internal/models"
)

// ErrPositionUnavailable is returned when no fix can be obtained.
var ErrPositionUnavailable = errors.New("position unavailable")

// Locator is the device location source.
type Locator interface {
	// RequestPermission asks for location access and reports whether it was
	// granted.
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition returns the current fix.
	CurrentPosition(ctx context.Context) (models.Coordinates, error)
}

// Geocoder converts between coordinates and human readable places.
type Geocoder interface {
	Reverse(ctx context.Context, c models.Coordinates) ([]Place, error)
	Forward(ctx context.Context, query string) ([]Candidate, error)
}

// StaticLocator reports a fixed position. It stands in for a device GPS on
// hosts that have none.
type StaticLocator struct {
	Position models.Coordinates
	Denied   bool
	// Err, when set, is returned by CurrentPosition.
	Err error
}

// RequestPermission implements Locator.
func (l *StaticLocator) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !l.Denied, nil
}

// CurrentPosition implements Locator.
func (l *StaticLocator) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	if l.Err != nil {
		return models.Coordinates{}, l.Err
	}
	return l.Position, nil
}

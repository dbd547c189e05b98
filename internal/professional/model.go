package professional

import (
	"fmt"
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound     = apperror.NotFound("professional not found")
	ErrInvalidHours = apperror.Validation("invalid business hours")
)

// Professional is a bookable person on a tenant's team. Open/Close are local
// wall-clock times ("09:00") interpreted in Timezone.
type Professional struct {
	ID         string
	TenantID   string
	Name       string
	Timezone   string
	OpenTime   string
	CloseTime  string
	CalendarID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Location resolves the professional's IANA timezone.
func (p *Professional) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// ParseClock parses a "HH:MM" or "HH:MM:SS" wall-clock string into hour and
// minute components.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		t, err = time.Parse("15:04", s)
	}
	if err != nil {
		return 0, 0, ErrInvalidHours
	}
	return t.Hour(), t.Minute(), nil
}

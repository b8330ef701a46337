package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrDoctorNotFound = errors.New("doctor not found")

type DoctorRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type AvailabilityRepository interface {
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityBlock, error)
}

// BookingRepository returns bookings from every source for a date. Rows from
// the legacy table come back with Source set to SourceLegacy.
type BookingRepository interface {
	ListByDate(ctx context.Context, date time.Time) ([]Booking, error)
}

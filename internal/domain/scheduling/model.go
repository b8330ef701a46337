package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctor table.
type Doctor struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Specialty string    `db:"specialty" json:"specialty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AvailabilityBlock maps to the availability_block table. A block is either
// recurring (DayOfWeek set) or one-off (SpecificDate set), never both.
type AvailabilityBlock struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	DoctorID     uuid.UUID  `db:"doctor_id" json:"doctor_id" validate:"required"`
	DayOfWeek    string     `db:"day_of_week" json:"day_of_week,omitempty" validate:"omitempty,weekday"`
	SpecificDate *time.Time `db:"specific_date" json:"specific_date,omitempty"`
	StartTime    TimeOfDay  `db:"start_time" json:"start_time"`
	EndTime      TimeOfDay  `db:"end_time" json:"end_time"`
	Location     string     `db:"location" json:"location,omitempty" validate:"omitempty,max=120"`
	IsAvailable  bool       `db:"is_available" json:"is_available"`
}

// Recurring reports whether the block repeats weekly.
func (b *AvailabilityBlock) Recurring() bool { return b.SpecificDate == nil }

type BookingSource string

const (
	SourceCurrent BookingSource = "current"
	SourceLegacy  BookingSource = "legacy"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCheckedIn = "checked-in"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Booking is a patient's claim on a doctor, date and time. Rows from the
// appointment table and the older legacy_appointment table both load into
// this type; Source records which one.
type Booking struct {
	ID          string        `json:"id"`
	Source      BookingSource `json:"source"`
	DoctorID    *uuid.UUID    `json:"doctor_id,omitempty"`
	Department  string        `json:"department,omitempty"`
	PatientName string        `json:"patient_name,omitempty"`
	Date        time.Time     `json:"date"`
	TimeRange   string        `json:"time_range"`
	Status      string        `json:"status"`
}

// Cancelled reports whether the booking no longer holds its time.
func (b *Booking) Cancelled() bool {
	return strings.EqualFold(strings.TrimSpace(b.Status), StatusCancelled)
}

// Start returns the normalised start of TimeRange.
func (b *Booking) Start() (TimeOfDay, error) {
	start, _, _ := strings.Cut(b.TimeRange, " - ")
	t, err := ParseTimeOfDay(start)
	if err != nil {
		return 0, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	return t, nil
}

// End returns the end of TimeRange when the range has one.
func (b *Booking) End() (TimeOfDay, bool, error) {
	_, end, ok := strings.Cut(b.TimeRange, " - ")
	if !ok || strings.TrimSpace(end) == "" {
		return 0, false, nil
	}
	t, err := ParseTimeOfDay(end)
	if err != nil {
		return 0, false, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	return t, true, nil
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
)

// Slot is a derived appointment unit. It is recomputed on every request and
// never stored.
type Slot struct {
	DoctorID    uuid.UUID  `json:"doctor_id"`
	Date        time.Time  `json:"date"`
	StartTime   TimeOfDay  `json:"start_time"`
	EndTime     TimeOfDay  `json:"end_time"`
	Location    string     `json:"location,omitempty"`
	Status      SlotStatus `json:"status"`
	BookingID   string     `json:"booking_id,omitempty"`
	PatientName string     `json:"patient_name,omitempty"`
	Legacy      bool       `json:"legacy,omitempty"`
}

// Label renders the slot as "09:00 AM - 09:30 AM".
func (s Slot) Label() string {
	return s.StartTime.String() + " - " + s.EndTime.String()
}

// DayPlan is the full derived view of one doctor's day.
type DayPlan struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      time.Time `json:"date"`
	Slots     []Slot    `json:"slots"`
	Available []Slot    `json:"available"`
	Locations []string  `json:"locations"`
}

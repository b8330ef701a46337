package scheduling

import (
	"sort"
	"strings"
	"time"
)

// Correlates reports whether a booking belongs to doctor. Bookings carrying a
// doctor id match on it. Legacy rows without one fall back to comparing their
// department with the doctor's specialty, ignoring case.
func Correlates(b *Booking, doctor *Doctor) bool {
	if b.DoctorID != nil {
		return *b.DoctorID == doctor.ID
	}
	specialty := strings.TrimSpace(doctor.Specialty)
	if specialty == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(b.Department), specialty)
}

// ActiveBooking is a booking that holds a time on the planned day, with its
// time range already parsed.
type ActiveBooking struct {
	Booking
	Start  TimeOfDay
	End    TimeOfDay
	HasEnd bool
}

// SelectActive keeps the non-cancelled bookings of doctor on date and parses
// their times. A participating booking with an unreadable time is an error.
func SelectActive(bookings []Booking, doctor *Doctor, date time.Time) ([]ActiveBooking, error) {
	var active []ActiveBooking
	for i := range bookings {
		b := &bookings[i]
		if !SameDate(b.Date, date) || !Correlates(b, doctor) || b.Cancelled() {
			continue
		}
		start, err := b.Start()
		if err != nil {
			return nil, err
		}
		end, hasEnd, err := b.End()
		if err != nil {
			return nil, err
		}
		active = append(active, ActiveBooking{Booking: *b, Start: start, End: end, HasEnd: hasEnd})
	}
	return active, nil
}

// Reconciler merges generated slots with bookings from both the current and
// the legacy appointment tables.
type Reconciler struct {
	slotMinutes int
}

func NewReconciler(slotMinutes int) *Reconciler {
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}
	return &Reconciler{slotMinutes: slotMinutes}
}

// Reconcile marks every slot whose start matches an active booking as booked
// and adds a legacy slot for each active booking time that no slot covers.
// The result is ordered by start time; equal starts keep input order. Neither
// input slice is modified.
func (r *Reconciler) Reconcile(slots []Slot, bookings []Booking, doctor *Doctor, date time.Time) ([]Slot, error) {
	active, err := SelectActive(bookings, doctor, date)
	if err != nil {
		return nil, err
	}

	merged := make([]Slot, len(slots), len(slots)+len(active))
	copy(merged, slots)

	byStart := make(map[TimeOfDay][]int, len(merged))
	for i, s := range merged {
		byStart[s.StartTime] = append(byStart[s.StartTime], i)
	}
	claimed := make(map[TimeOfDay]bool, len(active))

	for _, b := range active {
		if claimed[b.Start] {
			continue
		}
		claimed[b.Start] = true

		if idx, ok := byStart[b.Start]; ok {
			for _, i := range idx {
				merged[i].Status = SlotBooked
				merged[i].BookingID = b.ID
				merged[i].PatientName = b.PatientName
			}
			continue
		}

		end := b.Start.Add(r.slotMinutes)
		if b.HasEnd && b.End > b.Start {
			end = b.End
		}
		merged = append(merged, Slot{
			DoctorID:    doctor.ID,
			Date:        DateOnly(date),
			StartTime:   b.Start,
			EndTime:     end,
			Status:      SlotBooked,
			BookingID:   b.ID,
			PatientName: b.PatientName,
			Legacy:      true,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartTime < merged[j].StartTime
	})
	return merged, nil
}

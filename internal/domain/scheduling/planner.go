package scheduling

import (
	"time"
)

// Planner runs generation, reconciliation and filtering for one doctor and
// one date. It holds no state between calls.
type Planner struct {
	gen *Generator
	rec *Reconciler
}

func NewPlanner(slotMinutes int, precedence Precedence) *Planner {
	gen := NewGenerator(slotMinutes, precedence)
	return &Planner{gen: gen, rec: NewReconciler(gen.SlotMinutes())}
}

func (p *Planner) SlotMinutes() int { return p.gen.SlotMinutes() }

// Plan derives the day plan. blocks may include other doctors' or other
// days' entries; only those applying to date are used. bookings may include
// other doctors' rows; Correlates decides which belong to doctor.
func (p *Planner) Plan(doctor *Doctor, blocks []AvailabilityBlock, bookings []Booking, date time.Time) (*DayPlan, error) {
	own := make([]AvailabilityBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.DoctorID == doctor.ID {
			own = append(own, b)
		}
	}

	generated := p.gen.Generate(doctor.ID, own, date)
	merged, err := p.rec.Reconcile(generated, bookings, doctor, date)
	if err != nil {
		return nil, err
	}
	available, locations := FilterAvailable(merged)

	return &DayPlan{
		DoctorID:  doctor.ID,
		Date:      DateOnly(date),
		Slots:     merged,
		Available: available,
		Locations: locations,
	}, nil
}

// Counts summarises a plan for logging and metrics.
func (dp *DayPlan) Counts() (generated, booked, legacy int) {
	for _, s := range dp.Slots {
		if s.Legacy {
			legacy++
		} else {
			generated++
		}
		if s.Status == SlotBooked {
			booked++
		}
	}
	return generated, booked, legacy
}

package scheduling

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSlotMinutes is the length of a generated appointment slot.
const DefaultSlotMinutes = 30

// Precedence decides how one-off blocks interact with weekly blocks that fall
// on the same calendar date.
type Precedence string

const (
	// PrecedenceSpecificDate drops weekly blocks for a date that has at least
	// one one-off block.
	PrecedenceSpecificDate Precedence = "specific-date"
	// PrecedenceUnion uses every matching block.
	PrecedenceUnion Precedence = "union"
)

// ParsePrecedence accepts the configuration spelling of a Precedence.
func ParsePrecedence(s string) (Precedence, error) {
	switch p := Precedence(strings.ToLower(strings.TrimSpace(s))); p {
	case PrecedenceSpecificDate, PrecedenceUnion:
		return p, nil
	case "":
		return PrecedenceSpecificDate, nil
	default:
		return "", fmt.Errorf("unknown slot date precedence %q", s)
	}
}

// Generator turns availability blocks into fixed-length slots.
type Generator struct {
	slotMinutes int
	precedence  Precedence
}

func NewGenerator(slotMinutes int, precedence Precedence) *Generator {
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}
	if precedence == "" {
		precedence = PrecedenceSpecificDate
	}
	return &Generator{slotMinutes: slotMinutes, precedence: precedence}
}

func (g *Generator) SlotMinutes() int { return g.slotMinutes }

// Select returns the blocks that apply to date, in input order.
func (g *Generator) Select(blocks []AvailabilityBlock, date time.Time) []AvailabilityBlock {
	dayName := date.Weekday().String()

	var oneOff, weekly []AvailabilityBlock
	for _, b := range blocks {
		if !b.IsAvailable {
			continue
		}
		if b.SpecificDate != nil {
			if SameDate(*b.SpecificDate, date) {
				oneOff = append(oneOff, b)
			}
			continue
		}
		if strings.EqualFold(strings.TrimSpace(b.DayOfWeek), dayName) {
			weekly = append(weekly, b)
		}
	}

	if g.precedence == PrecedenceSpecificDate && len(oneOff) > 0 {
		return oneOff
	}
	if len(oneOff) == 0 {
		return weekly
	}

	// Union keeps the caller's ordering across both kinds.
	selected := make([]AvailabilityBlock, 0, len(oneOff)+len(weekly))
	for _, b := range blocks {
		if !b.IsAvailable {
			continue
		}
		if b.SpecificDate != nil && SameDate(*b.SpecificDate, date) {
			selected = append(selected, b)
		} else if b.SpecificDate == nil && strings.EqualFold(strings.TrimSpace(b.DayOfWeek), dayName) {
			selected = append(selected, b)
		}
	}
	return selected
}

// Generate emits the slots of doctorID on date. Each applicable block yields
// one slot per slot length starting at its start time, while the slot start
// is before the block end. Slots are ordered by start time; when blocks
// overlap, the first block to produce a start time keeps it. The dropped
// slot's location is lost with it, so a block whose every start is taken
// by an earlier block contributes nothing to FilterAvailable's locations.
func (g *Generator) Generate(doctorID uuid.UUID, blocks []AvailabilityBlock, date time.Time) []Slot {
	day := DateOnly(date)
	slots := []Slot{}
	for _, b := range g.Select(blocks, date) {
		for cur := b.StartTime; cur < b.EndTime; cur = cur.Add(g.slotMinutes) {
			slots = append(slots, Slot{
				DoctorID:  doctorID,
				Date:      day,
				StartTime: cur,
				EndTime:   cur.Add(g.slotMinutes),
				Location:  b.Location,
				Status:    SlotAvailable,
			})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].StartTime < slots[j].StartTime
	})

	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if n := len(out); n > 0 && out[n-1].StartTime == s.StartTime {
			continue
		}
		out = append(out, s)
	}
	return out
}

package scheduling

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestPlan_ScenarioA(t *testing.T) {
	doc := testDoctor()
	blocks := []AvailabilityBlock{weeklyBlock(doc.ID, "Monday", "09:00 AM", "10:00 AM", "Wakad")}

	plan, err := NewPlanner(30, PrecedenceSpecificDate).Plan(doc, blocks, nil, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := slotStarts(plan.Slots); !equalStrings(got, []string{"09:00 AM", "09:30 AM"}) {
		t.Errorf("slots = %v", got)
	}
	if len(plan.Available) != 2 {
		t.Errorf("available = %d, want 2", len(plan.Available))
	}
	if !equalStrings(plan.Locations, []string{"Wakad"}) {
		t.Errorf("locations = %v", plan.Locations)
	}
	if !plan.Date.Equal(monday) || plan.DoctorID != doc.ID {
		t.Errorf("plan header = %v %v", plan.DoctorID, plan.Date)
	}
}

func TestPlan_ScenarioBAndC(t *testing.T) {
	doc := testDoctor()
	blocks := []AvailabilityBlock{weeklyBlock(doc.ID, "Monday", "09:00 AM", "10:00 AM", "Wakad")}
	bookings := []Booking{
		{ID: "b", Source: SourceLegacy, DoctorID: ptrUUID(doc.ID), Date: monday, TimeRange: "09:30 AM - 10:00 AM", Status: StatusScheduled},
		{ID: "c", Source: SourceLegacy, Department: "Cardiology", Date: monday, TimeRange: "11:00 AM", Status: StatusScheduled},
	}

	plan, err := NewPlanner(30, "").Plan(doc, blocks, bookings, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := slotStarts(plan.Slots); !equalStrings(got, []string{"09:00 AM", "09:30 AM", "11:00 AM"}) {
		t.Errorf("slots = %v", got)
	}
	if got := slotStarts(plan.Available); !equalStrings(got, []string{"09:00 AM"}) {
		t.Errorf("available = %v", got)
	}

	generated, booked, legacy := plan.Counts()
	if generated != 2 || booked != 2 || legacy != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/2/1", generated, booked, legacy)
	}
}

func TestPlan_IgnoresOtherDoctorsBlocks(t *testing.T) {
	doc := testDoctor()
	blocks := []AvailabilityBlock{
		weeklyBlock(uuid.New(), "Monday", "09:00 AM", "10:00 AM", "Elsewhere"),
		weeklyBlock(doc.ID, "Monday", "02:00 PM", "02:30 PM", "Wakad"),
	}
	plan, err := NewPlanner(30, "").Plan(doc, blocks, nil, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := slotStarts(plan.Slots); !equalStrings(got, []string{"02:00 PM"}) {
		t.Errorf("slots = %v", got)
	}
}

func TestPlan_Idempotent(t *testing.T) {
	doc := testDoctor()
	blocks := []AvailabilityBlock{
		weeklyBlock(doc.ID, "Monday", "09:00 AM", "12:00 PM", "Wakad"),
		weeklyBlock(doc.ID, "Monday", "02:00 PM", "04:00 PM", "Koregaon Park"),
	}
	bookings := []Booking{
		{ID: "1", DoctorID: ptrUUID(doc.ID), Date: monday, TimeRange: "10:00 AM - 10:30 AM", Status: StatusConfirmed},
		{ID: "2", Department: "Cardiology", Date: monday, TimeRange: "06:00 PM", Status: StatusScheduled},
		{ID: "3", DoctorID: ptrUUID(doc.ID), Date: monday, TimeRange: "02:30 PM", Status: StatusCancelled},
	}
	p := NewPlanner(30, "")

	first, err := p.Plan(doc, blocks, bookings, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.Plan(doc, blocks, bookings, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("plans differ:\n%s\n%s", a, b)
	}
}

func TestPlan_MalformedBooking(t *testing.T) {
	doc := testDoctor()
	bookings := []Booking{{ID: "x", DoctorID: ptrUUID(doc.ID), Date: monday, TimeRange: "25:00", Status: StatusScheduled}}
	if _, err := NewPlanner(30, "").Plan(doc, nil, bookings, monday); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("expected ErrInvalidTime, got %v", err)
	}
}

func TestPlanner_SlotMinutesDefault(t *testing.T) {
	if got := NewPlanner(0, "").SlotMinutes(); got != DefaultSlotMinutes {
		t.Errorf("SlotMinutes = %d, want %d", got, DefaultSlotMinutes)
	}
}

func TestPlan_OverlappedBlockLocation(t *testing.T) {
	doc := testDoctor()
	blocks := []AvailabilityBlock{
		weeklyBlock(doc.ID, "Monday", "09:00 AM", "10:00 AM", "Wakad"),
		weeklyBlock(doc.ID, "Monday", "09:00 AM", "10:00 AM", "Aundh"),
		weeklyBlock(doc.ID, "Monday", "09:30 AM", "10:30 AM", "Baner"),
	}

	plan, err := NewPlanner(30, PrecedenceSpecificDate).Plan(doc, blocks, nil, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := slotStarts(plan.Slots); !equalStrings(got, []string{"09:00 AM", "09:30 AM", "10:00 AM"}) {
		t.Errorf("slots = %v", got)
	}
	// Aundh's starts are all taken by Wakad; Baner keeps only 10:00.
	if !equalStrings(plan.Locations, []string{"Wakad", "Baner"}) {
		t.Errorf("locations = %v, want [Wakad Baner]", plan.Locations)
	}
}

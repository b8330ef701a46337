package scheduling

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrUUID(u uuid.UUID) *uuid.UUID { return &u }

// monday is a Monday in UTC.
var monday = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// TimeOfDay
// ---------------------------------------------------------------------------

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want TimeOfDay
	}{
		{"12:00 AM", 0},
		{"12:30 AM", 30},
		{"09:00 AM", 9 * 60},
		{"9:30am", 9*60 + 30},
		{"12:00 PM", 12 * 60},
		{"01:15 PM", 13*60 + 15},
		{"11:59 PM", 23*60 + 59},
		{"14:30", 14*60 + 30},
		{"00:00", 0},
		{"  10:00 AM  ", 10 * 60},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTimeOfDay_Invalid(t *testing.T) {
	for _, in := range []string{"", "9", "13:00 PM", "00:30 AM", "24:00", "10:60", "10:5", "ab:cd", "10:00 XM",
		"+9:30 AM", "09:+5 AM", "-1:30", "1:-5", "+09:30", " 9 :30"} {
		if _, err := ParseTimeOfDay(in); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("ParseTimeOfDay(%q): expected ErrInvalidTime, got %v", in, err)
		}
	}
}

func TestTimeOfDay_String(t *testing.T) {
	tests := []struct {
		in   TimeOfDay
		want string
	}{
		{0, "12:00 AM"},
		{NewTimeOfDay(9, 0), "09:00 AM"},
		{NewTimeOfDay(12, 0), "12:00 PM"},
		{NewTimeOfDay(17, 30), "05:30 PM"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := NewTimeOfDay(17, 5).Clock24(); got != "17:05" {
		t.Errorf("Clock24 = %q, want 17:05", got)
	}
}

func TestTimeOfDay_RoundTripString(t *testing.T) {
	for m := 0; m < minutesPerDay; m += 15 {
		tod := TimeOfDay(m)
		back, err := ParseTimeOfDay(tod.String())
		if err != nil {
			t.Fatalf("parse %q: %v", tod.String(), err)
		}
		if back != tod {
			t.Fatalf("round trip %d -> %q -> %d", tod, tod.String(), back)
		}
	}
}

func TestTimeOfDay_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		At TimeOfDay `json:"at"`
	}{NewTimeOfDay(9, 30)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"at":"09:30 AM"}` {
		t.Errorf("got %s", data)
	}

	var v struct {
		At TimeOfDay `json:"at"`
	}
	if err := json.Unmarshal([]byte(`{"at":"02:00 PM"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.At != NewTimeOfDay(14, 0) {
		t.Errorf("At = %d, want %d", v.At, NewTimeOfDay(14, 0))
	}
	if err := json.Unmarshal([]byte(`{"at":"noon"}`), &v); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestTimeOfDay_On(t *testing.T) {
	got := NewTimeOfDay(10, 15).On(monday)
	want := time.Date(2024, time.January, 15, 10, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("On = %v, want %v", got, want)
	}
}

func TestTimeOfDay_Valid(t *testing.T) {
	if !NewTimeOfDay(23, 59).Valid() {
		t.Error("23:59 should be valid")
	}
	if TimeOfDay(minutesPerDay).Valid() {
		t.Error("24:00 should not be valid")
	}
	if TimeOfDay(-1).Valid() {
		t.Error("negative should not be valid")
	}
}

func TestSameDate(t *testing.T) {
	a := time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC)
	if !SameDate(a, b) {
		t.Error("expected same date")
	}
	if SameDate(a, a.AddDate(0, 0, 1)) {
		t.Error("expected different dates")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(monday) {
		t.Errorf("ParseDate = %v, want %v", d, monday)
	}
	if _, err := ParseDate("15/01/2024"); err == nil {
		t.Error("expected error for non ISO date")
	}
}

// ---------------------------------------------------------------------------
// Booking
// ---------------------------------------------------------------------------

func TestBooking_StartEnd(t *testing.T) {
	b := Booking{ID: "b1", TimeRange: "09:30 AM - 10:00 AM"}
	start, err := b.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start != NewTimeOfDay(9, 30) {
		t.Errorf("Start = %v", start)
	}
	end, ok, err := b.End()
	if err != nil || !ok {
		t.Fatalf("End: ok=%v err=%v", ok, err)
	}
	if end != NewTimeOfDay(10, 0) {
		t.Errorf("End = %v", end)
	}
}

func TestBooking_BareStart(t *testing.T) {
	b := Booking{ID: "b2", TimeRange: "11:00 AM"}
	start, err := b.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start != NewTimeOfDay(11, 0) {
		t.Errorf("Start = %v", start)
	}
	if _, ok, err := b.End(); ok || err != nil {
		t.Errorf("End: expected no end, got ok=%v err=%v", ok, err)
	}
}

func TestBooking_MalformedTime(t *testing.T) {
	b := Booking{ID: "b3", TimeRange: "sometime"}
	if _, err := b.Start(); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("expected ErrInvalidTime, got %v", err)
	}
	b.TimeRange = "09:00 AM - later"
	if _, _, err := b.End(); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("expected ErrInvalidTime from End, got %v", err)
	}
}

func TestBooking_Cancelled(t *testing.T) {
	for _, s := range []string{"cancelled", "Cancelled", " CANCELLED "} {
		b := Booking{Status: s}
		if !b.Cancelled() {
			t.Errorf("status %q should be cancelled", s)
		}
	}
	for _, s := range []string{StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusCompleted, "no-show", ""} {
		b := Booking{Status: s}
		if b.Cancelled() {
			t.Errorf("status %q should not be cancelled", s)
		}
	}
}

func TestSlot_Label(t *testing.T) {
	s := Slot{StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(9, 30)}
	if got := s.Label(); got != "09:00 AM - 09:30 AM" {
		t.Errorf("Label = %q", got)
	}
}

func TestAvailabilityBlock_Recurring(t *testing.T) {
	weekly := AvailabilityBlock{DayOfWeek: "Monday"}
	if !weekly.Recurring() {
		t.Error("weekly block should be recurring")
	}
	oneOff := AvailabilityBlock{SpecificDate: ptrTime(monday)}
	if oneOff.Recurring() {
		t.Error("dated block should not be recurring")
	}
}

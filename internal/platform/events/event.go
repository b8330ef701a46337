// Package events relays slot change notifications from the booking system to
// websocket subscribers and drops stale cached day plans on the way.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	SlotsGenerated Type = "slots.generated"
	SlotBooked     Type = "slot.booked"
	SlotCancelled  Type = "slot.cancelled"
)

var (
	ErrMalformed   = errors.New("malformed slot event")
	ErrUnknownType = errors.New("unknown slot event type")
)

// SlotEvent is the payload published by the booking system. Tenant is the
// bare tenant id, without the schema prefix. A slots.generated event without
// a date covers every date of the doctor's schedule.
type SlotEvent struct {
	Type      Type      `json:"type"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	SlotID    string    `json:"slot_id,omitempty"`
	BookingID string    `json:"booking_id,omitempty"`
	Tenant    string    `json:"tenant,omitempty"`
}

func (t Type) Known() bool {
	switch t {
	case SlotsGenerated, SlotBooked, SlotCancelled:
		return true
	}
	return false
}

// AllDates reports whether the event covers the doctor's whole schedule.
func (e SlotEvent) AllDates() bool { return e.Date == "" }

// Day parses Date. Decode has already checked it.
func (e SlotEvent) Day() time.Time {
	d, _ := time.Parse(time.DateOnly, e.Date)
	return d
}

// Decode parses and checks a payload.
func Decode(data []byte) (SlotEvent, error) {
	var ev SlotEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return SlotEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !ev.Type.Known() {
		return SlotEvent{}, fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
	}
	if ev.DoctorID == uuid.Nil {
		return SlotEvent{}, fmt.Errorf("%w: doctor_id is required", ErrMalformed)
	}
	if ev.Date == "" && ev.Type == SlotsGenerated {
		return ev, nil
	}
	if _, err := time.Parse(time.DateOnly, ev.Date); err != nil {
		return SlotEvent{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrMalformed, ev.Date)
	}
	return ev, nil
}

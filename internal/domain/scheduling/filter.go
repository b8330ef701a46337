package scheduling

import "strings"

// FilterAvailable returns the available slots in input order and the distinct
// non-blank locations among them, in first-seen order.
func FilterAvailable(slots []Slot) ([]Slot, []string) {
	available := []Slot{}
	locations := []string{}
	seen := make(map[string]struct{})

	for _, s := range slots {
		if s.Status != SlotAvailable {
			continue
		}
		available = append(available, s)

		loc := strings.TrimSpace(s.Location)
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		locations = append(locations, loc)
	}
	return available, locations
}

// Package observation holds the canonical sighting model and the filters applied to a batch
// before notification.
package observation

import "strconv"

// ChecklistBaseURL is the public eBird checklist page prefix
const ChecklistBaseURL = "https://ebird.org/checklist/"

// Observation is a single reported sighting of a species at a location.
type Observation struct {
	ID              string // eBird obsId, unique per sighting
	SpeciesCode     string
	CommonName      string
	ScientificName  string
	Count           int  // individuals reported, zero when PresenceOnly
	PresenceOnly    bool // reported as "X", present but not counted
	LocationID      string
	LocationName    string
	Latitude        float64
	Longitude       float64
	LocationPrivate bool
	Hotspot         bool
	Observer        string // observer display name
	ChecklistID     string // eBird subId
	ObservedAt      Timestamp
	Reviewed        bool
	Valid           bool
	HasComments     bool
	Comments        string
	HasMedia        bool
	CountryCode     string
	SubnationalCode string
}

// SameAs reports whether both values describe the same sighting, identity is the ID alone.
func (o *Observation) SameAs(other *Observation) bool {
	return o.ID == other.ID
}

// CountLabel renders the count, "X" for presence-only reports.
func (o *Observation) CountLabel() string {
	if o.PresenceOnly {
		return "X"
	}
	return strconv.Itoa(o.Count)
}

// ChecklistURL links to the checklist the sighting was reported on.
func (o *Observation) ChecklistURL() string {
	return ChecklistBaseURL + o.ChecklistID
}

// Unique collapses observations sharing an ID to the first one seen, keeping order.
func Unique(obs []Observation) []Observation {
	seen := make(map[string]struct{}, len(obs))
	out := make([]Observation, 0, len(obs))
	for i := range obs {
		if _, dup := seen[obs[i].ID]; dup {
			continue
		}
		seen[obs[i].ID] = struct{}{}
		out = append(out, obs[i])
	}
	return out
}

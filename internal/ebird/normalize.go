package ebird

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tphakala/birdnotifier/internal/observation"
)

// decodeObservations parses a recent observations response. Any record with a
// missing required field or a wrong type rejects the whole response.
func decodeObservations(body []byte) ([]observation.Observation, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse observations: %w", err)
	}

	obs := make([]observation.Observation, 0, len(records))
	for i, rec := range records {
		var raw rawObservation
		if err := json.Unmarshal(rec, &raw); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		o, err := raw.normalize()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// missingField reports the first required key absent from the record
func (r *rawObservation) missingField() string {
	required := []struct {
		name    string
		present bool
	}{
		{"obsId", r.ObsID != nil},
		{"speciesCode", r.SpeciesCode != nil},
		{"comName", r.ComName != nil},
		{"sciName", r.SciName != nil},
		{"locId", r.LocID != nil},
		{"locName", r.LocName != nil},
		{"obsDt", r.ObsDt != nil},
		{"howMany", r.HowMany != nil || (r.PresenceNoted != nil && *r.PresenceNoted)},
		{"lat", r.Lat != nil},
		{"lng", r.Lng != nil},
		{"obsValid", r.ObsValid != nil},
		{"obsReviewed", r.ObsReviewed != nil},
		{"locationPrivate", r.LocationPrivate != nil},
		{"subId", r.SubID != nil},
		{"userDisplayName", r.UserDisplayName != nil},
		{"hasComments", r.HasComments != nil},
		{"comments", r.HasComments == nil || !*r.HasComments || r.Comments != nil},
		{"hasRichMedia", r.HasRichMedia != nil},
	}
	for _, f := range required {
		if !f.present {
			return f.name
		}
	}
	return ""
}

// normalize converts a validated raw record into the canonical model
func (r *rawObservation) normalize() (observation.Observation, error) {
	if name := r.missingField(); name != "" {
		return observation.Observation{}, fmt.Errorf("missing required field %q", name)
	}

	// The ID is written verbatim as the first field of a ledger line
	if *r.ObsID == "" || strings.ContainsAny(*r.ObsID, ",\r\n") {
		return observation.Observation{}, fmt.Errorf("field obsId: %q is not a valid observation id", *r.ObsID)
	}

	observedAt, err := observation.DecodeTimestamp(*r.ObsDt, "")
	if err != nil {
		return observation.Observation{}, fmt.Errorf("field obsDt: %w", err)
	}

	o := observation.Observation{
		ID:              *r.ObsID,
		SpeciesCode:     *r.SpeciesCode,
		CommonName:      *r.ComName,
		ScientificName:  *r.SciName,
		LocationID:      *r.LocID,
		LocationName:    *r.LocName,
		Latitude:        *r.Lat,
		Longitude:       *r.Lng,
		LocationPrivate: *r.LocationPrivate,
		Hotspot:         r.IsHotspot,
		Observer:        *r.UserDisplayName,
		ChecklistID:     *r.SubID,
		ObservedAt:      observedAt,
		Reviewed:        *r.ObsReviewed,
		Valid:           *r.ObsValid,
		HasComments:     *r.HasComments,
		HasMedia:        *r.HasRichMedia,
		CountryCode:     r.CountryCode,
		SubnationalCode: r.Subnational1Code,
	}

	if r.HowMany != nil {
		o.Count = *r.HowMany
	} else {
		o.PresenceOnly = true
	}
	if o.HasComments {
		o.Comments = *r.Comments
	}

	return o, nil
}

// Package ebird provides a client for the eBird API v2 recent notable observations
// and taxonomy endpoints
package ebird

import (
	"net/http"
	"time"
)

// TaxonomyEntry represents a single entry from the eBird taxonomy
type TaxonomyEntry struct {
	ScientificName string   `json:"sciName"`
	CommonName     string   `json:"comName"`
	SpeciesCode    string   `json:"speciesCode"`
	Category       string   `json:"category"`      // species, spuh, slash, hybrid, etc.
	TaxonOrder     float64  `json:"taxonOrder"`    // For sorting in taxonomic order
	BandingCodes   []string `json:"bandingCodes"`  // Array of banding codes
	Order          string   `json:"order"`         // Taxonomic order
	FamilyComName  string   `json:"familyComName"` // Common family name
	FamilySciName  string   `json:"familySciName"` // Scientific family name
	ReportAs       string   `json:"reportAs,omitempty"`
}

// Config holds configuration for the eBird client
type Config struct {
	APIKey     string        `json:"api_key"`
	BaseURL    string        `json:"base_url"`
	Timeout    time.Duration `json:"timeout"`
	CacheTTL   time.Duration `json:"cache_ttl"` // taxonomy cache lifetime
	HTTPClient *http.Client  `json:"-"`         // optional, replaces the default client
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://api.ebird.org/v2",
		Timeout:  30 * time.Second,
		CacheTTL: 24 * time.Hour, // Taxonomy rarely changes
	}
}

// APIError is one entry of an eBird error payload
type APIError struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Title  string `json:"title"`
}

// errorPayload is the body eBird returns for rejected requests. Older endpoints
// answer with a single title/status/detail object instead of an errors array.
type errorPayload struct {
	Errors []APIError `json:"errors"`
	Title  string     `json:"title"`
	Status int        `json:"status"`
	Detail string     `json:"detail"`
}

// message returns the most specific description of the payload, empty when it
// carries no error at all
func (p *errorPayload) message() string {
	if len(p.Errors) > 0 {
		e := p.Errors[0]
		switch {
		case e.Title != "" && e.Code != "":
			return e.Title + " (" + e.Code + ")"
		case e.Title != "":
			return e.Title
		default:
			return e.Code
		}
	}
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// rawObservation mirrors one record of /data/obs/{region}/recent/notable?detail=full.
// Pointer fields distinguish absent keys from zero values.
type rawObservation struct {
	SpeciesCode     *string  `json:"speciesCode"`
	ComName         *string  `json:"comName"`
	SciName         *string  `json:"sciName"`
	LocID           *string  `json:"locId"`
	LocName         *string  `json:"locName"`
	ObsDt           *string  `json:"obsDt"`
	HowMany         *int     `json:"howMany"`
	PresenceNoted   *bool    `json:"presenceNoted"`
	Lat             *float64 `json:"lat"`
	Lng             *float64 `json:"lng"`
	ObsValid        *bool    `json:"obsValid"`
	ObsReviewed     *bool    `json:"obsReviewed"`
	LocationPrivate *bool    `json:"locationPrivate"`
	SubID           *string  `json:"subId"`
	UserDisplayName *string  `json:"userDisplayName"`
	ObsID           *string  `json:"obsId"`
	HasComments     *bool    `json:"hasComments"`
	Comments        *string  `json:"comments"`
	HasRichMedia    *bool    `json:"hasRichMedia"`

	// Optional fields
	CountryCode      string `json:"countryCode"`
	Subnational1Code string `json:"subnational1Code"`
	IsHotspot        bool   `json:"isHotspot"`
}

// Metrics represents eBird client performance metrics
type Metrics struct {
	APICalls      int64         `json:"api_calls"`
	CacheHits     int64         `json:"cache_hits"`
	CacheMisses   int64         `json:"cache_misses"`
	APIErrors     int64         `json:"api_errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

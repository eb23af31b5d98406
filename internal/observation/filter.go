package observation

import "slices"

// Seen answers whether an observation ID was already notified.
type Seen interface {
	Contains(id string) bool
}

// ExcludeBySpecies drops observations whose common name exactly matches an entry of
// exclude. Matching is case-sensitive and order is preserved.
func ExcludeBySpecies(obs []Observation, exclude []string) []Observation {
	if len(exclude) == 0 {
		return slices.Clone(obs)
	}
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}
	return slices.DeleteFunc(slices.Clone(obs), func(o Observation) bool {
		_, drop := excluded[o.CommonName]
		return drop
	})
}

// ExcludeAlreadyNotified drops observations whose ID seen contains, preserving order.
func ExcludeAlreadyNotified(obs []Observation, seen Seen) []Observation {
	if seen == nil {
		return slices.Clone(obs)
	}
	return slices.DeleteFunc(slices.Clone(obs), func(o Observation) bool {
		return seen.Contains(o.ID)
	})
}

// Filter applies the species exclusion first, then the already-notified exclusion.
func Filter(obs []Observation, exclude []string, seen Seen) []Observation {
	return ExcludeAlreadyNotified(ExcludeBySpecies(obs, exclude), seen)
}

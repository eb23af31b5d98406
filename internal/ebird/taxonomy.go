package ebird

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/patrickmn/go-cache"
	"golang.org/x/text/cases"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
)

// GetTaxonomy retrieves the complete eBird taxonomy, optionally localized.
// Results are cached for the configured TTL.
func (c *Client) GetTaxonomy(ctx context.Context, locale string) ([]TaxonomyEntry, error) {
	cacheKey := fmt.Sprintf("taxonomy:%s", locale)

	// Check cache first
	if cached, found := c.cache.Get(cacheKey); found {
		if taxonomy, ok := cached.([]TaxonomyEntry); ok {
			c.metrics.mu.Lock()
			c.metrics.cacheHits++
			c.metrics.mu.Unlock()

			c.log.Debug("eBird taxonomy cache hit",
				logger.String("cache_key", cacheKey),
				logger.Int("entries", len(taxonomy)))
			return taxonomy, nil
		}
	}

	// Cache miss
	c.metrics.mu.Lock()
	c.metrics.cacheMisses++
	c.metrics.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	// eBird API defaults to CSV, we need to specify fmt=json
	endpoint := fmt.Sprintf("%s/ref/taxonomy/ebird?fmt=json", c.config.BaseURL)
	if locale != "" {
		endpoint += "&locale=" + url.QueryEscape(locale)
	}

	body, err := c.doRequest(reqCtx, endpoint, errors.CategoryNetwork)
	if err != nil {
		return nil, err
	}

	var taxonomy []TaxonomyEntry
	if err := json.Unmarshal(body, &taxonomy); err != nil {
		return nil, errors.Newf("failed to parse taxonomy: %w", err).
			Category(errors.CategoryFileParsing).
			Context("response_size", len(body)).
			Component("ebird").
			Build()
	}

	c.cache.Set(cacheKey, taxonomy, cache.DefaultExpiration)

	c.log.Debug("eBird taxonomy cached",
		logger.String("cache_key", cacheKey),
		logger.Int("entries", len(taxonomy)),
		logger.String("locale", locale))

	return taxonomy, nil
}

// FindSpecies returns taxonomy entries whose common or scientific name contains query,
// compared case-folded. An empty query matches nothing.
func (c *Client) FindSpecies(ctx context.Context, query string) ([]TaxonomyEntry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	taxonomy, err := c.GetTaxonomy(ctx, "")
	if err != nil {
		return nil, err
	}
	return matchSpecies(taxonomy, query), nil
}

// UnknownCommonNames returns the names that match no taxonomy common name exactly.
// Exclusion entries are compared case-sensitively, so a wrong capitalization is reported.
func (c *Client) UnknownCommonNames(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	taxonomy, err := c.GetTaxonomy(ctx, "")
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(taxonomy))
	for i := range taxonomy {
		known[taxonomy[i].CommonName] = struct{}{}
	}

	var unknown []string
	for _, name := range names {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown, nil
}

// ClearCache clears all cached data
func (c *Client) ClearCache() {
	c.cache.Flush()
	c.log.Debug("eBird cache cleared")
}

// matchSpecies filters taxonomy by a case-folded substring of common or scientific name
func matchSpecies(taxonomy []TaxonomyEntry, query string) []TaxonomyEntry {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))

	var matches []TaxonomyEntry
	for i := range taxonomy {
		if strings.Contains(fold.String(taxonomy[i].CommonName), q) ||
			strings.Contains(fold.String(taxonomy[i].ScientificName), q) {
			matches = append(matches, taxonomy[i])
		}
	}
	return matches
}

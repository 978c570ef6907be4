// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package cache memoizes identifier resolutions and holdings decisions for
// the duration of one batch run. Failed attempts are cached exactly like
// successes: the point is to never repeat a network call already made,
// not to retry until something positive shows up.
package cache

import (
	"strings"
	"sync"

	"github.com/dasanlab/bookcheck/pkg/types"
)

// Stats is a snapshot of cache counters. Hit and miss counters only grow
// within a run; Clear resets them.
type Stats struct {
	ISBNHits        int `json:"isbn_hits" yaml:"isbn_hits"`
	ISBNMisses      int `json:"isbn_misses" yaml:"isbn_misses"`
	HoldingsHits    int `json:"holdings_hits" yaml:"holdings_hits"`
	HoldingsMisses  int `json:"holdings_misses" yaml:"holdings_misses"`
	ISBNEntries     int `json:"isbn_entries" yaml:"isbn_entries"`
	HoldingsEntries int `json:"holdings_entries" yaml:"holdings_entries"`
}

// ResultCache holds both memo tables. One orchestrator owns it for a run;
// the mutex makes it safe for the job server's parallel direct-search
// handlers as well.
type ResultCache struct {
	mu       sync.Mutex
	isbn     map[string]types.Resolution
	holdings map[string]types.Decision
	stats    Stats
}

// New returns an empty ResultCache.
func New() *ResultCache {
	return &ResultCache{
		isbn:     make(map[string]types.Resolution),
		holdings: make(map[string]types.Decision),
	}
}

// GetISBN looks up a cached resolution for the normalized (title, author)
// key. The boolean distinguishes a miss from a cached negative result.
func (c *ResultCache) GetISBN(title, author string) (types.Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.isbn[isbnKey(title, author)]
	if ok {
		c.stats.ISBNHits++
	} else {
		c.stats.ISBNMisses++
	}
	return res, ok
}

// PutISBN stores a resolution, success or failure.
func (c *ResultCache) PutISBN(title, author string, res types.Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isbn[isbnKey(title, author)] = res
}

// GetHoldings looks up a cached decision for the normalized (school, isbn)
// key.
func (c *ResultCache) GetHoldings(school, isbn string) (types.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dec, ok := c.holdings[holdingsKey(school, isbn)]
	if ok {
		c.stats.HoldingsHits++
	} else {
		c.stats.HoldingsMisses++
	}
	return dec, ok
}

// PutHoldings stores a decision, success or failure.
func (c *ResultCache) PutHoldings(school, isbn string, dec types.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdings[holdingsKey(school, isbn)] = dec
}

// Stats returns a snapshot of the counters and table sizes.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.ISBNEntries = len(c.isbn)
	s.HoldingsEntries = len(c.holdings)
	return s
}

// Clear empties both tables and resets the counters.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isbn = make(map[string]types.Resolution)
	c.holdings = make(map[string]types.Decision)
	c.stats = Stats{}
}

// normalize lowercases and strips all whitespace so queries that differ
// only in spacing or case collide to the same entry. Noisy spreadsheet
// input depends on this.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

func isbnKey(title, author string) string {
	return normalize(title) + "|" + normalize(author)
}

func holdingsKey(school, isbn string) string {
	return normalize(school) + "|" + isbn
}

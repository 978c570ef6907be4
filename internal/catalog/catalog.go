// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package catalog resolves a free-text title/author pair to a canonical
// ISBN-13 by querying the Aladin book search API and picking the best
// candidate under a weighted fuzzy-similarity threshold.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dasanlab/bookcheck/internal/httputil"
	"github.com/dasanlab/bookcheck/internal/similarity"
	"github.com/dasanlab/bookcheck/pkg/types"
)

// searchBase is the Aladin ItemSearch endpoint. Declared as a var so tests
// can substitute an httptest server.
var searchBase = "https://www.aladin.co.kr/ttb/api/ItemSearch.aspx"

// Client queries the catalog API.
type Client struct {
	httpClient *http.Client
	cfg        types.CatalogConfig
	retry      httputil.Policy
	log        *zap.Logger
}

// NewClient builds a catalog client. A nil logger is replaced with a nop
// logger; zero config fields fall back to their defaults.
func NewClient(httpClient *http.Client, cfg types.CatalogConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	retry := httputil.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	return &Client{httpClient: httpClient, cfg: cfg, retry: retry, log: log}
}

// ResolveISBN maps (title, author) to an ISBN-13. Every outcome except
// retry exhaustion is expressed in the Resolution value; the error return
// is non-nil only when the transport layer failed after all attempts, and
// even then the Resolution describes the failure so it can be cached.
func (c *Client) ResolveISBN(ctx context.Context, title, author string, threshold float64) (types.Resolution, error) {
	if strings.TrimSpace(title) == "" {
		return types.Resolution{Kind: types.KindEmptyInput, Reason: "empty title"}, nil
	}
	if threshold <= 0 {
		threshold = c.cfg.Threshold
	}
	if threshold <= 0 {
		threshold = 0.6
	}

	items, err := c.search(ctx, title)
	if err != nil {
		c.log.Warn("catalog search failed", zap.String("title", title), zap.Error(err))
		return types.Resolution{Kind: types.KindTransient, Reason: err.Error()}, err
	}
	if len(items) == 0 {
		c.log.Debug("catalog returned no candidates", zap.String("title", title))
		return types.Resolution{Kind: types.KindNoResults, Reason: "no results"}, nil
	}

	best, bestScore := pickBest(title, author, items)

	if bestScore < threshold {
		return types.Resolution{
			Kind:   types.KindLowSimilarity,
			Reason: fmt.Sprintf("below threshold (%.2f)", bestScore),
		}, nil
	}

	isbn := strings.TrimSpace(best.ISBN13)
	if isbn == "" {
		c.log.Warn("winning candidate lacks isbn13", zap.String("title", title))
		return types.Resolution{Kind: types.KindMissingIdentifier, Reason: "identifier missing"}, nil
	}

	c.log.Info("isbn resolved",
		zap.String("title", title),
		zap.String("isbn13", isbn),
		zap.Float64("score", bestScore))
	return types.Resolution{ISBN13: isbn}, nil
}

// pickBest scores every candidate and keeps the strictly highest composite
// score. Ties keep the first-seen candidate so reruns with the same input
// order are reproducible.
func pickBest(title, author string, items []types.Candidate) (types.Candidate, float64) {
	var best types.Candidate
	bestScore := -1.0
	for _, it := range items {
		score := similarity.Composite(title, author, it.Title, it.Author)
		if score > bestScore {
			bestScore = score
			best = it
		}
	}
	return best, bestScore
}

// search issues one ItemSearch request and decodes the candidate list.
// Transport errors and non-2xx statuses are retried under the policy.
func (c *Client) search(ctx context.Context, title string) ([]types.Candidate, error) {
	params := url.Values{
		"TTBKey":       {c.cfg.TTBKey},
		"Query":        {title},
		"QueryType":    {"Title"},
		"MaxResults":   {fmt.Sprintf("%d", c.cfg.MaxResults)},
		"start":        {"1"},
		"SearchTarget": {"Book"},
		"output":       {"JS"},
		"Version":      {"20131101"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.retry.Do(ctx, c.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("catalog API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog API returned HTTP %d", resp.StatusCode)
	}

	var ar aladinResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("parsing catalog response: %w", err)
	}

	items := make([]types.Candidate, 0, len(ar.Item))
	for _, it := range ar.Item {
		items = append(items, types.Candidate{
			Title:  strings.TrimSpace(it.Title),
			Author: strings.TrimSpace(it.Author),
			ISBN13: strings.TrimSpace(it.ISBN13),
		})
	}
	return items, nil
}

// Aladin API JSON structures. Absence of the item list means zero candidates.
type aladinResponse struct {
	Item []aladinItem `json:"item"`
}

type aladinItem struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN13 string `json:"isbn13"`
}

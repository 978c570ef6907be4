// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package holdings queries the Read365 library-holdings search across
// regional partitions, aggregates paginated results, and decides whether
// a target school holds a given ISBN.
package holdings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dasanlab/bookcheck/internal/httputil"
	"github.com/dasanlab/bookcheck/pkg/types"
)

// searchBase is the Read365 search endpoint. Declared as a var so tests
// can substitute an httptest server.
var searchBase = "https://read365.edunet.net/alpasq/api/search"

// Client queries the holdings API.
type Client struct {
	httpClient *http.Client
	cfg        types.HoldingsConfig
	retry      httputil.Policy
	log        *zap.Logger
}

// NewClient builds a holdings client. Zero config fields fall back to
// their defaults: page size 100, page delay 100ms, sequential partitions,
// 3 attempts per page request.
func NewClient(httpClient *http.Client, cfg types.HoldingsConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 100 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	retry := httputil.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	return &Client{httpClient: httpClient, cfg: cfg, retry: retry, log: log}
}

// Page is one page of holdings search results.
type Page struct {
	TotalCount int
	TotalPages int
	Records    []types.HoldingRecord
}

// SearchPage issues one paginated search request scoped to a partition.
func (c *Client) SearchPage(ctx context.Context, isbn, partition string, page int) (Page, error) {
	payload := map[string]any{
		"searchKeyword": isbn,
		"coverYn":       "Y",
		"facet":         "Y",
	}
	if partition != "" {
		payload["provCode"] = partition
	}
	if page > 1 {
		payload["page"] = page
	}
	if c.cfg.PageSize != 100 {
		payload["rows"] = c.cfg.PageSize
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Page{}, fmt.Errorf("encoding search payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchBase, bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.retry.Do(ctx, c.httpClient, req)
	if err != nil {
		return Page{}, fmt.Errorf("holdings API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("holdings API returned HTTP %d", resp.StatusCode)
	}

	var rr read365Response
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return Page{}, fmt.Errorf("parsing holdings response: %w", err)
	}
	if rr.Status != "OK" || rr.Data == nil {
		return Page{}, nil
	}

	p := Page{
		TotalCount: rr.Data.AllTotalCount,
		TotalPages: rr.Data.TotalPage,
		Records:    make([]types.HoldingRecord, 0, len(rr.Data.BookList)),
	}
	for _, b := range rr.Data.BookList {
		p.Records = append(p.Records, types.HoldingRecord{SchoolName: b.SchoolName, Partition: partition})
	}
	return p, nil
}

// SearchAllPages walks every page of one partition, pausing between page
// requests. It stops at the reported total-page count or at the first
// empty page, whichever comes first, so a misreported page count cannot
// loop forever.
func (c *Client) SearchAllPages(ctx context.Context, isbn, partition string) ([]types.HoldingRecord, error) {
	var all []types.HoldingRecord
	for page := 1; ; page++ {
		if page > 1 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(c.cfg.PageDelay):
			}
		}

		p, err := c.SearchPage(ctx, isbn, partition, page)
		if err != nil {
			return all, err
		}
		if len(p.Records) == 0 {
			break
		}
		all = append(all, p.Records...)
		if page >= p.TotalPages {
			break
		}
	}
	return all, nil
}

// Resolve queries every partition in order, unions the returned records,
// and decides whether the target school holds the ISBN. A failing
// partition is logged and contributes zero records; only the case where
// no partition could be queried at all surfaces as a systemic failure.
func (c *Client) Resolve(ctx context.Context, isbn, school string, partitions []string) types.Decision {
	partitions = Dedup(partitions)
	if len(partitions) == 0 {
		partitions = AllPartitions()
	}

	perPartition := make([][]types.HoldingRecord, len(partitions))
	errs := make([]error, len(partitions))

	if c.cfg.Concurrency > 1 {
		c.fanOut(ctx, isbn, partitions, perPartition, errs)
	} else {
		for i, p := range partitions {
			perPartition[i], errs[i] = c.SearchAllPages(ctx, isbn, p)
		}
	}

	var all []types.HoldingRecord
	failed := 0
	for i, p := range partitions {
		if errs[i] != nil {
			failed++
			c.log.Warn("partition query failed",
				zap.String("isbn", isbn),
				zap.String("partition", p),
				zap.Error(errs[i]))
			continue
		}
		all = append(all, perPartition[i]...)
	}

	if failed == len(partitions) {
		return types.Decision{
			Kind:   types.KindSystemic,
			Reason: fmt.Sprintf("all %d partitions failed", len(partitions)),
		}
	}

	return decide(isbn, school, all, c.log)
}

// fanOut queries partitions concurrently with a bounded worker count.
// Per-partition page pacing still applies inside each worker.
func (c *Client) fanOut(ctx context.Context, isbn string, partitions []string, results [][]types.HoldingRecord, errs []error) {
	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, p := range partitions {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = c.SearchAllPages(ctx, isbn, p)
		}(i, p)
	}
	wg.Wait()
}

// decide merges the unioned records into an existence decision for the
// target school. Matching is substring containment over normalized names
// because holder names carry suffixes the input spreadsheet omits.
func decide(isbn, school string, records []types.HoldingRecord, log *zap.Logger) types.Decision {
	target := normalizeName(school)

	var dec types.Decision
	for _, r := range records {
		if target != "" && strings.Contains(normalizeName(r.SchoolName), target) {
			dec.MatchCount++
			if dec.MatchedSchool == "" {
				dec.MatchedSchool = r.SchoolName
			}
		}
	}
	dec.Exists = dec.MatchCount > 0

	if !dec.Exists {
		if len(records) == 0 {
			dec.Reason = "no holdings found in any partition"
		} else {
			dec.Reason = fmt.Sprintf("%d copies held elsewhere, none at %s", len(records), school)
		}
	}

	log.Debug("holdings decided",
		zap.String("isbn", isbn),
		zap.String("school", school),
		zap.Int("records", len(records)),
		zap.Int("matches", dec.MatchCount))
	return dec
}

// normalizeName lowercases and strips all whitespace.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

// Read365 API JSON structures.
type read365Response struct {
	Status string       `json:"status"`
	Data   *read365Data `json:"data"`
}

type read365Data struct {
	AllTotalCount int           `json:"allTotalCount"`
	TotalPage     int           `json:"totalPage"`
	BookList      []read365Book `json:"bookList"`
}

type read365Book struct {
	SchoolName string `json:"schoolName"`
}

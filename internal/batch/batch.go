// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package batch drives input rows through identifier resolution and
// holdings aggregation, consulting the result cache at each stage. Every
// row yields an answer; failures become explanatory text in the output,
// never a halted run.
package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dasanlab/bookcheck/internal/cache"
	"github.com/dasanlab/bookcheck/pkg/types"
)

// Resolver maps a title/author pair to an ISBN-13.
type Resolver interface {
	ResolveISBN(ctx context.Context, title, author string, threshold float64) (types.Resolution, error)
}

// Searcher decides whether a school holds an ISBN across partitions.
type Searcher interface {
	Resolve(ctx context.Context, isbn, school string, partitions []string) types.Decision
}

// CheckpointWriter persists partial output during a run. The caller owns
// the final write at completion.
type CheckpointWriter interface {
	Checkpoint(records []types.Record) error
}

// ProgressFunc is called after each processed row.
type ProgressFunc func(done, total int)

// Orchestrator owns one batch run and the cache that spans it.
type Orchestrator struct {
	resolver   Resolver
	searcher   Searcher
	cache      *cache.ResultCache
	threshold  float64
	partitions []string
	cfg        types.BatchConfig
	log        *zap.Logger

	// Progress is optional; nil means no reporting.
	Progress ProgressFunc
}

// New builds an orchestrator. The cache may be shared with direct-search
// callers but the orchestrator is the only writer during Run.
func New(resolver Resolver, searcher Searcher, c *cache.ResultCache, threshold float64, partitions []string, cfg types.BatchConfig, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = cache.New()
	}
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Orchestrator{
		resolver:   resolver,
		searcher:   searcher,
		cache:      c,
		threshold:  threshold,
		partitions: partitions,
		cfg:        cfg,
		log:        log,
	}
}

// Cache exposes the run's cache for the end-of-run statistics snapshot.
func (o *Orchestrator) Cache() *cache.ResultCache { return o.cache }

// ProcessRow runs one input row through both stages and always returns a
// record. A failed resolution skips the holdings stage entirely.
func (o *Orchestrator) ProcessRow(ctx context.Context, row types.Row) types.Record {
	rec := types.Record{
		School:    row.School,
		Title:     row.Title,
		Author:    row.Author,
		Publisher: row.Publisher,
	}

	res, hit := o.cache.GetISBN(row.Title, row.Author)
	if !hit {
		var err error
		res, err = o.resolver.ResolveISBN(ctx, row.Title, row.Author, o.threshold)
		if err != nil {
			o.log.Warn("isbn resolution failed",
				zap.String("title", row.Title), zap.Error(err))
		}
		// Cache the attempt either way so the same query is never retried
		// within this run.
		o.cache.PutISBN(row.Title, row.Author, res)
	}

	if !res.OK() {
		rec.Reason = resolutionReason(res)
		return rec
	}
	rec.ISBN13 = res.ISBN13

	dec, hit := o.cache.GetHoldings(row.School, res.ISBN13)
	if !hit {
		dec = o.searcher.Resolve(ctx, res.ISBN13, row.School, o.partitions)
		o.cache.PutHoldings(row.School, res.ISBN13, dec)
	}

	rec.Exists = dec.Exists
	rec.MatchedSchool = dec.MatchedSchool
	if rec.MatchedSchool == "" {
		rec.MatchedSchool = row.School
	}
	if dec.Reason != "" {
		rec.Reason = dec.Reason
	}
	return rec
}

// Run processes rows sequentially, checkpointing partial output every
// CheckpointEvery rows. A context cancellation stops before the next row;
// already-checkpointed output is preserved and the partial records are
// returned along with ctx.Err(). The caller writes the final output.
func (o *Orchestrator) Run(ctx context.Context, rows []types.Row, sink CheckpointWriter) ([]types.Record, error) {
	records := make([]types.Record, 0, len(rows))
	total := len(rows)

	for i, row := range rows {
		select {
		case <-ctx.Done():
			o.log.Warn("run cancelled", zap.Int("processed", i), zap.Int("total", total))
			return records, ctx.Err()
		default:
		}

		rec := o.ProcessRow(ctx, row)
		records = append(records, rec)
		o.log.Info("row processed",
			zap.Int("row", i+1),
			zap.Int("total", total),
			zap.String("school", rec.School),
			zap.String("isbn", rec.ISBN13),
			zap.Bool("exists", rec.Exists))

		if o.Progress != nil {
			o.Progress(i+1, total)
		}

		if sink != nil && o.cfg.CheckpointEvery > 0 && (i+1)%o.cfg.CheckpointEvery == 0 {
			if err := sink.Checkpoint(records); err != nil {
				o.log.Error("checkpoint write failed", zap.Int("rows", i+1), zap.Error(err))
			}
		}
	}

	stats := o.cache.Stats()
	o.log.Info("run complete",
		zap.Int("rows", total),
		zap.Int("isbn_hits", stats.ISBNHits),
		zap.Int("isbn_misses", stats.ISBNMisses),
		zap.Int("holdings_hits", stats.HoldingsHits),
		zap.Int("holdings_misses", stats.HoldingsMisses))
	return records, nil
}

// resolutionReason renders a failed resolution for the output row.
func resolutionReason(res types.Resolution) string {
	if res.Reason == "" {
		return "isbn not resolved"
	}
	return fmt.Sprintf("isbn not resolved (%s)", res.Reason)
}

// Copyright Dasan Software Lab, 2026. All rights reserved.

package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dasanlab/bookcheck/internal/cache"
	"github.com/dasanlab/bookcheck/pkg/types"
)

// --- fakes ---

type fakeResolver struct {
	calls int32
	res   map[string]types.Resolution
	err   error
}

func (f *fakeResolver) ResolveISBN(_ context.Context, title, _ string, _ float64) (types.Resolution, error) {
	atomic.AddInt32(&f.calls, 1)
	if r, ok := f.res[title]; ok {
		return r, f.err
	}
	return types.Resolution{Kind: types.KindNoResults, Reason: "no results"}, nil
}

type fakeSearcher struct {
	calls int32
	dec   types.Decision
}

func (f *fakeSearcher) Resolve(_ context.Context, _, _ string, _ []string) types.Decision {
	atomic.AddInt32(&f.calls, 1)
	return f.dec
}

type memSink struct {
	writes  int
	lastLen int
}

func (m *memSink) Checkpoint(records []types.Record) error {
	m.writes++
	m.lastLen = len(records)
	return nil
}

func newOrch(r Resolver, s Searcher, every int) *Orchestrator {
	return New(r, s, cache.New(), 0.6, []string{"B10", "C10"},
		types.BatchConfig{CheckpointEvery: every}, nil)
}

// --- tests ---

func TestProcessRowHappyPath(t *testing.T) {
	r := &fakeResolver{res: map[string]types.Resolution{
		"해리포터": {ISBN13: "9788983920997"},
	}}
	s := &fakeSearcher{dec: types.Decision{Exists: true, MatchCount: 1, MatchedSchool: "금남초등학교점"}}
	o := newOrch(r, s, 0)

	rec := o.ProcessRow(context.Background(), types.Row{
		School: "금남초등학교", Title: "해리포터", Author: "롤링", Publisher: "문학수첩",
	})

	assert.Equal(t, "9788983920997", rec.ISBN13)
	assert.True(t, rec.Exists)
	assert.Equal(t, "금남초등학교점", rec.MatchedSchool)
	assert.Equal(t, "✅", rec.ExistsMark())
	assert.Empty(t, rec.Reason)
}

func TestProcessRowResolutionFailureSkipsHoldings(t *testing.T) {
	r := &fakeResolver{}
	s := &fakeSearcher{}
	o := newOrch(r, s, 0)

	rec := o.ProcessRow(context.Background(), types.Row{School: "학교", Title: "없는책"})

	assert.Empty(t, rec.ISBN13)
	assert.False(t, rec.Exists)
	assert.Equal(t, "isbn not resolved (no results)", rec.Reason)
	assert.Equal(t, int32(0), atomic.LoadInt32(&s.calls), "holdings must not be queried without an isbn")
}

func TestProcessRowIdempotentViaCache(t *testing.T) {
	r := &fakeResolver{res: map[string]types.Resolution{
		"해리포터": {ISBN13: "9788983920997"},
	}}
	s := &fakeSearcher{dec: types.Decision{Exists: true, MatchCount: 1}}
	o := newOrch(r, s, 0)

	row := types.Row{School: "금남초등학교", Title: "해리포터", Author: "롤링"}
	first := o.ProcessRow(context.Background(), row)
	second := o.ProcessRow(context.Background(), row)

	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls), "second row must be a cache hit")
	assert.Equal(t, int32(1), atomic.LoadInt32(&s.calls))
	assert.Equal(t, first, second)
}

func TestProcessRowFailedResolutionCachedToo(t *testing.T) {
	r := &fakeResolver{}
	o := newOrch(r, &fakeSearcher{}, 0)

	row := types.Row{School: "학교", Title: "없는책"}
	o.ProcessRow(context.Background(), row)
	o.ProcessRow(context.Background(), row)

	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls), "failed attempts are memoized as well")
}

func TestProcessRowTransientErrorStillYieldsRecord(t *testing.T) {
	r := &fakeResolver{
		res: map[string]types.Resolution{
			"책": {Kind: types.KindTransient, Reason: "catalog API request: connection refused"},
		},
		err: errors.New("connection refused"),
	}
	o := newOrch(r, &fakeSearcher{}, 0)

	rec := o.ProcessRow(context.Background(), types.Row{School: "학교", Title: "책"})
	assert.False(t, rec.Exists)
	assert.Contains(t, rec.Reason, "connection refused")
}

func TestRunOneRecordPerRow(t *testing.T) {
	r := &fakeResolver{res: map[string]types.Resolution{
		"책A": {ISBN13: "9780000000001"},
	}}
	s := &fakeSearcher{dec: types.Decision{Exists: false, Reason: "no holdings found in any partition"}}
	o := newOrch(r, s, 0)

	rows := []types.Row{
		{School: "학교1", Title: "책A"},
		{School: "학교2", Title: "없는책"},
		{School: "학교3", Title: ""},
	}
	records, err := o.Run(context.Background(), rows, nil)
	require.NoError(t, err)
	assert.Len(t, records, len(rows), "row count in equals row count out")
}

func TestRunCheckpointCadence(t *testing.T) {
	r := &fakeResolver{}
	o := newOrch(r, &fakeSearcher{}, 2)
	sink := &memSink{}

	rows := make([]types.Row, 5)
	for i := range rows {
		rows[i] = types.Row{School: "학교", Title: "없는책"}
	}
	records, err := o.Run(context.Background(), rows, sink)
	require.NoError(t, err)
	assert.Len(t, records, 5)
	// Checkpoints after rows 2 and 4; the final write is the caller's.
	assert.Equal(t, 2, sink.writes)
	assert.Equal(t, 4, sink.lastLen)
}

func TestRunCancellationStopsProcessing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := &fakeResolver{res: map[string]types.Resolution{"책": {ISBN13: "1"}}}
	s := &fakeSearcher{}
	o := newOrch(r, s, 0)

	processed := 0
	o.Progress = func(done, total int) {
		processed = done
		if done == 2 {
			cancel()
		}
	}

	rows := make([]types.Row, 10)
	for i := range rows {
		rows[i] = types.Row{School: "학교", Title: "없는책"}
	}
	records, err := o.Run(ctx, rows, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, processed)
	assert.Len(t, records, 2, "no rows processed after cancellation is observed")
}

func TestRunProgressReported(t *testing.T) {
	o := newOrch(&fakeResolver{}, &fakeSearcher{}, 0)
	var seen []int
	o.Progress = func(done, total int) {
		assert.Equal(t, 3, total)
		seen = append(seen, done)
	}

	rows := []types.Row{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	_, err := o.Run(context.Background(), rows, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestProcessRowMatchedSchoolFallsBackToInput(t *testing.T) {
	r := &fakeResolver{res: map[string]types.Resolution{"책": {ISBN13: "1"}}}
	s := &fakeSearcher{dec: types.Decision{Exists: false, Reason: "no holdings found in any partition"}}
	o := newOrch(r, s, 0)

	rec := o.ProcessRow(context.Background(), types.Row{School: "금남초등학교", Title: "책"})
	assert.Equal(t, "금남초등학교", rec.MatchedSchool)
}

// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package types defines shared data structures for the bookcheck pipeline:
// input rows, identifier resolutions, holdings decisions, and the output
// records the batch run produces.
package types

import "fmt"

// ErrorKind classifies why an operation produced a negative or failed
// outcome. It is a closed enumeration; new kinds require a new constant.
type ErrorKind string

const (
	// KindNone marks a successful outcome.
	KindNone ErrorKind = ""

	// KindEmptyInput marks a query rejected before any network call.
	KindEmptyInput ErrorKind = "empty_input"

	// KindTransient marks a network or HTTP failure that survived retries.
	KindTransient ErrorKind = "transient"

	// KindNoResults marks a catalog query that returned zero candidates.
	KindNoResults ErrorKind = "no_results"

	// KindLowSimilarity marks a best candidate below the match threshold.
	KindLowSimilarity ErrorKind = "low_similarity"

	// KindMissingIdentifier marks a winning candidate with a blank ISBN field.
	KindMissingIdentifier ErrorKind = "missing_identifier"

	// KindPartitionFailure marks a per-partition holdings query failure.
	KindPartitionFailure ErrorKind = "partition_failure"

	// KindSystemic marks a holdings search where no partition could be queried.
	KindSystemic ErrorKind = "systemic"
)

// Row is one input line of the batch: a school and a bibliographic
// description of one book. Missing spreadsheet columns arrive as empty
// strings.
type Row struct {
	School    string `json:"school" yaml:"school"`
	Title     string `json:"title" yaml:"title"`
	Author    string `json:"author" yaml:"author"`
	Publisher string `json:"publisher" yaml:"publisher"`
}

// Candidate is one item returned by the catalog search. It exists only
// during best-candidate selection.
type Candidate struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN13 string `json:"isbn13"`
}

// Resolution is the outcome of mapping a title/author pair to an ISBN-13.
// Either ISBN13 is non-empty, or Kind and Reason describe why it is not.
// Immutable once cached.
type Resolution struct {
	ISBN13 string    `json:"isbn13" yaml:"isbn13"`
	Kind   ErrorKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Reason string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// OK reports whether an identifier was resolved.
func (r Resolution) OK() bool { return r.ISBN13 != "" }

// Decision is the outcome of the multi-partition holdings aggregation for
// one (school, ISBN) pair. Exists is true iff MatchCount > 0. Immutable
// once cached.
type Decision struct {
	Exists        bool      `json:"exists" yaml:"exists"`
	MatchCount    int       `json:"match_count" yaml:"match_count"`
	MatchedSchool string    `json:"matched_school,omitempty" yaml:"matched_school,omitempty"`
	Kind          ErrorKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Reason        string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// HoldingRecord is one entry returned by the holdings service: one
// school's copy of a book. Duplicate entries across partitions are
// preserved for total-count reporting.
type HoldingRecord struct {
	SchoolName string `json:"schoolName"`
	Partition  string `json:"-"`
}

// Record is one output line of the batch. Every input row produces
// exactly one Record regardless of failures along the way.
type Record struct {
	School        string `json:"school" yaml:"school"`
	Title         string `json:"title" yaml:"title"`
	Author        string `json:"author" yaml:"author"`
	Publisher     string `json:"publisher" yaml:"publisher"`
	ISBN13        string `json:"isbn13" yaml:"isbn13"`
	MatchedSchool string `json:"matched_school" yaml:"matched_school"`
	Exists        bool   `json:"exists" yaml:"exists"`
	Reason        string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ExistsMark renders the existence flag the way the output spreadsheet
// expects it.
func (r Record) ExistsMark() string {
	if r.Exists {
		return "✅"
	}
	return "❌"
}

// String summarizes a record for log lines.
func (r Record) String() string {
	return fmt.Sprintf("%s | %s | isbn=%s exists=%v", r.School, r.Title, r.ISBN13, r.Exists)
}

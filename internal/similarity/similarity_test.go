// Copyright Dasan Software Lab, 2026. All rights reserved.

package similarity

import (
	"testing"
)

func TestTokenSetRatioIdentical(t *testing.T) {
	if got := TokenSetRatio("해리포터와 마법사의 돌", "해리포터와 마법사의 돌"); got != 1.0 {
		t.Errorf("identical strings = %f, want 1.0", got)
	}
}

func TestTokenSetRatioTokenOrder(t *testing.T) {
	a := TokenSetRatio("마법사의 돌 해리포터와", "해리포터와 마법사의 돌")
	if a != 1.0 {
		t.Errorf("reordered tokens = %f, want 1.0", a)
	}
}

func TestTokenSetRatioSubset(t *testing.T) {
	// A candidate title that contains the full query plus extra tokens
	// should still score 1.0: the intersection equals the query side.
	got := TokenSetRatio("해리포터와 마법사의 돌", "해리포터와 마법사의 돌 (양장본)")
	if got != 1.0 {
		t.Errorf("superset candidate = %f, want 1.0", got)
	}
}

func TestTokenSetRatioEmpty(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 1.0},
		{"left empty", "", "해리포터", 0.0},
		{"right empty", "해리포터", "", 0.0},
		{"whitespace only", "   ", "\t", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenSetRatio(tt.a, tt.b); got != tt.want {
				t.Errorf("TokenSetRatio(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTokenSetRatioCaseInsensitive(t *testing.T) {
	if got := TokenSetRatio("J.K. Rowling", "j.k. rowling"); got != 1.0 {
		t.Errorf("case-folded = %f, want 1.0", got)
	}
}

func TestTokenSetRatioDisjoint(t *testing.T) {
	got := TokenSetRatio("가나다", "xyz")
	if got >= 0.5 {
		t.Errorf("disjoint strings = %f, want < 0.5", got)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("", ""); got != 1.0 {
		t.Errorf("Ratio(\"\",\"\") = %f, want 1.0", got)
	}
	if got := Ratio("abc", "abc"); got != 1.0 {
		t.Errorf("equal = %f, want 1.0", got)
	}
	// One substitution in three runes.
	got := Ratio("abc", "abd")
	want := 1.0 - 1.0/3.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Ratio(abc, abd) = %f, want %f", got, want)
	}
}

func TestCompositeExactTitleClearsThreshold(t *testing.T) {
	// Exact title alone contributes 0.7, above the default 0.6 threshold
	// even with a mismatched author.
	got := Composite("해리포터와 마법사의 돌", "조앤 K. 롤링", "해리포터와 마법사의 돌", "J.K. 롤링")
	if got < 0.6 {
		t.Errorf("composite = %f, want >= 0.6", got)
	}
}

func TestCompositeEmptyAuthorScoresZeroAuthor(t *testing.T) {
	withAuthor := Composite("제목", "", "제목", "아무개")
	if withAuthor != TitleWeight {
		t.Errorf("empty query author composite = %f, want %f", withAuthor, TitleWeight)
	}
}

func TestCompositeWeighting(t *testing.T) {
	// Title and author both exact: 0.7 + 0.3 = 1.0.
	got := Composite("제목", "저자", "제목", "저자")
	if diff := got - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("composite = %f, want 1.0", got)
	}
}

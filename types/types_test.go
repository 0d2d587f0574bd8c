package types

import "testing"

func TestFetchResultSuccess(t *testing.T) {
	cases := []struct {
		name string
		r    FetchResult
		want bool
	}{
		{"empty", FetchResult{}, false},
		{"source only, no body", FetchResult{Source: SourceWaybackData}, false},
		{"html no source", FetchResult{HTML: "<html/>"}, false},
		{"success html", FetchResult{Source: SourceWaybackData, HTML: "<html/>"}, true},
		{"success content", FetchResult{Source: SourceCommonCrawlIndex, Content: "text"}, true},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Success(); got != tt.want {
				t.Errorf("Success() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshotDedupKey(t *testing.T) {
	a := Snapshot{URL: "https://a.com", Timestamp: "20240101120000", Digest: "abc123"}
	b := Snapshot{URL: "https://a.com", Timestamp: "20240101235959", Digest: "abc123"}
	if a.DedupKey() != b.DedupKey() {
		t.Errorf("expected same digest-based dedup key, got %q vs %q", a.DedupKey(), b.DedupKey())
	}

	c := Snapshot{URL: "https://a.com", Timestamp: "20240101120000"}
	d := Snapshot{URL: "https://a.com", Timestamp: "20240101235959"}
	if c.DedupKey() != d.DedupKey() {
		t.Errorf("expected same day-truncated dedup key, got %q vs %q", c.DedupKey(), d.DedupKey())
	}

	e := Snapshot{URL: "https://a.com", Timestamp: "20240102000000"}
	if c.DedupKey() == e.DedupKey() {
		t.Errorf("expected different dedup keys across days")
	}
}

func TestClassifyChange(t *testing.T) {
	cases := []struct {
		sim  float64
		want ChangeCategory
	}{
		{1.0, ChangeIdentical},
		{0.99, ChangeIdentical},
		{0.95, ChangeMinor},
		{0.90, ChangeMinor},
		{0.6, ChangeModified},
		{0.50, ChangeModified},
		{0.1, ChangeMajor},
		{0.0, ChangeMajor},
	}
	for _, tt := range cases {
		if got := ClassifyChange(tt.sim); got != tt.want {
			t.Errorf("ClassifyChange(%v) = %v, want %v", tt.sim, got, tt.want)
		}
	}
}

func TestDateRangeInvalid(t *testing.T) {
	if (DateRange{}).Invalid() {
		t.Error("empty range should not be invalid")
	}
	if (DateRange{Start: "2024-01-01", End: "2024-12-31"}).Invalid() {
		t.Error("start before end should not be invalid")
	}
	if !(DateRange{Start: "2024-12-31", End: "2024-01-01"}).Invalid() {
		t.Error("start after end should be invalid")
	}
}

func TestPageVersionEqual(t *testing.T) {
	a := PageVersion{URL: "https://a.com", Hash: "deadbeef"}
	b := PageVersion{URL: "https://a.com", Hash: "deadbeef"}
	c := PageVersion{URL: "https://a.com", Hash: "cafef00d"}
	if !a.Equal(b) {
		t.Error("expected equal page versions")
	}
	if a.Equal(c) {
		t.Error("expected unequal page versions with different hashes")
	}
}

package cache

import (
	"net/http"
	"testing"
	"time"
)

// testEntry builds an entry whose exchange happened at fixedTime with the
// given response headers.
func testEntry(h http.Header) *Entry {
	return NewEntry(http.MethodGet, fixedTime, fixedTime, http.StatusOK, h, []byte("body"))
}

func TestFreshnessLifetime(t *testing.T) {
	date := fixedTime.Format(http.TimeFormat)

	tests := []struct {
		name   string
		shared bool
		header http.Header
		want   time.Duration
	}{
		{
			name:   "max-age",
			header: http.Header{"Cache-Control": []string{"max-age=300"}},
			want:   300 * time.Second,
		},
		{
			name:   "s-maxage wins in shared cache",
			shared: true,
			header: http.Header{"Cache-Control": []string{"max-age=300, s-maxage=600"}},
			want:   600 * time.Second,
		},
		{
			name:   "s-maxage ignored in private cache",
			header: http.Header{"Cache-Control": []string{"max-age=300, s-maxage=600"}},
			want:   300 * time.Second,
		},
		{
			name: "expires minus date",
			header: http.Header{
				"Date":    []string{date},
				"Expires": []string{fixedTime.Add(10 * time.Minute).Format(http.TimeFormat)},
			},
			want: 10 * time.Minute,
		},
		{
			name: "max-age wins over expires",
			header: http.Header{
				"Cache-Control": []string{"max-age=60"},
				"Date":          []string{date},
				"Expires":       []string{fixedTime.Add(10 * time.Minute).Format(http.TimeFormat)},
			},
			want: 60 * time.Second,
		},
		{
			name: "expires in the past",
			header: http.Header{
				"Date":    []string{date},
				"Expires": []string{fixedTime.Add(-time.Minute).Format(http.TimeFormat)},
			},
			want: 0,
		},
		{
			name: "unparsable expires treated as absent",
			header: http.Header{
				"Date":    []string{date},
				"Expires": []string{"0"},
			},
			want: 0,
		},
		{
			name:   "no freshness information",
			header: http.Header{},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ValidityPolicy{SharedCache: tt.shared}
			got := p.FreshnessLifetime(testEntry(tt.header))
			if got != tt.want {
				t.Errorf("FreshnessLifetime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeuristicLifetime(t *testing.T) {
	h := http.Header{
		"Date":          []string{fixedTime.Format(http.TimeFormat)},
		"Last-Modified": []string{fixedTime.Add(-10 * time.Hour).Format(http.TimeFormat)},
	}

	p := ValidityPolicy{HeuristicEnabled: true}
	if got := p.FreshnessLifetime(testEntry(h)); got != time.Hour {
		t.Errorf("FreshnessLifetime() = %v, want 1h", got)
	}

	p = ValidityPolicy{HeuristicEnabled: true, HeuristicFraction: 0.5}
	if got := p.FreshnessLifetime(testEntry(h)); got != 5*time.Hour {
		t.Errorf("FreshnessLifetime() with fraction 0.5 = %v, want 5h", got)
	}

	p = ValidityPolicy{HeuristicEnabled: false}
	if got := p.FreshnessLifetime(testEntry(h)); got != 0 {
		t.Errorf("FreshnessLifetime() with heuristics disabled = %v, want 0", got)
	}
}

func TestHeuristicLifetimeWithoutLastModified(t *testing.T) {
	p := ValidityPolicy{HeuristicEnabled: true}
	e := testEntry(http.Header{"Date": []string{fixedTime.Format(http.TimeFormat)}})
	if got := p.FreshnessLifetime(e); got != 0 {
		t.Errorf("FreshnessLifetime() = %v, want 0", got)
	}
}

func TestCurrentAge(t *testing.T) {
	p := ValidityPolicy{}

	tests := []struct {
		name   string
		header http.Header
		now    time.Time
		want   time.Duration
	}{
		{
			name:   "resident time only",
			header: http.Header{"Date": []string{fixedTime.Format(http.TimeFormat)}},
			now:    fixedTime.Add(30 * time.Second),
			want:   30 * time.Second,
		},
		{
			name:   "apparent age from old date",
			header: http.Header{"Date": []string{fixedTime.Add(-time.Minute).Format(http.TimeFormat)}},
			now:    fixedTime.Add(30 * time.Second),
			want:   90 * time.Second,
		},
		{
			name: "upstream age header dominates",
			header: http.Header{
				"Date": []string{fixedTime.Format(http.TimeFormat)},
				"Age":  []string{"120"},
			},
			now:  fixedTime.Add(30 * time.Second),
			want: 150 * time.Second,
		},
		{
			name:   "future date clamps apparent age",
			header: http.Header{"Date": []string{fixedTime.Add(time.Hour).Format(http.TimeFormat)}},
			now:    fixedTime.Add(30 * time.Second),
			want:   30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.CurrentAge(testEntry(tt.header), tt.now)
			if got != tt.want {
				t.Errorf("CurrentAge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCurrentAgeIncludesRequestDelay(t *testing.T) {
	// a slow exchange inflates the corrected age value
	h := http.Header{
		"Date": []string{fixedTime.Format(http.TimeFormat)},
		"Age":  []string{"10"},
	}
	e := NewEntry(http.MethodGet, fixedTime.Add(-5*time.Second), fixedTime, http.StatusOK, h, nil)

	p := ValidityPolicy{}
	got := p.CurrentAge(e, fixedTime)
	if got != 15*time.Second {
		t.Errorf("CurrentAge() = %v, want 15s", got)
	}
}

func TestIsFresh(t *testing.T) {
	p := ValidityPolicy{}
	h := http.Header{
		"Cache-Control": []string{"max-age=60"},
		"Date":          []string{fixedTime.Format(http.TimeFormat)},
	}
	e := testEntry(h)

	if !p.IsFresh(e, fixedTime.Add(30*time.Second)) {
		t.Error("IsFresh() = false inside lifetime")
	}
	if p.IsFresh(e, fixedTime.Add(60*time.Second)) {
		t.Error("IsFresh() = true at exact lifetime")
	}
	if p.IsFresh(e, fixedTime.Add(2*time.Minute)) {
		t.Error("IsFresh() = true past lifetime")
	}
}

func TestMayServeStaleWhileRevalidate(t *testing.T) {
	p := ValidityPolicy{}

	tests := []struct {
		name   string
		cc     string
		now    time.Time
		shared bool
		want   bool
	}{
		{
			name: "inside window",
			cc:   "max-age=60, stale-while-revalidate=30",
			now:  fixedTime.Add(80 * time.Second),
			want: true,
		},
		{
			name: "past window",
			cc:   "max-age=60, stale-while-revalidate=30",
			now:  fixedTime.Add(2 * time.Minute),
			want: false,
		},
		{
			name: "no window",
			cc:   "max-age=60",
			now:  fixedTime.Add(80 * time.Second),
			want: false,
		},
		{
			name: "must-revalidate forbids",
			cc:   "max-age=60, stale-while-revalidate=30, must-revalidate",
			now:  fixedTime.Add(80 * time.Second),
			want: false,
		},
		{
			name:   "proxy-revalidate forbids shared",
			cc:     "max-age=60, stale-while-revalidate=30, proxy-revalidate",
			now:    fixedTime.Add(80 * time.Second),
			shared: true,
			want:   false,
		},
		{
			name: "proxy-revalidate allowed private",
			cc:   "max-age=60, stale-while-revalidate=30, proxy-revalidate",
			now:  fixedTime.Add(80 * time.Second),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.SharedCache = tt.shared
			h := http.Header{
				"Cache-Control": []string{tt.cc},
				"Date":          []string{fixedTime.Format(http.TimeFormat)},
			}
			got := p.MayServeStaleWhileRevalidate(testEntry(h), tt.now)
			if got != tt.want {
				t.Errorf("MayServeStaleWhileRevalidate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMayServeStaleIfError(t *testing.T) {
	p := ValidityPolicy{}
	h := http.Header{
		"Cache-Control": []string{"max-age=60, stale-if-error=300"},
		"Date":          []string{fixedTime.Format(http.TimeFormat)},
	}
	e := testEntry(h)

	if !p.MayServeStaleIfError(e, fixedTime.Add(3*time.Minute)) {
		t.Error("MayServeStaleIfError() = false inside window")
	}
	if p.MayServeStaleIfError(e, fixedTime.Add(10*time.Minute)) {
		t.Error("MayServeStaleIfError() = true past window")
	}
}

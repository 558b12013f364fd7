package cache

import (
	"testing"
	"time"
)

func TestParseCacheControlDirectives(t *testing.T) {
	cc := ParseCacheControl([]string{"no-store, no-cache, must-revalidate"})

	if !cc.NoStore() {
		t.Error("NoStore() = false")
	}
	if !cc.NoCache() {
		t.Error("NoCache() = false")
	}
	if !cc.MustRevalidate() {
		t.Error("MustRevalidate() = false")
	}
	if cc.Private() {
		t.Error("Private() = true")
	}
}

func TestParseCacheControlCaseInsensitive(t *testing.T) {
	cc := ParseCacheControl([]string{"No-Store, MAX-AGE=60"})
	if !cc.NoStore() {
		t.Error("NoStore() = false for No-Store")
	}
	if d, ok := cc.MaxAge(); !ok || d != 60*time.Second {
		t.Errorf("MaxAge() = %v, %v", d, ok)
	}
}

func TestParseCacheControlMultipleFields(t *testing.T) {
	cc := ParseCacheControl([]string{"max-age=60", "s-maxage=120"})
	if d, ok := cc.MaxAge(); !ok || d != 60*time.Second {
		t.Errorf("MaxAge() = %v, %v", d, ok)
	}
	if d, ok := cc.SMaxAge(); !ok || d != 120*time.Second {
		t.Errorf("SMaxAge() = %v, %v", d, ok)
	}
}

func TestParseCacheControlQuotedArgument(t *testing.T) {
	cc := ParseCacheControl([]string{`max-age="60"`})
	if d, ok := cc.MaxAge(); !ok || d != 60*time.Second {
		t.Errorf("MaxAge() = %v, %v", d, ok)
	}
}

func TestParseCacheControlLastWins(t *testing.T) {
	cc := ParseCacheControl([]string{"max-age=60, max-age=120"})
	if d, _ := cc.MaxAge(); d != 120*time.Second {
		t.Errorf("MaxAge() = %v, want 120s", d)
	}
}

func TestCacheControlSeconds(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"valid", "max-age=300", 300 * time.Second, true},
		{"zero", "max-age=0", 0, true},
		{"negative treated as absent", "max-age=-1", 0, false},
		{"non-numeric treated as absent", "max-age=abc", 0, false},
		{"empty argument treated as absent", "max-age=", 0, false},
		{"missing", "no-cache", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := ParseCacheControl([]string{tt.value})
			got, ok := cc.MaxAge()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("MaxAge() = %v, %v, want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCacheControlExtensions(t *testing.T) {
	cc := ParseCacheControl([]string{"max-age=60, stale-while-revalidate=30, stale-if-error=300"})

	if d, ok := cc.StaleWhileRevalidate(); !ok || d != 30*time.Second {
		t.Errorf("StaleWhileRevalidate() = %v, %v", d, ok)
	}
	if d, ok := cc.StaleIfError(); !ok || d != 300*time.Second {
		t.Errorf("StaleIfError() = %v, %v", d, ok)
	}
}

func TestCacheControlHasUnknownDirective(t *testing.T) {
	cc := ParseCacheControl([]string{"immutable, max-age=60"})
	if !cc.Has("immutable") {
		t.Error("Has(immutable) = false")
	}
	if cc.Has("no-transform") {
		t.Error("Has(no-transform) = true")
	}
}

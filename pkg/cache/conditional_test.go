package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestBuildConditionalRequest(t *testing.T) {
	lastModified := fixedTime.Add(-time.Hour)
	h := http.Header{
		"Etag":          []string{`"v1"`},
		"Last-Modified": []string{lastModified.Format(http.TimeFormat)},
	}
	e := NewEntry(http.MethodGet, fixedTime, fixedTime, http.StatusOK, h, nil)

	orig, _ := http.NewRequest(http.MethodGet, "http://example.org/articles/1", nil)
	req := BuildConditionalRequest(orig, e)

	if got := req.Header.Get("If-None-Match"); got != `"v1"` {
		t.Errorf("If-None-Match = %q, want %q", got, `"v1"`)
	}
	if got := req.Header.Get("If-Modified-Since"); got != lastModified.Format(http.TimeFormat) {
		t.Errorf("If-Modified-Since = %q, want %q", got, lastModified.Format(http.TimeFormat))
	}
	if orig.Header.Get("If-None-Match") != "" {
		t.Error("original request was mutated")
	}
}

func TestBuildConditionalRequestDateFallback(t *testing.T) {
	h := http.Header{"Date": []string{fixedTime.Format(http.TimeFormat)}}
	e := NewEntry(http.MethodGet, fixedTime, fixedTime, http.StatusOK, h, nil)

	orig, _ := http.NewRequest(http.MethodGet, "http://example.org/", nil)
	req := BuildConditionalRequest(orig, e)

	if got := req.Header.Get("If-Modified-Since"); got != fixedTime.Format(http.TimeFormat) {
		t.Errorf("If-Modified-Since = %q, want Date fallback", got)
	}
	if req.Header.Get("If-None-Match") != "" {
		t.Errorf("If-None-Match = %q, want empty", req.Header.Get("If-None-Match"))
	}
}

func TestBuildConditionalRequestNoValidators(t *testing.T) {
	e := NewEntry(http.MethodGet, fixedTime, fixedTime, http.StatusOK, http.Header{}, nil)

	orig, _ := http.NewRequest(http.MethodGet, "http://example.org/", nil)
	req := BuildConditionalRequest(orig, e)

	if req.Header.Get("If-None-Match") != "" || req.Header.Get("If-Modified-Since") != "" {
		t.Error("conditional headers added without stored validators")
	}
}

func TestBuildConditionalRequestPreservesCallerConditions(t *testing.T) {
	h := http.Header{
		"Etag":          []string{`"v1"`},
		"Last-Modified": []string{fixedTime.Add(-time.Hour).Format(http.TimeFormat)},
	}
	e := NewEntry(http.MethodGet, fixedTime, fixedTime, http.StatusOK, h, nil)

	callerIMS := fixedTime.Add(-2 * time.Hour).Format(http.TimeFormat)
	orig, _ := http.NewRequest(http.MethodGet, "http://example.org/", nil)
	orig.Header.Set("If-None-Match", `"caller"`)
	orig.Header.Set("If-Modified-Since", callerIMS)

	req := BuildConditionalRequest(orig, e)

	if got := req.Header.Get("If-Modified-Since"); got != callerIMS {
		t.Errorf("If-Modified-Since = %q, caller value overwritten", got)
	}
	values := req.Header.Values("If-None-Match")
	if len(values) != 2 || values[0] != `"caller"` || values[1] != `"v1"` {
		t.Errorf("If-None-Match = %v, want caller tag plus stored tag", values)
	}
}

func TestBuildConditionalRequestNoDuplicateETag(t *testing.T) {
	h := http.Header{"Etag": []string{`"v1"`}}
	e := NewEntry(http.MethodGet, fixedTime, fixedTime, http.StatusOK, h, nil)

	orig, _ := http.NewRequest(http.MethodGet, "http://example.org/", nil)
	orig.Header.Set("If-None-Match", `"other", "v1"`)

	req := BuildConditionalRequest(orig, e)
	if values := req.Header.Values("If-None-Match"); len(values) != 1 {
		t.Errorf("If-None-Match = %v, stored tag duplicated", values)
	}
}

func TestBuildConditionalRequestWildcard(t *testing.T) {
	h := http.Header{"Etag": []string{`"v1"`}}
	e := NewEntry(http.MethodGet, fixedTime, fixedTime, http.StatusOK, h, nil)

	orig, _ := http.NewRequest(http.MethodGet, "http://example.org/", nil)
	orig.Header.Set("If-None-Match", "*")

	req := BuildConditionalRequest(orig, e)
	if values := req.Header.Values("If-None-Match"); len(values) != 1 || values[0] != "*" {
		t.Errorf("If-None-Match = %v, want wildcard only", values)
	}
}

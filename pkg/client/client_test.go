package client

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/cachewright/httpcache/internal/testutil"
	"github.com/cachewright/httpcache/pkg/cache"
	"github.com/cachewright/httpcache/pkg/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	store, err := storage.NewMemory(storage.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("NewMemory() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c, err := New(DefaultConfig(store))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewRequiresStorage(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() accepted a config without storage")
	}
}

func TestClientCachesResponses(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetCachingResponse("/articles/1", "payload", "max-age=60", `"v1"`)

	c := newTestClient(t)
	ctx := context.Background()

	resp, err := c.Get(ctx, origin.URL()+"/articles/1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}

	resp, err = c.Get(ctx, origin.URL()+"/articles/1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if origin.GetRequestCount() != 1 {
		t.Errorf("origin requests = %d, want 1", origin.GetRequestCount())
	}
}

func TestClientRevalidates(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetCachingResponse("/articles/1", "payload", "max-age=0", `"v1"`)

	c := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := c.Get(ctx, origin.URL()+"/articles/1")
		if err != nil {
			t.Fatalf("Get() %d error: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "payload" {
			t.Errorf("body %d = %q", i, body)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status %d = %d", i, resp.StatusCode)
		}
	}

	if origin.GetConditionalCount() != 1 {
		t.Errorf("conditional requests = %d, want 1", origin.GetConditionalCount())
	}
}

func TestClientSetsUserAgent(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	store, err := storage.NewMemory(storage.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("NewMemory() error: %v", err)
	}
	defer store.Close()

	cfg := DefaultConfig(store)
	cfg.UserAgent = "httpcache-test/1.0"
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	resp, err := c.Get(context.Background(), origin.URL()+"/a")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if got := origin.LastRequestHeader.Get("User-Agent"); got != "httpcache-test/1.0" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestClientEngineOverride(t *testing.T) {
	store, err := storage.NewMemory(storage.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("NewMemory() error: %v", err)
	}
	defer store.Close()

	engineCfg := cache.DefaultConfig(nil)
	engineCfg.SharedCache = false

	cfg := DefaultConfig(store)
	cfg.Engine = &engineCfg

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	if c.Engine() == nil {
		t.Error("Engine() = nil")
	}
}

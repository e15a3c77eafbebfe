package registry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/helxplatform/appstore/pkg/registry"
)

func TestFetcher(t *testing.T) {
	t.Run("it downloads relative locations from the base URL once", func(t *testing.T) {
		hits := new(atomic.Int32)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if r.URL.Path != "/conf/app-registry.yaml" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte("contexts: {}"))
		}))
		defer server.Close()

		testee := registry.NewFetcher(server.URL+"/conf", "")
		for range 3 {
			body, err := testee.Fetch(context.Background(), "app-registry.yaml")
			if err != nil {
				t.Fatal(err)
			}
			if string(body) != "contexts: {}" {
				t.Errorf("unexpected body: %s", body)
			}
		}
		if n := hits.Load(); n != 1 {
			t.Errorf("downloaded %d times", n)
		}

		_, err := testee.Fetch(context.Background(), server.URL+"/missing/.env")
		se := new(registry.StatusError)
		if !errors.As(err, &se) || se.Code != http.StatusNotFound {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("without base URL, it reads files in the directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "app-defaults.yaml"), []byte("count: 1"), 0644); err != nil {
			t.Fatal(err)
		}
		testee := registry.NewFetcher("", dir)
		body, err := testee.Fetch(context.Background(), "app-defaults.yaml")
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != "count: 1" {
			t.Errorf("unexpected body: %s", body)
		}
		if _, err := testee.Fetch(context.Background(), "missing.yaml"); err == nil {
			t.Error("expected error, but got nil")
		}
	})
}

func TestBoltCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	cache, err := registry.OpenBoltCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get("https://example.com/a"); ok {
		t.Error("empty cache has an entry")
	}
	if err := cache.Put("https://example.com/a", []byte("A")); err != nil {
		t.Fatal(err)
	}
	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}

	t.Run("entries survive reopening", func(t *testing.T) {
		cache, err := registry.OpenBoltCache(path)
		if err != nil {
			t.Fatal(err)
		}
		defer cache.Close()

		v, ok := cache.Get("https://example.com/a")
		if !ok || string(v) != "A" {
			t.Errorf("(actual, expected) = (%s, %s)", v, "A")
		}
	})
}

package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/labstack/gommon/log"
)

// Cache keeps fetched contents by their location.
//
// Implementations should be safe for concurrent use.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// MemoryCache is a Cache which lives as long as the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// type check
var _ Cache = &MemoryCache{}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string][]byte{}}
}

func (m *MemoryCache) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *MemoryCache) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

// StatusError is a response which is not 200.
type StatusError struct {
	Location string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to download %s: %d", e.Location, e.Code)
}

// Fetcher reads files of the registry, from a base URL or a local directory.
type Fetcher struct {
	base       string
	dir        string
	httpclient *http.Client
	cache      Cache
	log        *log.Logger
}

type FetcherOption func(*Fetcher) *Fetcher

// WithCache sets where fetched contents are kept. By default, a new MemoryCache.
func WithCache(c Cache) FetcherOption {
	return func(f *Fetcher) *Fetcher {
		f.cache = c
		return f
	}
}

func WithFetcherHTTPClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) *Fetcher {
		f.httpclient = hc
		return f
	}
}

func WithFetcherLogger(l *log.Logger) FetcherOption {
	return func(f *Fetcher) *Fetcher {
		f.log = l
		return f
	}
}

// NewFetcher creates a Fetcher.
//
// When base is not empty, relative locations are resolved against it as URL.
// Otherwise, they are files in dir.
func NewFetcher(base string, dir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		base:       withSlash(base),
		dir:        dir,
		httpclient: new(http.Client),
		log:        log.New("registry"),
	}
	for _, o := range opts {
		f = o(f)
	}
	if f.cache == nil {
		f.cache = NewMemoryCache()
	}
	return f
}

// BaseURL is the base URL of this fetcher, ending with "/". It can be empty.
func (f *Fetcher) BaseURL() string {
	return f.base
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// resolve makes location absolute.
func (f *Fetcher) resolve(location string) (string, error) {
	if isURL(location) || filepath.IsAbs(location) {
		return location, nil
	}
	if f.base == "" {
		return filepath.Join(f.dir, location), nil
	}
	base, err := url.Parse(f.base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// Fetch reads the content at location.
//
// Responses other than 200 are *StatusError. Contents once read are served from the cache.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	loc, err := f.resolve(location)
	if err != nil {
		return nil, xe.WrapWithNote("location "+location, err)
	}
	if b, ok := f.cache.Get(loc); ok {
		return b, nil
	}

	var body []byte
	if isURL(loc) {
		body, err = f.download(ctx, loc)
	} else {
		body, err = os.ReadFile(loc)
	}
	if err != nil {
		return nil, err
	}

	if err := f.cache.Put(loc, body); err != nil {
		f.log.Warnf("failed to cache %s: %s", loc, err)
	}
	return body, nil
}

func (f *Fetcher) download(ctx context.Context, loc string) ([]byte, error) {
	f.log.Debugf("downloading %s", loc)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Location: loc, Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

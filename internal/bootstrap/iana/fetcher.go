// Package iana keeps a bootstrap store loaded from the published IANA
// registry files. Refreshes gather all files concurrently, compile them,
// and swap the result in atomically; any failure leaves the previous
// tables serving.
package iana

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"rdapd/internal/bootstrap"
)

// DefaultBaseURL is where IANA publishes the bootstrap registries.
const DefaultBaseURL = "https://data.iana.org/rdap/"

// DefaultInterval spaces periodic refreshes. The registries change at most
// daily.
const DefaultInterval = 24 * time.Hour

const maxRegistryBytes = 8 << 20

// Fetcher refreshes a bootstrap store from the registry files.
type Fetcher struct {
	baseURL  string
	client   *http.Client
	store    *bootstrap.Store
	cache    *Cache
	logger   *slog.Logger
	interval time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL points the fetcher at an alternate registry mirror.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.baseURL = u
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithCache persists fetched documents so restarts and failed fetches can
// fall back to the last good copy.
func WithCache(c *Cache) Option {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithInterval overrides the refresh interval.
func WithInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// New constructs a fetcher feeding the given store.
func New(store *bootstrap.Store, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:  DefaultBaseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		store:    store,
		logger:   slog.Default(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Refresh gathers every registry file, compiles them, and swaps the result
// into the store. The previous registry stays current when anything fails.
func (f *Fetcher) Refresh(ctx context.Context) error {
	if err := f.refresh(ctx); err != nil {
		refreshes.WithLabelValues("error").Inc()
		return err
	}
	refreshes.WithLabelValues("ok").Inc()
	lastRefresh.SetToCurrentTime()
	return nil
}

func (f *Fetcher) refresh(ctx context.Context) error {
	var files bootstrap.Files
	targets := []struct {
		name string
		dst  *[]byte
	}{
		{"dns.json", &files.DNS},
		{"asn.json", &files.ASN},
		{"ipv4.json", &files.IPv4},
		{"ipv6.json", &files.IPv6},
		{"object-tags.json", &files.ObjectTags},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			body, err := f.fetchFile(gctx, target.name)
			if err != nil {
				return err
			}
			*target.dst = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	reg, err := bootstrap.Compile(files)
	if err != nil {
		return err
	}
	f.store.Swap(reg)
	f.logger.InfoContext(ctx, "bootstrap registries refreshed", "publication", reg.Publication())
	return nil
}

// Run refreshes immediately and then on every tick until the context ends.
// A failed refresh keeps the previous tables and retries on the next tick.
func (f *Fetcher) Run(ctx context.Context) error {
	if err := f.Refresh(ctx); err != nil {
		f.logger.ErrorContext(ctx, "bootstrap refresh failed", "error", err)
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logger.ErrorContext(ctx, "bootstrap refresh failed", "error", err)
			}
		}
	}
}

// fetchFile revalidates one registry document, preferring the network and
// falling back to the cached copy when the fetch fails.
func (f *Fetcher) fetchFile(ctx context.Context, name string) ([]byte, error) {
	var cachedBody []byte
	var etag string
	if f.cache != nil {
		var err error
		cachedBody, etag, err = f.cache.Get(name)
		if err != nil {
			f.logger.WarnContext(ctx, "bootstrap cache read failed", "file", name, "error", err)
		}
	}
	if cachedBody == nil {
		// Without a body to fall back on, a 304 would leave us with
		// nothing.
		etag = ""
	}

	body, newTag, err := f.download(ctx, name, etag)
	switch {
	case err == nil && body == nil:
		// Not modified; the cached copy is current.
		return cachedBody, nil
	case err == nil:
		if f.cache != nil {
			if err := f.cache.Put(name, body, newTag); err != nil {
				f.logger.WarnContext(ctx, "bootstrap cache write failed", "file", name, "error", err)
			}
		}
		return body, nil
	case cachedBody != nil:
		f.logger.WarnContext(ctx, "bootstrap fetch failed, using cached copy", "file", name, "error", err)
		return cachedBody, nil
	default:
		return nil, err
	}
}

// download performs one conditional GET. A nil body with a nil error means
// the validator still matches.
func (f *Fetcher) download(ctx context.Context, name, etag string) (body []byte, newTag string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+name, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request for %s: %w", name, err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxRegistryBytes))
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", name, err)
		}
		return body, resp.Header.Get("Etag"), nil
	case http.StatusNotModified:
		return nil, "", nil
	default:
		return nil, "", fmt.Errorf("fetch %s: unexpected status %s", name, resp.Status)
	}
}

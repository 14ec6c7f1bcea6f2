// Package webcache contains http utils to deal with remote rate services:
// a disk cache transport and GET helpers.
package webcache

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/cgt/date"
	"github.com/rs/zerolog"
)

// DiskCache is an http.RoundTripper storing successful GET responses on disk.
// Entries are keyed by the current Period so they expire when it rolls over.
type DiskCache struct {
	Base   http.RoundTripper
	Dir    string
	Period date.Period
	Log    zerolog.Logger

	today func() date.Date
}

// RoundTrip implements the http.RoundTripper interface. It checks for a cached
// response on disk first. If none is found, it proceeds with the actual HTTP
// request and caches the new response if it's successful.
func (c *DiskCache) RoundTrip(req *http.Request) (*http.Response, error) {
	base := c.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Method != http.MethodGet {
		return base.RoundTrip(req)
	}

	key := c.key(req)
	if cached, err := c.get(key, req); err == nil {
		c.Log.Debug().Str("url", req.URL.String()).Msg("disk cache hit")
		return cached, nil
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.Log.Info().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Msg("http request")
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	if err := c.put(key, resp); err != nil {
		c.Log.Warn().Err(err).Msg("cache write failed (ignored)")
	}
	return resp, nil
}

func (c *DiskCache) key(req *http.Request) string {
	today := date.Today
	if c.today != nil {
		today = c.today
	}
	rangeID := date.Key(today(), c.Period)
	key := fmt.Sprintf("%s %s %s", rangeID, req.Method, req.URL.String())
	return fmt.Sprintf("ukcgt-%s-%x", c.Period, sha1.Sum([]byte(key)))
}

func (c *DiskCache) dir() string {
	if c.Dir == "" {
		return os.TempDir()
	}
	return c.Dir
}

// get retrieves a cached response from disk
func (c *DiskCache) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(filepath.Join(c.dir(), key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(content)), req)
}

// put stores a response to disk cache. DumpResponse leaves resp.Body readable.
func (c *DiskCache) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir(), key), content, 0o644)
}

// Options configures NewClient.
type Options struct {
	Timeout time.Duration
	// Cache enables the disk cache.
	Cache  bool
	Dir    string
	Period date.Period
	Log    zerolog.Logger
}

// NewClient returns an http.Client, caching on disk when enabled.
func NewClient(opts Options) *http.Client {
	client := &http.Client{Timeout: opts.Timeout}
	if opts.Cache {
		client.Transport = &DiskCache{
			Base:   http.DefaultTransport,
			Dir:    opts.Dir,
			Period: opts.Period,
			Log:    opts.Log.With().Str("component", "webcache").Logger(),
		}
	}
	return client
}

// StatusError is returned for a non 200 response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot http GET %s: %s", e.URL, e.Status)
}

// Get performs an HTTP GET request and returns the body of a 200 response.
func Get(ctx context.Context, client *http.Client, addr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: addr, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return io.ReadAll(resp.Body)
}

// GetJSON performs an HTTP GET request and unmarshals the JSON response into data.
func GetJSON(ctx context.Context, client *http.Client, addr string, data any) error {
	body, err := Get(ctx, client, addr)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, data)
}

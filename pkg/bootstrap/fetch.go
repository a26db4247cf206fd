package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/odvcencio/hgbridge/pkg/bridge"
	"github.com/odvcencio/hgbridge/pkg/config"
	"github.com/odvcencio/hgbridge/pkg/repo"
)

// Fetcher opens the metadata bundle found at a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (io.ReadCloser, error)
}

// StatusError reports a non-retryable HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// HTTPFetcher downloads bundles over HTTP. Network errors, 429 and 5xx
// responses are retried with exponential backoff; other 4xx responses fail
// immediately.
type HTTPFetcher struct {
	Client      *http.Client
	MaxAttempts int
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
	// Token, when set, is sent as a bearer token. Otherwise credentials
	// embedded in the URL are used for basic auth.
	Token string
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout and
// attempt budget. HGBRIDGE_TOKEN supplies a bearer token.
func NewHTTPFetcher(timeout time.Duration, maxAttempts int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		Client:          &http.Client{Timeout: timeout},
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Second,
		Token:           strings.TrimSpace(os.Getenv("HGBRIDGE_TOKEN")),
	}
}

func (f *HTTPFetcher) backoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if f.InitialInterval > 0 {
		bo.InitialInterval = f.InitialInterval
	}
	bo.MaxElapsedTime = 0
	attempts := f.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)
}

// Fetch downloads rawURL. The response body is decompressed when the
// server used zstd or gzip content encoding.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	user := u.User
	u.User = nil
	target := u.String()

	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept-Encoding", "zstd, gzip")
		switch {
		case f.Token != "":
			req.Header.Set("Authorization", "Bearer "+f.Token)
		case user != nil:
			pass, _ := user.Password()
			req.SetBasicAuth(user.Username(), pass)
		}
		r, err := f.Client.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode < 400 {
			resp = r
			return nil
		}
		_, _ = io.Copy(io.Discard, r.Body)
		r.Body.Close()
		statusErr := &StatusError{URL: target, Status: r.StatusCode}
		if isRetryableStatus(r.StatusCode) {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}
	if err := backoff.Retry(op, f.backoff(ctx)); err != nil {
		return nil, err
	}
	return decodeBody(resp)
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	enc := strings.ToLower(resp.Header.Get("Content-Encoding"))
	switch {
	case strings.Contains(enc, "zstd"):
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch: zstd: %w", err)
		}
		return &decodedBody{Reader: dec, close: func() error { dec.Close(); return resp.Body.Close() }}, nil
	case strings.Contains(enc, "gzip"):
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch: gzip: %w", err)
		}
		return &decodedBody{Reader: zr, close: func() error { zr.Close(); return resp.Body.Close() }}, nil
	}
	return resp.Body, nil
}

type decodedBody struct {
	io.Reader
	close func() error
}

func (d *decodedBody) Close() error { return d.close() }

// ---------------------------------------------------------------------------
// Local sources
// ---------------------------------------------------------------------------

// FileFetcher opens a bundle file on disk.
type FileFetcher struct{}

// Fetch opens path.
func (FileFetcher) Fetch(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return f, nil
}

// PeerFetcher publishes the metadata of another repository on the fly.
type PeerFetcher struct {
	Logger *zap.SugaredLogger
}

// Fetch opens the repository at path and returns its published metadata.
func (p PeerFetcher) Fetch(_ context.Context, path string) (io.ReadCloser, error) {
	r, err := repo.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	s, err := bridge.Open(r, bridge.Options{Logger: p.Logger})
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer s.Close()
	var buf bytes.Buffer
	if _, err := Publish(&buf, s); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return io.NopCloser(&buf), nil
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// Dispatcher picks a fetcher by location: http and https URLs go over the
// network, directories holding a repository are read as peers, anything
// else is a bundle file. file:// URLs are accepted for local locations.
type Dispatcher struct {
	HTTP *HTTPFetcher
	Peer PeerFetcher
	File FileFetcher
}

// NewFetcher returns a Dispatcher configured from cfg.
func NewFetcher(cfg *config.Config, log *zap.SugaredLogger) *Dispatcher {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Dispatcher{
		HTTP: NewHTTPFetcher(cfg.Remote.TimeoutDuration(), cfg.Remote.MaxAttempts),
		Peer: PeerFetcher{Logger: log},
	}
}

// Fetch opens location with the matching fetcher.
func (d *Dispatcher) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	if u, err := url.Parse(location); err == nil {
		switch u.Scheme {
		case "http", "https":
			return d.HTTP.Fetch(ctx, location)
		case "file":
			location = u.Path
		}
	}
	if st, err := os.Stat(filepath.Join(location, repo.DirName)); err == nil && st.IsDir() {
		return d.Peer.Fetch(ctx, location)
	}
	return d.File.Fetch(ctx, location)
}

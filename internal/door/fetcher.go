package door

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "doorbot/pkg/logx"
)

const (
	statusPath          = "/api/status"
	DefaultTimeout      = 10 * time.Second
	maxResponseBodySize = 1 << 20
)

// StatusURL returns the status endpoint for base. A base that already
// ends in /api/status is used verbatim.
func StatusURL(base string) string {
	if strings.HasSuffix(base, statusPath) {
		return base
	}
	return strings.TrimRight(base, "/") + statusPath
}

// Fetcher performs one GET against the status endpoint per call.
type Fetcher struct {
	url     string
	client  *http.Client
	timeout time.Duration
	log     logx.Logger
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default client. Its own Timeout is left alone.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithTimeout bounds a single fetch. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithLogger(l logx.Logger) Option {
	return func(f *Fetcher) { f.log = l }
}

func New(baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		url:     StatusURL(baseURL),
		client:  &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(f)
	}
	f.log = f.log.With(logx.String("comp", "door"))
	return f
}

// URL returns the resolved endpoint.
func (f *Fetcher) URL() string { return f.url }

// Fetch returns the current status. Every failure collapses to Unknown and
// is logged at WARN.
func (f *Fetcher) Fetch(ctx context.Context) Status {
	st, err := f.FetchDetail(ctx)
	if err != nil {
		f.log.Warn("door status fetch failed", logx.String("url", f.url), logx.Err(err))
	}
	return st
}

// FetchDetail is Fetch with the failure reason. The status is Unknown
// whenever err is non-nil.
func (f *Fetcher) FetchDetail(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Unknown, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Unknown, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Unknown, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Unknown, fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}
	return parseBody(body)
}

var errNoStatus = errors.New("response has no string \"status\" field")

func parseBody(body []byte) (Status, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &obj); err != nil {
		return Unknown, fmt.Errorf("decode json object: %w", err)
	}
	raw, ok := obj["status"]
	if !ok {
		return Unknown, errNoStatus
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Unknown, errNoStatus
	}
	st := Normalize(s)
	if st == Unknown {
		return Unknown, fmt.Errorf("unrecognized status value %q", s)
	}
	return st, nil
}

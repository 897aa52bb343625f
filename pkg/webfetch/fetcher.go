// Package webfetch retrieves web pages and reduces them to readable text.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/version"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxBytes = 2 << 20 // 2 MiB
	maxRedirects    = 5
)

var (
	// ErrFetchTimeout indicates the request exceeded its deadline.
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrTooLarge indicates the response body exceeded the size cap.
	ErrTooLarge = errors.New("response too large")

	// ErrUnsupportedType indicates a content type outside the text gate.
	ErrUnsupportedType = errors.New("unsupported content type")

	// ErrNetwork indicates a transport-level failure.
	ErrNetwork = errors.New("network error")
)

// HTTPError is a non-2xx response status.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.Code)
}

// allowedTypes gates response content types before the body is read.
var allowedTypes = []string{"text/html", "text/plain", "application/xhtml+xml"}

// Result is the readable outcome of one fetch.
type Result struct {
	RawText   string
	Title     string
	FinalURL  string
	FetchedAt time.Time
	Status    int
}

// Options configure a Fetcher.
type Options struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// Fetcher performs bounded HTTP GETs with readable-text extraction.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// New creates a Fetcher with redirect and timeout limits applied.
func New(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = version.Full()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxBytes:  maxBytes,
		userAgent: userAgent,
	}
}

// Fetch GETs the URL and returns its readable text. The final URL reflects
// any redirects followed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrFetchTimeout, rawURL)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{Code: resp.StatusCode}
	}

	mediaType := resp.Header.Get("Content-Type")
	if mt, _, mimeErr := mime.ParseMediaType(mediaType); mimeErr == nil {
		mediaType = mt
	}
	if !typeAllowed(mediaType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrFetchTimeout, rawURL)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, f.maxBytes)
	}

	content := string(body)
	result := &Result{
		FinalURL:  resp.Request.URL.String(),
		FetchedAt: time.Now().UTC(),
		Status:    resp.StatusCode,
	}
	if mediaType == "text/plain" {
		result.RawText = CollapseWhitespace(content)
	} else {
		result.RawText = ExtractReadable(content)
		result.Title = ExtractTitle(content)
	}
	return result, nil
}

func typeAllowed(mediaType string) bool {
	for _, t := range allowedTypes {
		if strings.HasPrefix(mediaType, t) {
			return true
		}
	}
	return false
}

func isClientTimeout(err error) bool {
	var uerr interface{ Timeout() bool }
	return errors.As(err, &uerr) && uerr.Timeout()
}

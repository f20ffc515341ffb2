package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/andybalholm/cascadia"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tngbot/internal/observe"
	"github.com/MrWong99/tngbot/internal/resilience"
	"github.com/MrWong99/tngbot/internal/script"
)

const (
	// DefaultBaseURL is the transcript site.
	DefaultBaseURL = "http://www.chakoteya.net"

	defaultConcurrency = 4
	defaultTimeout     = 30 * time.Second
	defaultMaxFailures = 10

	defaultMaxPageBytes = 8 << 20
)

var (
	fontSel = cascadia.MustCompile("font")
	linkSel = cascadia.MustCompile("a[href]")
)

var (
	// ErrEmptyListing is returned when an episode listing names no transcripts.
	ErrEmptyListing = errors.New("source: listing names no transcripts")

	// ErrPageTooLarge is returned for a transcript larger than the page limit.
	ErrPageTooLarge = errors.New("source: page too large")
)

// Result summarises one download run.
type Result struct {
	Series     string
	Listed     int
	Downloaded int
	Failed     int
}

// Fetcher downloads transcripts into a [Cache].
type Fetcher struct {
	cache       *Cache
	client      *http.Client
	baseURL     string
	concurrency int
	maxFailures int

	// maxPageBytes caps a single download; transcripts are well below it.
	maxPageBytes int64
	metrics      *observe.Metrics
}

// Option configures a [Fetcher].
type Option func(*Fetcher)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithBaseURL points the fetcher at another host, mainly for tests.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.baseURL = u
		}
	}
}

// WithConcurrency bounds the number of parallel downloads.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithMaxFailures sets how many downloads in a row may fail for transport
// reasons before the rest of the run is skipped. Default: 10.
func WithMaxFailures(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxFailures = n
		}
	}
}

// WithMaxPageBytes sets the largest transcript accepted. Larger pages fail
// to download instead of being cached cut short. Default: 8 MiB.
func WithMaxPageBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxPageBytes = n
		}
	}
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// NewFetcher returns a fetcher that stores into cache.
func NewFetcher(cache *Cache, opts ...Option) *Fetcher {
	f := &Fetcher{
		cache: cache,
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:      DefaultBaseURL,
		concurrency:  defaultConcurrency,
		maxFailures:  defaultMaxFailures,
		maxPageBytes: defaultMaxPageBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// ScriptURLs reads the episode listing of s and returns the transcript URLs
// in listing order. Each matching table cell contributes the first link
// inside its first font element.
func (f *Fetcher) ScriptURLs(ctx context.Context, s Series) ([]string, error) {
	listing, err := url.Parse(f.baseURL + s.Path + "episodes.htm")
	if err != nil {
		return nil, fmt.Errorf("source: listing url for %s: %w", s.Code, err)
	}

	body, status, err := f.get(ctx, listing.String())
	if err != nil {
		return nil, fmt.Errorf("source: fetch listing for %s: %w", s.Code, err)
	}
	defer body.Close()
	if status != http.StatusOK {
		return nil, fmt.Errorf("source: fetch listing for %s: status %d", s.Code, status)
	}

	doc, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("source: parse listing for %s: %w", s.Code, err)
	}
	cellSel, err := cascadia.Compile(fmt.Sprintf("td[bgcolor=%q]", s.BGColor))
	if err != nil {
		return nil, fmt.Errorf("source: listing selector for %s: %w", s.Code, err)
	}

	var urls []string
	for _, cell := range cascadia.QueryAll(doc, cellSel) {
		font := cascadia.Query(cell, fontSel)
		if font == nil {
			continue
		}
		a := cascadia.Query(font, linkSel)
		if a == nil {
			continue
		}
		ref, err := url.Parse(attr(a, "href"))
		if err != nil {
			slog.Debug("source: skipping malformed link", "series", s.Code, "err", err)
			continue
		}
		urls = append(urls, listing.ResolveReference(ref).String())
	}
	return urls, nil
}

// Fetch downloads every transcript of the series into the cache, replacing
// whatever was there. Pages that fail to download are logged and skipped;
// the cache then stays invalid and the next call retries.
func (f *Fetcher) Fetch(ctx context.Context, code string) (Result, error) {
	s, err := Lookup(code)
	if err != nil {
		return Result{}, err
	}
	ctx, span := observe.StartSpan(ctx, "source.fetch")
	defer span.End()
	log := observe.Logger(ctx).With("series", s.Code)

	urls, err := f.ScriptURLs(ctx, s)
	if err != nil {
		return Result{}, err
	}
	if len(urls) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyListing, s.Code)
	}
	if err := f.cache.reset(s.Code); err != nil {
		return Result{}, err
	}

	res := Result{Series: s.Code, Listed: len(urls)}
	var downloaded, failed atomic.Int32
	site := resilience.New("source "+s.Code, resilience.WithMaxFailures(f.maxFailures))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			name := strconv.Itoa(i+1) + ".html"
			err := f.guardedDownload(gctx, site, u, filepath.Join(f.cache.Dir(s.Code), name))
			switch {
			case err == nil:
				downloaded.Add(1)
				f.metrics.RecordDownload(gctx, s.Code, observe.StatusOK)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				f.metrics.RecordDownload(gctx, s.Code, observe.StatusError)
				log.Warn("source: download failed", "url", u, "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("source: fetch %s: %w", s.Code, err)
	}

	res.Downloaded = int(downloaded.Load())
	res.Failed = int(failed.Load())
	if err := f.cache.writeMeta(s.Code, len(urls)); err != nil {
		return res, fmt.Errorf("source: write meta for %s: %w", s.Code, err)
	}
	log.Info("source: series downloaded", "listed", res.Listed, "downloaded", res.Downloaded, "failed", res.Failed)
	return res, nil
}

// Documents returns the cached transcripts of the series, downloading them
// first when the cache is missing or incomplete.
func (f *Fetcher) Documents(ctx context.Context, code string) ([]script.Document, error) {
	s, err := Lookup(code)
	if err != nil {
		return nil, err
	}
	st, err := f.cache.Status(s.Code)
	if err != nil {
		return nil, err
	}
	if !st.Valid() {
		slog.Info("source: cache invalid, downloading", "series", s.Code, "total", st.Total, "files", st.Files)
		if _, err := f.Fetch(ctx, s.Code); err != nil {
			return nil, err
		}
	}
	return f.cache.Documents(s.Code)
}

// statusError is a non-200 answer for a single page.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("status %d", e.code) }

// guardedDownload runs download through the site breaker. A missing or
// oversized page says nothing about the site, so only transport errors and
// 5xx answers count towards opening it.
func (f *Fetcher) guardedDownload(ctx context.Context, site *resilience.Breaker, u, dst string) error {
	var pageErr error
	err := site.Do(ctx, func(ctx context.Context) error {
		pageErr = f.download(ctx, u, dst)
		var se *statusError
		if errors.As(pageErr, &se) && se.code < http.StatusInternalServerError {
			return nil
		}
		if errors.Is(pageErr, ErrPageTooLarge) {
			return nil
		}
		return pageErr
	})
	if err != nil {
		return err
	}
	return pageErr
}

func (f *Fetcher) download(ctx context.Context, u, dst string) error {
	body, status, err := f.get(ctx, u)
	if err != nil {
		return err
	}
	defer body.Close()
	if status != http.StatusOK {
		return &statusError{code: status}
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(body, f.maxPageBytes+1))
	if err == nil && n > f.maxPageBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrPageTooLarge, f.maxPageBytes)
	}
	if err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// get issues a GET and returns the body unless the request itself failed.
// The caller closes the body.
func (f *Fetcher) get(ctx context.Context, u string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return http.NoBody, resp.StatusCode, nil
	}
	return resp.Body, resp.StatusCode, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

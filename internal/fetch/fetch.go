// Package fetch implements the Fetcher orchestrator: pre-flight checks,
// browser-backed navigation, content-type dispatch, retry with backoff, and
// error classification. Grounded on the teacher's internal/crawler.Crawler
// orchestration loop and ExponentialRetryPolicy, generalized from a
// crawl-job pipeline to a single synchronous fetch/fetch_batch call.
package fetch

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/r3co87/iris/internal/cache"
	"github.com/r3co87/iris/internal/config"
	"github.com/r3co87/iris/internal/driver"
	"github.com/r3co87/iris/internal/extract/html"
	"github.com/r3co87/iris/internal/extract/pdf"
	"github.com/r3co87/iris/internal/metrics"
	"github.com/r3co87/iris/internal/model"
	"github.com/r3co87/iris/internal/ratelimit"
	"github.com/r3co87/iris/internal/robots"
	"github.com/r3co87/iris/internal/wait"

	"golang.org/x/sync/errgroup"
)

// Clock is the time source the Fetcher uses for elapsed_ms and rate-limit
// wait measurement, narrowed so tests can substitute a fake.
type Clock interface {
	Now() time.Time
}

// MaxBatchSize is the hard cap on POST /batch's requests array.
const MaxBatchSize = 10

// Fetcher coordinates one fetch() or fetch_batch() call end to end.
type Fetcher struct {
	cfg       config.Config
	logger    *zap.Logger
	drv       driver.Driver
	limiter   *ratelimit.Limiter
	robots    *robots.Policy
	cacheSt   *cache.Store
	extractor *html.Extractor
	clock     Clock
	breakers  *breakerRegistry
	sem       chan struct{}

	baseDelay time.Duration
	maxDelay  time.Duration
}

// New builds a Fetcher. sem is sized by cfg.MaxConcurrent (bounds browser
// pages in flight across every concurrent fetch/batch call).
func New(cfg config.Config, logger *zap.Logger, drv driver.Driver, limiter *ratelimit.Limiter, robotsPolicy *robots.Policy, cacheSt *cache.Store, extractor *html.Extractor, clock Clock) *Fetcher {
	return &Fetcher{
		cfg:       cfg,
		logger:    logger,
		drv:       drv,
		limiter:   limiter,
		robots:    robotsPolicy,
		cacheSt:   cacheSt,
		extractor: extractor,
		clock:     clock,
		breakers:  newBreakerRegistry(logger),
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		baseDelay: 250 * time.Millisecond,
		maxDelay:  5 * time.Second,
	}
}

// Fetch runs one request through the full pipeline. It never returns a Go
// error: every failure mode is surfaced as a populated FetchResult.Error.
func (f *Fetcher) Fetch(ctx context.Context, req model.FetchRequest) model.FetchResult {
	start := f.clock.Now()

	if err := validateURL(req.URL); err != nil {
		return f.finish(req.URL, start, "", model.NewFetchError(model.ErrInvalidURL, err.Error()))
	}

	var fp string
	if req.Cache && f.cacheSt.Up() {
		var err error
		fp, err = cache.Fingerprint(req)
		if err == nil {
			if cached, hit := f.cacheSt.Get(ctx, fp); hit {
				metrics.ObserveCacheHit()
				return cached
			}
			metrics.ObserveCacheMiss()
		}
	}

	if f.cfg.RespectRobotsTxt && !f.robots.Allowed(ctx, req.URL) {
		metrics.ObserveRobotsDenied()
		return f.finish(req.URL, start, "", model.NewFetchError(model.ErrBlockedByRobots, "disallowed by robots.txt"))
	}

	domain, err := ratelimit.RegistrableDomain(req.URL)
	if err != nil {
		return f.finish(req.URL, start, "", model.NewFetchError(model.ErrInvalidURL, err.Error()))
	}
	rlStart := f.clock.Now()
	if err := f.limiter.Acquire(ctx, domain); err != nil {
		return f.finish(req.URL, start, "", model.NewFetchError(model.ErrTimeout, "rate limit wait canceled: "+err.Error()))
	}
	metrics.ObserveRateLimitDelay(domain, f.clock.Now().Sub(rlStart))

	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return f.finish(req.URL, start, "", model.NewFetchError(model.ErrTimeout, "concurrency wait canceled"))
	}

	result, fetchErr := f.attemptLoop(ctx, req, domain)
	result.ContentText = truncate(result.ContentText, f.cfg.MaxContentBytes)

	final := f.finish(req.URL, start, result.ContentType, fetchErr)
	if fetchErr != nil {
		return final
	}
	result.URL = final.URL
	result.ElapsedMs = final.ElapsedMs
	result.Cached = false

	if req.Cache && fp != "" && f.cacheSt.Up() {
		f.cacheSt.Put(ctx, fp, result, 0)
	}
	return result
}

// FetchBatch runs up to MaxBatchSize requests concurrently, each
// independently subject to per-domain rate limiting and the shared
// concurrency semaphore. Results preserve request order; one item's error
// never fails the batch call itself.
func (f *Fetcher) FetchBatch(ctx context.Context, reqs []model.FetchRequest) ([]model.FetchResult, error) {
	if len(reqs) > MaxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(reqs), MaxBatchSize)
	}
	results := make([]model.FetchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			results[i] = f.Fetch(gctx, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	return results, nil
}

// attemptLoop runs the bounded retry iteration described in the fetcher's
// state machine: each attempt is init -> navigating -> waiting ->
// extracting -> done, or fails(kind) from any phase.
func (f *Fetcher) attemptLoop(ctx context.Context, req model.FetchRequest, domain string) (model.FetchResult, *model.FetchError) {
	breaker := f.breakers.forDomain(domain)
	var lastErr *model.FetchError

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		out, err := breaker.Execute(func() (any, error) {
			res, ferr := f.attempt(ctx, req)
			if ferr != nil {
				return model.FetchResult{}, ferr
			}
			return res, nil
		})
		if err == nil {
			return out.(model.FetchResult), nil
		}

		var ferr *model.FetchError
		if !errors.As(err, &ferr) {
			ferr = model.NewFetchError(model.ErrBrowser, err.Error())
		}
		lastErr = ferr
		metrics.ObserveRetry(string(ferr.Kind))

		if !ferr.Retryable || attempt == f.cfg.MaxRetries {
			break
		}
		if sleepErr := f.sleepBackoff(ctx, attempt); sleepErr != nil {
			lastErr = model.NewFetchError(model.ErrTimeout, "backoff sleep canceled")
			break
		}
	}
	return model.FetchResult{}, lastErr
}

// attempt performs one navigate/wait/extract cycle on a freshly opened page.
func (f *Fetcher) attempt(ctx context.Context, req model.FetchRequest) (model.FetchResult, *model.FetchError) {
	timeout := f.effectiveTimeout(req)
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := f.drv.NewPage(attemptCtx)
	if err != nil {
		return model.FetchResult{}, model.NewFetchError(model.ErrBrowser, "open page: "+err.Error())
	}
	metrics.IncActivePages()
	defer func() {
		metrics.DecActivePages()
		_ = page.Close()
	}()

	nav, err := page.Navigate(attemptCtx, req.URL, req.Headers)
	if err != nil {
		return model.FetchResult{}, classifyNavError(err)
	}

	waitAfter := f.cfg.WaitAfterLoad
	if req.WaitAfterLoadMs != nil {
		waitAfter = time.Duration(*req.WaitAfterLoadMs) * time.Millisecond
	}
	strategy := req.EffectiveWaitStrategy()
	if err := wait.Apply(attemptCtx, page, strategy, req.WaitForSelector, timeout); err != nil {
		return model.FetchResult{}, model.NewFetchError(model.ErrTimeout, "wait "+string(strategy)+": "+err.Error())
	}
	if strategy != model.WaitTimeout && waitAfter > 0 {
		select {
		case <-time.After(waitAfter):
		case <-attemptCtx.Done():
			return model.FetchResult{}, model.NewFetchError(model.ErrTimeout, "wait_after_load canceled")
		}
	}

	contentType := canonicalContentType(nav.Headers.Get("Content-Type"))
	result := model.FetchResult{
		URL:         nav.FinalURL,
		StatusCode:  nav.StatusCode,
		ContentType: contentType,
	}
	switch {
	case nav.StatusCode == 429:
		return model.FetchResult{}, model.NewFetchError(model.ErrRateLimited, "upstream returned 429")
	case nav.StatusCode >= 500:
		return model.FetchResult{}, model.NewHTTPError(nav.StatusCode, fmt.Sprintf("upstream returned %d", nav.StatusCode))
	}
	// Other 4xx responses fall through to extraction: a 404 page with a
	// rendered body is a successful result carrying that status code, per
	// the "do cache successful 4xx bodies that produced content" resolution.

	if ferr := f.extract(attemptCtx, page, req, &result); ferr != nil {
		return model.FetchResult{}, ferr
	}

	if req.Screenshot {
		shot, err := page.Screenshot(attemptCtx)
		if err != nil {
			return model.FetchResult{}, model.NewFetchError(model.ErrBrowser, "screenshot: "+err.Error())
		}
		result.ScreenshotBase64 = base64.StdEncoding.EncodeToString(shot)
	}

	return result, nil
}

// extract dispatches on the canonical content type, per §4.1's closed set
// {html, pdf, json, text, image, other}.
func (f *Fetcher) extract(ctx context.Context, page driver.Page, req model.FetchRequest, result *model.FetchResult) *model.FetchError {
	switch {
	case strings.HasPrefix(result.ContentType, "text/html"):
		body, err := page.HTML(ctx)
		if err != nil {
			return model.NewFetchError(model.ErrBrowser, "read html: "+err.Error())
		}
		extracted, err := f.extractor.Extract([]byte(body), result.URL)
		if err != nil {
			return model.NewFetchError(model.ErrBrowser, "extract html: "+err.Error())
		}
		if req.ExtractText {
			result.ContentText = extracted.Text
		}
		if req.ExtractMetadata {
			result.Metadata = extracted.Metadata
			result.StructuredData = extracted.StructuredData
		}
		if req.ExtractLinks {
			result.Links = extracted.Links
		}
		return nil

	case result.ContentType == "application/pdf":
		raw, err := f.fetchRawBytes(ctx, page, result.URL)
		if err != nil {
			return model.NewFetchError(model.ErrBrowser, "fetch pdf bytes: "+err.Error())
		}
		extracted, err := pdf.Extract(raw)
		if err != nil {
			return model.NewFetchError(model.ErrBrowser, "extract pdf: "+err.Error())
		}
		if req.ExtractText {
			result.ContentText = extracted.Text
		}
		if req.ExtractMetadata {
			result.Metadata = extracted.Metadata
		}
		return nil

	case result.ContentType == "application/json":
		raw, err := page.Evaluate(ctx, "document.body.innerText")
		if err != nil {
			return model.NewFetchError(model.ErrBrowser, "read json body: "+err.Error())
		}
		if req.ExtractText {
			result.ContentText = prettyJSON(raw)
		}
		return nil

	case result.ContentType == "text/plain":
		raw, err := page.Evaluate(ctx, "document.body.innerText")
		if err != nil {
			return model.NewFetchError(model.ErrBrowser, "read text body: "+err.Error())
		}
		if req.ExtractText {
			result.ContentText = raw
		}
		return nil

	case strings.HasPrefix(result.ContentType, "image/"):
		return nil

	default:
		return model.NewFetchError(model.ErrUnsupportedContentType, "unsupported content type: "+result.ContentType)
	}
}

// fetchRawBytes retrieves a resource's raw bytes through the page's own
// fetch credentials, since a driver.Page exposes DOM/evaluate primitives but
// not a raw-body accessor. Evaluate already supports awaiting promises.
func (f *Fetcher) fetchRawBytes(ctx context.Context, page driver.Page, rawURL string) ([]byte, error) {
	expr := fmt.Sprintf(`fetch(%s).then(r=>r.arrayBuffer()).then(buf=>{
		const bytes=new Uint8Array(buf);
		let bin='';
		for (let i=0;i<bytes.length;i++){bin+=String.fromCharCode(bytes[i])}
		return btoa(bin);
	})`, jsStringLiteral(rawURL))
	encoded, err := page.Evaluate(ctx, expr)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode fetched bytes: %w", err)
	}
	return raw, nil
}

func (f *Fetcher) effectiveTimeout(req model.FetchRequest) time.Duration {
	timeout := f.cfg.PageTimeout
	if req.TimeoutMs != nil {
		requested := time.Duration(*req.TimeoutMs) * time.Millisecond
		if requested < timeout {
			timeout = requested
		}
	}
	return timeout
}

// sleepBackoff waits base*2^attempt, capped at maxDelay, with up to 50% jitter.
func (f *Fetcher) sleepBackoff(ctx context.Context, attempt int) error {
	delay := float64(f.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(f.maxDelay) {
		delay = float64(f.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	d := time.Duration(delay/2) + jitter
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func (f *Fetcher) finish(rawURL string, start time.Time, contentType string, ferr *model.FetchError) model.FetchResult {
	elapsed := f.clock.Now().Sub(start)
	kind := ""
	if ferr != nil {
		kind = string(ferr.Kind)
	}
	metrics.ObserveFetch(kind, contentType, elapsed)
	return model.FetchResult{
		URL:       rawURL,
		ElapsedMs: elapsed.Milliseconds(),
		Error:     ferr,
	}
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

func canonicalContentType(raw string) string {
	mediaType := raw
	if idx := strings.Index(raw, ";"); idx != -1 {
		mediaType = raw[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		return "text/html"
	}
	return mediaType
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

func prettyJSON(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}
	return string(pretty)
}

func jsStringLiteral(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// classifyNavError maps a driver navigation error onto the §7 error taxonomy,
// distinguishing DNS/connection/SSL/timeout the way the trigger column
// describes, falling back to connection_error for anything unrecognized.
func classifyNavError(err error) *model.FetchError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.NewFetchError(model.ErrDNS, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewFetchError(model.ErrTimeout, err.Error())
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "certificate") || strings.Contains(msg, "ssl") || strings.Contains(msg, "x509"):
		return model.NewFetchError(model.ErrSSL, err.Error())
	case strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout"):
		return model.NewFetchError(model.ErrTimeout, err.Error())
	case strings.Contains(msg, "refused") || strings.Contains(msg, "reset") || strings.Contains(msg, "no route to host"):
		return model.NewFetchError(model.ErrConnection, err.Error())
	default:
		return model.NewFetchError(model.ErrConnection, err.Error())
	}
}

// Package chromedp implements driver.Driver over headless Chrome via chromedp,
// grounded on the teacher's internal/fetcher/headless.Fetcher and
// internal/crawler.ChromedpRenderer.
package chromedp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	irisdriver "github.com/r3co87/iris/internal/driver"
	"github.com/r3co87/iris/internal/model"
)

// networkIdleWindow is how long a page must see no new in-flight requests before
// the networkidle wait strategy resolves.
const networkIdleWindow = 500 * time.Millisecond

// Driver owns one long-lived headless Chrome process.
type Driver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserCancel context.CancelFunc
	userAgent   string
}

// New launches the shared Chrome allocator and warms up one browser target.
func New(userAgent string, headless bool) (*Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Driver{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		userAgent:     userAgent,
	}, nil
}

// Up reports whether the browser target is still responsive.
func (d *Driver) Up() bool {
	if d == nil || d.browserCtx == nil {
		return false
	}
	return d.browserCtx.Err() == nil
}

// Close tears down the browser and allocator contexts.
func (d *Driver) Close(context.Context) error {
	if d == nil {
		return nil
	}
	d.browserCancel()
	d.allocCancel()
	return nil
}

// NewPage opens a fresh tab scoped to ctx's lifetime.
func (d *Driver) NewPage(ctx context.Context) (irisdriver.Page, error) {
	tabCtx, cancel := chromedp.NewContext(d.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	p := &Page{
		ctx:       tabCtx,
		cancel:    cancel,
		meta:      newResponseMeta(),
		userAgent: d.userAgent,
	}
	chromedp.ListenTarget(tabCtx, p.meta.onEvent)
	return p, nil
}

// Page is one chromedp tab, valid for a single fetch attempt.
type Page struct {
	ctx       context.Context
	cancel    context.CancelFunc
	meta      *responseMeta
	userAgent string
}

// Navigate loads rawURL and returns the captured document response metadata.
func (p *Page) Navigate(ctx context.Context, rawURL string, headers map[string]string) (irisdriver.NavResult, error) {
	actions := chromedp.Tasks{
		network.Enable(),
		setUserAgentAction(p.userAgent),
		setExtraHeadersAction(headers),
		chromedp.Navigate(rawURL),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return irisdriver.NavResult{}, fmt.Errorf("navigate: %w", err)
	}

	status, hdrs, finalURL := p.meta.snapshot()
	if finalURL == "" {
		finalURL = rawURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return irisdriver.NavResult{FinalURL: finalURL, StatusCode: status, Headers: hdrs}, nil
}

// Wait blocks until strategy's readiness condition holds, or selector's deadline
// (bounded by the timeout) expires.
func (p *Page) Wait(ctx context.Context, strategy model.WaitStrategy, selector string, timeout time.Duration) error {
	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var err error
	switch strategy {
	case model.WaitDOMContentLoaded:
		err = chromedp.Run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	case model.WaitNetworkIdle:
		err = p.meta.waitIdle(waitCtx, networkIdleWindow)
	case model.WaitSelector:
		err = chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	case model.WaitTimeout:
		err = chromedp.Run(waitCtx, chromedp.Sleep(timeout))
	default: // model.WaitLoad
		err = chromedp.Run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	if err != nil {
		return fmt.Errorf("wait %s: %w", strategy, err)
	}
	return nil
}

// HTML serializes the current document as outer HTML.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// Evaluate runs expr and returns its string-coerced result, awaiting it first
// when it evaluates to a promise.
func (p *Page) Evaluate(ctx context.Context, expr string) (string, error) {
	var result string
	awaitPromise := func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}
	if err := chromedp.Run(ctx, chromedp.EvaluateAsDevTools(expr, &result, awaitPromise)); err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return result, nil
}

// Screenshot captures a full-page PNG and returns its raw bytes; the fetch
// pipeline base64-encodes them into FetchResult.ScreenshotBase64. chromedp
// only emits PNG at quality 100 (any lower quality yields JPEG).
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// ScreenshotBase64 is a convenience wrapper for the extraction pipeline.
func (p *Page) ScreenshotBase64(ctx context.Context) (string, error) {
	raw, err := p.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Close releases the tab. Idempotent.
func (p *Page) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

func setUserAgentAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if userAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
		return nil
	})
}

func setExtraHeadersAction(headers map[string]string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(headers) == 0 {
			return nil
		}
		netHeaders := network.Headers{}
		for k, v := range headers {
			netHeaders[k] = v
		}
		if err := network.SetExtraHTTPHeaders(netHeaders).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

// responseMeta captures the document response's status/headers/URL off the wire,
// and tracks in-flight request counts for the networkidle wait strategy.
type responseMeta struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string

	inFlight  int
	idleSince time.Time
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}, idleSince: time.Now()}
}

func (m *responseMeta) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		m.mu.Lock()
		if m.status == 0 {
			m.status = int(e.Response.Status)
			m.url = e.Response.URL
			for k, v := range e.Response.Headers {
				m.headers.Add(k, fmt.Sprint(v))
			}
		}
		m.mu.Unlock()
	case *network.EventRequestWillBeSent:
		m.mu.Lock()
		m.inFlight++
		m.mu.Unlock()
	case *network.EventLoadingFinished:
		m.markFinished()
	case *network.EventLoadingFailed:
		m.markFinished()
	}
}

func (m *responseMeta) markFinished() {
	m.mu.Lock()
	if m.inFlight > 0 {
		m.inFlight--
	}
	if m.inFlight == 0 {
		m.idleSince = time.Now()
	}
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hdrs := make(http.Header, len(m.headers))
	for k, v := range m.headers {
		hdrs[k] = append([]string(nil), v...)
	}
	return m.status, hdrs, m.url
}

// waitIdle polls until no requests have been in flight for at least window.
func (m *responseMeta) waitIdle(ctx context.Context, window time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.mu.Lock()
			idle := m.inFlight == 0 && time.Since(m.idleSince) >= window
			m.mu.Unlock()
			if idle {
				return nil
			}
		}
	}
}

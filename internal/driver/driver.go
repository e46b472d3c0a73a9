// Package driver declares what the fetch pipeline demands of a browser automation
// backend without prescribing its implementation. internal/driver/chromedp is the
// concrete implementation this service ships with.
package driver

import (
	"context"
	"net/http"
	"time"

	"github.com/r3co87/iris/internal/model"
)

// NavResult carries what a Navigate call observed on the wire.
type NavResult struct {
	FinalURL   string
	StatusCode int
	Headers    http.Header
}

// Page is a scoped browser resource: acquired per fetch attempt, guaranteed
// released by Close on every exit path, including timeouts and panics in the
// caller (the caller is responsible for deferring Close immediately after
// NewPage returns).
type Page interface {
	// Navigate loads rawURL with the given extra request headers and blocks until
	// the navigation commits (not until the page is "ready" — that's Wait).
	Navigate(ctx context.Context, rawURL string, headers map[string]string) (NavResult, error)

	// Wait blocks according to strategy, per internal/wait's dispatch rules.
	// selector is only consulted when strategy == model.WaitSelector.
	Wait(ctx context.Context, strategy model.WaitStrategy, selector string, after time.Duration) error

	// HTML returns the current rendered DOM serialized as an HTML document.
	HTML(ctx context.Context) (string, error)

	// Evaluate runs a JavaScript expression and returns its string-coerced result.
	Evaluate(ctx context.Context, expr string) (string, error)

	// Screenshot captures a full-page PNG of the current render.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the page's tab/resources. Idempotent.
	Close() error
}

// Driver owns one long-lived browser process and mints page-scoped resources.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
	// Up reports whether the underlying browser process is alive.
	Up() bool
	Close(ctx context.Context) error
}

// Package model holds the data types shared across the fetch pipeline.
package model

import "time"

// WaitStrategy names the post-navigation readiness rule applied before extraction.
type WaitStrategy string

// Supported wait strategies.
const (
	WaitLoad             WaitStrategy = "load"
	WaitDOMContentLoaded WaitStrategy = "domcontentloaded"
	WaitNetworkIdle      WaitStrategy = "networkidle"
	WaitSelector         WaitStrategy = "selector"
	WaitTimeout          WaitStrategy = "timeout"
)

// ErrorKind classifies terminal fetch failures for retry and HTTP-status mapping.
type ErrorKind string

// Error kinds, mirrored from the retry/HTTP-status table.
const (
	ErrTimeout                ErrorKind = "timeout"
	ErrDNS                    ErrorKind = "dns_error"
	ErrConnection             ErrorKind = "connection_error"
	ErrSSL                    ErrorKind = "ssl_error"
	ErrBlockedByRobots        ErrorKind = "blocked_by_robots_txt"
	ErrRateLimited            ErrorKind = "rate_limited"
	ErrUnsupportedContentType ErrorKind = "unsupported_content_type"
	ErrInvalidURL             ErrorKind = "invalid_url"
	ErrHTTP                   ErrorKind = "http_error"
	ErrContentTooLarge        ErrorKind = "content_too_large"
	ErrBrowser                ErrorKind = "browser_error"
)

// retryableKinds holds the kinds that are retryable independent of HTTP status;
// ErrHTTP's retryability additionally depends on the status code (see NewHTTPError).
var retryableKinds = map[ErrorKind]bool{
	ErrTimeout:                true,
	ErrDNS:                    true,
	ErrConnection:             true,
	ErrSSL:                    false,
	ErrBlockedByRobots:        false,
	ErrRateLimited:            true,
	ErrUnsupportedContentType: false,
	ErrInvalidURL:             false,
	ErrContentTooLarge:        false,
	ErrBrowser:                false,
}

// FetchError is the terminal error classification carried in FetchResult.Error.
type FetchError struct {
	Kind       ErrorKind `json:"type"`
	Message    string    `json:"message"`
	Retryable  bool      `json:"retryable"`
	HTTPStatus int       `json:"http_status,omitempty"`
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// NewFetchError builds a FetchError, deriving Retryable from the kind's default.
func NewFetchError(kind ErrorKind, message string) *FetchError {
	return &FetchError{Kind: kind, Message: message, Retryable: retryableKinds[kind]}
}

// NewHTTPError builds an http_error FetchError, retryable only for 502/503/504.
func NewHTTPError(status int, message string) *FetchError {
	retryable := status == 502 || status == 503 || status == 504
	return &FetchError{Kind: ErrHTTP, Message: message, Retryable: retryable, HTTPStatus: status}
}

// FetchRequest is the decoded body of POST /fetch and each element of POST /batch.
type FetchRequest struct {
	URL             string            `json:"url"`
	ExtractText     bool              `json:"extract_text"`
	ExtractMetadata bool              `json:"extract_metadata"`
	ExtractLinks    bool              `json:"extract_links"`
	Screenshot      bool              `json:"screenshot"`
	Cache           bool              `json:"cache"`
	WaitStrategy    WaitStrategy      `json:"wait_strategy"`
	WaitForSelector string            `json:"wait_for_selector"`
	WaitAfterLoadMs *int              `json:"wait_after_load_ms,omitempty"`
	TimeoutMs       *int              `json:"timeout_ms,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
}

// EffectiveWaitStrategy applies the tie-break: a non-empty WaitForSelector always
// coerces the strategy to "selector" regardless of the request's declared value.
func (r FetchRequest) EffectiveWaitStrategy() WaitStrategy {
	if r.WaitForSelector != "" {
		return WaitSelector
	}
	if r.WaitStrategy == "" {
		return WaitLoad
	}
	return r.WaitStrategy
}

// Link is a single resolved hyperlink extracted from the document.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
	Rel  string `json:"rel,omitempty"`
}

// Metadata is the normalized set of document-level metadata fields.
type Metadata struct {
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	CanonicalURL   string `json:"canonical_url,omitempty"`
	Language       string `json:"language,omitempty"`
	Author         string `json:"author,omitempty"`
	PublishedTime  string `json:"published_time,omitempty"`
	PDFPages       int    `json:"pdf_pages,omitempty"`
	PDFCreatedDate string `json:"pdf_created_date,omitempty"`
}

// StructuredData aggregates the JSON-LD payloads and flattened microdata items found
// in the document, plus the distinct set of schema.org types they reference.
type StructuredData struct {
	JSONLD          []map[string]any `json:"json_ld,omitempty"`
	Microdata       []map[string]any `json:"microdata,omitempty"`
	SchemaOrgTypes  []string         `json:"schema_org_types,omitempty"`
}

// FetchResult is the outcome of one fetch() call, success or terminal failure.
type FetchResult struct {
	URL              string          `json:"url"`
	StatusCode       int             `json:"status_code,omitempty"`
	ContentText      string          `json:"content_text,omitempty"`
	ContentType      string          `json:"content_type,omitempty"`
	Metadata         Metadata        `json:"metadata,omitempty"`
	Links            []Link          `json:"links,omitempty"`
	StructuredData   StructuredData  `json:"structured_data,omitempty"`
	ScreenshotBase64 string          `json:"screenshot_base64,omitempty"`
	ElapsedMs        int64           `json:"elapsed_ms"`
	Cached           bool            `json:"cached"`
	Error            *FetchError     `json:"error,omitempty"`
}

// BatchRequest is the decoded body of POST /batch.
type BatchRequest struct {
	Requests []FetchRequest `json:"requests"`
}

// BatchResponse is the response body of POST /batch, results in request order.
type BatchResponse struct {
	Results []FetchResult `json:"results"`
}

// HealthResponse is the response body of GET /health.
type HealthResponse struct {
	Status  string        `json:"status"`
	Browser BrowserHealth `json:"browser"`
	Cache   CacheHealth   `json:"cache"`
	Version string        `json:"version"`

	UptimeSeconds int64 `json:"uptime_seconds"`
	ActivePages   int   `json:"active_pages"`
}

// BrowserHealth reports the headless browser's reachability and backend type.
type BrowserHealth struct {
	Up   bool   `json:"up"`
	Type string `json:"type"`
}

// CacheHealth reports the response cache's store reachability and hit/miss counters.
type CacheHealth struct {
	Up     bool  `json:"up"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Now is the single time source the fetch pipeline uses, overridable in tests.
var Now = time.Now

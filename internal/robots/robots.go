// Package robots implements the per-origin robots.txt policy cache described
// in spec §4.7: short-timeout fetch, temoto/robotstxt rule parsing, a
// Redis-backed cache tier beneath an in-process one, and fail-open semantics
// on any fetch or parse failure. Grounded on the teacher's
// internal/crawler.RobotsEnforcer and original_source's robots_handler.py.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// failOpenTTL bounds how long a fetch-failure sentinel "allow all" entry is
// trusted, shorter than the normal TTL so a transient outage self-heals
// without hammering the origin every request in the meantime.
const failOpenTTL = 5 * time.Minute

const maxRedirects = 2

// Policy answers "is this URL allowed for this user agent" per origin,
// caching the parsed rule table with TTL and failing open on any error.
type Policy struct {
	client    *http.Client
	redis     *goredis.Client
	respect   bool
	userAgent string
	cacheTTL  time.Duration
	logger    *zap.Logger

	cache sync.Map // origin -> *cacheEntry
}

type cacheEntry struct {
	data      *robotstxt.RobotsData
	expiresAt time.Time
}

// New builds a Policy. When respect is false, Allowed always returns true and
// no network or store access ever happens. redisClient may be nil.
func New(respect bool, userAgent string, redisClient *goredis.Client, cacheTTL time.Duration, logger *zap.Logger) *Policy {
	return &Policy{
		client:    &http.Client{Timeout: 5 * time.Second, CheckRedirect: limitedSameSchemeRedirects},
		redis:     redisClient,
		respect:   respect,
		userAgent: userAgent,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// Allowed implements the RobotsPolicy contract: allowed(url, user_agent) -> bool.
func (p *Policy) Allowed(ctx context.Context, rawURL string) bool {
	if !p.respect {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}
	origin := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)

	data, err := p.load(ctx, origin)
	if err != nil {
		p.logger.Warn("robots fetch failed; failing open", zap.String("origin", origin), zap.Error(err))
		return true
	}
	group := data.FindGroup(p.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

func (p *Policy) load(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	if v, ok := p.cache.Load(origin); ok {
		entry := v.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.data, nil
		}
	}

	if p.redis != nil {
		if body, err := p.redis.Get(ctx, robotsKey(origin)).Result(); err == nil {
			if data, perr := robotstxt.FromBytes([]byte(body)); perr == nil {
				p.store(origin, data, p.cacheTTL)
				return data, nil
			}
		}
	}

	body, fetchErr := p.fetch(ctx, origin)
	if fetchErr != nil {
		sentinel, _ := robotstxt.FromBytes([]byte("User-agent: *\nAllow: /"))
		p.store(origin, sentinel, failOpenTTL)
		return nil, fetchErr
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		sentinel, _ := robotstxt.FromBytes([]byte("User-agent: *\nAllow: /"))
		p.store(origin, sentinel, failOpenTTL)
		return nil, fmt.Errorf("parse robots.txt for %s: %w", origin, err)
	}

	p.store(origin, data, p.cacheTTL)
	if p.redis != nil {
		if err := p.redis.Set(ctx, robotsKey(origin), body, p.cacheTTL).Err(); err != nil {
			p.logger.Debug("robots redis cache write failed", zap.String("origin", origin), zap.Error(err))
		}
	}
	return data, nil
}

func (p *Policy) store(origin string, data *robotstxt.RobotsData, ttl time.Duration) {
	p.cache.Store(origin, &cacheEntry{data: data, expiresAt: time.Now().Add(ttl)})
}

func (p *Policy) fetch(ctx context.Context, origin string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt body: %w", err)
	}
	return body, nil
}

func robotsKey(origin string) string {
	return "robots:" + origin
}

// limitedSameSchemeRedirects implements the open-question resolution: follow
// up to maxRedirects redirects and only within the same scheme; anything else
// aborts the redirect chase so the caller's error path triggers fail-open.
func limitedSameSchemeRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != via[0].URL.Scheme {
		return fmt.Errorf("cross-scheme redirect from %s to %s", via[0].URL.Scheme, req.URL.Scheme)
	}
	return nil
}

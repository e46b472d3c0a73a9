package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	hashsha256 "github.com/r3co87/iris/internal/hash/sha256"
	"github.com/r3co87/iris/internal/model"
)

var hasher = hashsha256.New()

// Fingerprint computes the SHA-256 cache key per spec §4.5: a digest over the
// canonical JSON of {normalized_url, extract_flags, wait_config,
// custom_header_digest}. Go's encoding/json marshals map keys in sorted
// order, which gives the order-independence the fingerprint invariant
// requires for free.
func Fingerprint(req model.FetchRequest) (string, error) {
	normalized, err := normalizeURL(req.URL)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}

	payload := struct {
		NormalizedURL string         `json:"normalized_url"`
		ExtractFlags  map[string]any `json:"extract_flags"`
		WaitConfig    map[string]any `json:"wait_config"`
		HeaderDigest  string         `json:"custom_header_digest"`
	}{
		NormalizedURL: normalized,
		ExtractFlags: map[string]any{
			"extract_text":     req.ExtractText,
			"extract_metadata": req.ExtractMetadata,
			"extract_links":    req.ExtractLinks,
			"screenshot":       req.Screenshot,
		},
		WaitConfig: map[string]any{
			"wait_strategy":      req.EffectiveWaitStrategy(),
			"wait_for_selector":  req.WaitForSelector,
			"wait_after_load_ms": req.WaitAfterLoadMs,
			"timeout_ms":         req.TimeoutMs,
		},
		HeaderDigest: headerDigest(req.Headers),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint payload: %w", err)
	}
	digest, err := hasher.Hash(raw)
	if err != nil {
		return "", fmt.Errorf("hash fingerprint payload: %w", err)
	}
	return digest, nil
}

// normalizeURL lowercases scheme/host, strips the default port and fragment,
// and sorts query parameters, per spec §4.5's normalization rule.
func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}

func headerDigest(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	lowered := make(map[string]string, len(headers))
	keys := make([]string, 0, len(headers))
	for k, v := range headers {
		lk := strings.ToLower(k)
		lowered[lk] = v
		keys = append(keys, lk)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(lowered[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

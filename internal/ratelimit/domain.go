package ratelimit

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain computes the eTLD+1 for rawURL's host, the key every bucket
// and rate-limit state is keyed under. golang.org/x/net is already pulled in
// transitively via goquery; publicsuffix gives us a maintained suffix list
// instead of a hand-rolled two-label heuristic.
func RegistrableDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url has no host: %q", rawURL)
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Single-label hosts (localhost, IPs) have no registrable suffix; key by
		// the host itself rather than failing the whole fetch.
		return host, nil
	}
	return domain, nil
}

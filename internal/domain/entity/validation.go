package entity

import (
	"fmt"
	"net"
	"net/url"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

// privateIPv4Ranges are blocked as feed targets.
var privateIPv4Ranges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16", // includes cloud metadata
)

// ValidateURL validates the format and safety of a feed URL.
// Only http/https URLs with a host are accepted, and hosts resolving to
// private networks are rejected (SSRF).
func ValidateURL(rawURL string) error {
	parsedURL, err := parseHTTPURL(rawURL)
	if err != nil {
		return err
	}

	// SSRF対策: プライベートIPアドレスをブロック
	ips, err := net.LookupIP(parsedURL.Hostname())
	if err == nil {
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return &ValidationError{Field: "url", Message: "url cannot point to private network"}
			}
		}
	}
	return nil
}

// Origin returns scheme://host of rawURL, used as the base for discovery probes.
func Origin(rawURL string) (string, error) {
	u, err := parseHTTPURL(rawURL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}

func parseHTTPURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, &ValidationError{Field: "url", Message: "URL is required"}
	}
	if len(rawURL) > maxURLLength {
		return nil, &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}
	if u.Host == "" {
		return nil, &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}
	return u, nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return true
	}
	for _, subnet := range privateIPv4Ranges {
		if subnet.Contains(ip) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

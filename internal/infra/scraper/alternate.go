package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var feedLinkTypes = map[string]struct{}{
	"application/rss+xml":   {},
	"application/atom+xml":  {},
	"application/feed+json": {},
	"application/json":      {},
	"application/xml":       {},
	"text/xml":              {},
}

// AlternateLinks returns the absolute feed URLs advertised by a page through
// <link rel="alternate">, in document order and without duplicates.
func AlternateLinks(html, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, _ := url.Parse(baseURL)

	var links []string
	seen := make(map[string]struct{})
	doc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		if !hasToken(s.AttrOr("rel", ""), "alternate") {
			return
		}
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if i := strings.Index(typ, ";"); i >= 0 {
			typ = strings.TrimSpace(typ[:i])
		}
		if _, ok := feedLinkTypes[typ]; !ok {
			return
		}
		abs := resolveURL(base, strings.TrimSpace(s.AttrOr("href", "")))
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(list)) {
		if f == token {
			return true
		}
	}
	return false
}

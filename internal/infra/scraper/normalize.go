package scraper

import (
	"html"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"feedwatch/internal/domain/entity"

	"github.com/microcosm-cc/bluemonday"
)

// MaxSummaryLength is the rune limit for item summaries.
const MaxSummaryLength = 500

// undatedPublishedAt is the publish time given to entries without a date.
// A fixed value keeps the (feed, url, publishedAt) key stable across runs.
var undatedPublishedAt = time.Unix(0, 0).UTC()

// Normalizer maps raw entries into canonical items.
// Summaries are reduced to plain text; content keeps user-generated-content
// safe HTML only. Safe for concurrent use.
type Normalizer struct {
	strict *bluemonday.Policy
	ugc    *bluemonday.Policy
}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		strict: bluemonday.StrictPolicy(),
		ugc:    bluemonday.UGCPolicy(),
	}
}

// Normalize converts entries for feedID, resolving relative links against
// baseURL. Entries without a title or a usable http(s) link are dropped;
// dropped reports how many. Output preserves input order.
func (n *Normalizer) Normalize(feedID int64, baseURL string, entries []Entry) (items []*entity.Item, dropped int) {
	base, _ := url.Parse(baseURL)

	items = make([]*entity.Item, 0, len(entries))
	for _, e := range entries {
		title := n.plainText(e.Title)
		link := resolveURL(base, strings.TrimSpace(e.Link))
		if title == "" || link == "" {
			dropped++
			continue
		}

		summary := n.plainText(e.Summary)
		if summary == "" {
			summary = n.plainText(e.Content)
		}

		publishedAt := undatedPublishedAt
		if e.Published != nil && !e.Published.IsZero() {
			publishedAt = e.Published.UTC()
		}

		items = append(items, &entity.Item{
			FeedID:      feedID,
			Title:       title,
			URL:         link,
			Summary:     truncateRunes(summary, MaxSummaryLength),
			Content:     strings.TrimSpace(n.ugc.Sanitize(e.Content)),
			Author:      n.plainText(e.Author),
			ImageURL:    resolveURL(base, strings.TrimSpace(e.ImageURL)),
			PublishedAt: publishedAt,
			ExternalID:  strings.TrimSpace(e.GUID),
		})
	}
	return items, dropped
}

// plainText strips markup, decodes entities and collapses whitespace.
func (n *Normalizer) plainText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(n.strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL returns an absolute http(s) URL or "".
func resolveURL(base *url.URL, raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		if base == nil || !base.IsAbs() {
			return ""
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

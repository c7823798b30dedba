package scraper

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
)

// HTMLExtractor pulls entries out of a rendered page.
//
// Extraction order:
//  1. the page is itself a feed (renderers sometimes return the raw XML)
//  2. <article> blocks with a heading and a link
//  3. heading anchors (h2 a, h3 a) on a listing page
//  4. the page as a single readable article
type HTMLExtractor struct {
	feeds  *FeedParser
	logger *slog.Logger
}

// NewHTMLExtractor returns an HTMLExtractor. logger may be nil.
func NewHTMLExtractor(logger *slog.Logger) *HTMLExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLExtractor{feeds: NewFeedParser(), logger: logger}
}

// Extract returns the entries found in html. Relative links are left as is;
// Normalizer resolves them against pageURL later.
func (x *HTMLExtractor) Extract(html, pageURL string) ([]Entry, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("%w: empty document", ErrNoContent)
	}

	if entries, err := x.feeds.Parse(html); err == nil && len(entries) > 0 {
		return entries, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse HTML: %v", ErrMalformed, err)
	}

	if entries := articleBlocks(doc); len(entries) > 0 {
		x.logger.Debug("extracted article blocks",
			slog.String("url", pageURL),
			slog.Int("count", len(entries)))
		return entries, nil
	}
	if entries := headingLinks(doc); len(entries) > 0 {
		x.logger.Debug("extracted heading links",
			slog.String("url", pageURL),
			slog.Int("count", len(entries)))
		return entries, nil
	}

	entry, err := readableArticle(html, pageURL)
	if err != nil {
		return nil, err
	}
	return []Entry{entry}, nil
}

func articleBlocks(doc *goquery.Document) []Entry {
	var entries []Entry
	doc.Find("article").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h1, h2, h3").First().Text())
		href, ok := s.Find("a[href]").First().Attr("href")
		if title == "" || !ok || strings.TrimSpace(href) == "" {
			return
		}

		e := Entry{
			Title:   title,
			Link:    strings.TrimSpace(href),
			Summary: strings.TrimSpace(s.Find("p").First().Text()),
		}
		if dt, ok := s.Find("time[datetime]").First().Attr("datetime"); ok {
			e.Published = parseTime(dt)
		}
		if src, ok := s.Find("img[src]").First().Attr("src"); ok {
			e.ImageURL = src
		}
		entries = append(entries, e)
	})
	return entries
}

func headingLinks(doc *goquery.Document) []Entry {
	var entries []Entry
	seen := make(map[string]struct{})
	doc.Find("h2 a[href], h3 a[href]").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Text())
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if title == "" || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		entries = append(entries, Entry{Title: title, Link: href})
	})
	return entries
}

func readableArticle(html, pageURL string) (Entry, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: readability: %v", ErrNoContent, err)
	}
	if strings.TrimSpace(article.Title) == "" {
		return Entry{}, fmt.Errorf("%w: no readable article", ErrNoContent)
	}

	summary := article.Excerpt
	if summary == "" {
		summary = article.TextContent
	}
	return Entry{
		Title:    article.Title,
		Link:     pageURL,
		Summary:  summary,
		Content:  article.Content,
		Author:   article.Byline,
		ImageURL: article.Image,
	}, nil
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	return &t
}

// IsNoContent reports whether err means the page had nothing to extract.
func IsNoContent(err error) bool {
	return errors.Is(err, ErrNoContent)
}

// Package scraper turns fetched payloads into normalized feed items.
// Feeds are parsed with gofeed; pages from the heavy path go through goquery
// listing extraction and, as a last resort, readability.
package scraper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

var (
	// ErrMalformed is returned when a payload cannot be parsed as a feed.
	ErrMalformed = errors.New("malformed payload")

	// ErrNoContent is returned when a page yields no entries at all.
	ErrNoContent = errors.New("no extractable content")
)

// Entry is one raw entry as found in a payload, before normalization.
type Entry struct {
	GUID      string
	Title     string
	Link      string
	Summary   string
	Content   string
	Author    string
	ImageURL  string
	Published *time.Time
}

// FeedParser parses RSS, Atom and JSON Feed payloads.
// It is safe for concurrent use; a gofeed.Parser is created per call.
type FeedParser struct{}

// NewFeedParser returns a FeedParser.
func NewFeedParser() *FeedParser {
	return &FeedParser{}
}

// Parse returns the payload's entries in document order.
func (p *FeedParser) Parse(body string) ([]Entry, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		e := Entry{
			GUID:    it.GUID,
			Title:   it.Title,
			Link:    it.Link,
			Summary: it.Description,
			Content: it.Content,
		}
		if e.Link == "" && len(it.Links) > 0 {
			e.Link = it.Links[0]
		}

		// PublishedParsed 優先、なければ UpdatedParsed
		switch {
		case it.PublishedParsed != nil:
			e.Published = it.PublishedParsed
		case it.UpdatedParsed != nil:
			e.Published = it.UpdatedParsed
		}

		switch {
		case len(it.Authors) > 0 && it.Authors[0] != nil:
			e.Author = it.Authors[0].Name
		case it.Author != nil:
			e.Author = it.Author.Name
		}

		if it.Image != nil {
			e.ImageURL = it.Image.URL
		} else {
			for _, enc := range it.Enclosures {
				if enc != nil && strings.HasPrefix(enc.Type, "image/") {
					e.ImageURL = enc.URL
					break
				}
			}
		}

		entries = append(entries, e)
	}
	return entries, nil
}

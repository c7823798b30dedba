package fetcher

import (
	"math/rand"
	"net/http"
)

const (
	browserUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	alternateUserAgent = "Feedly/1.0 (+http://www.feedly.com/fetcher.html; like FeedFetcher-Google)"
	feedAccept         = "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/xml;q=0.8,text/html;q=0.7,*/*;q=0.5"
)

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,es;q=0.8",
	"en-US,en;q=0.9,fr;q=0.8",
	"en-US,en;q=0.9,de;q=0.8",
	"en-US,en;q=0.9,ja;q=0.8",
}

var secFetchModes = []string{
	"navigate",
	"no-cors",
	"cors",
}

// minimalHeaders identifies the worker plainly, like a command-line client.
func minimalHeaders(userAgent string) func(http.Header) {
	return func(h http.Header) {
		h.Set("User-Agent", userAgent)
		h.Set("Accept", "*/*")
	}
}

// browserHeaders mimics a desktop browser with some randomization.
func browserHeaders(h http.Header) {
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", feedAccept)
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))]) // #nosec G404

	// dnt - 30% chance
	if rand.Float32() < 0.3 { // #nosec G404
		h.Set("DNT", "1")
	}

	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", secFetchModes[rand.Intn(len(secFetchModes))]) // #nosec G404
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Connection", "keep-alive")
}

// alternateHeaders presents as a well-known feed aggregator.
func alternateHeaders(h http.Header) {
	h.Set("User-Agent", alternateUserAgent)
	h.Set("Accept", feedAccept)
}

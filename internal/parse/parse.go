// Package parse turns raw provider responses into normalized tracker
// results. Providers disagree on markup, column order and key names, so
// every parser here is tolerant: unknown fields are skipped, and content
// that yields nothing usable reports ok=false instead of an error.
package parse

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

const hostMyResult = "myresult.co.kr"

// Normalize converts one fetched response into a tracker.Result. The host
// selects the parsing strategy: JSON feeds (optionally carrying the
// renderer's feed marker) are decoded directly, myresult pages use their
// known grid layout, and anything else goes through the generic result
// table parser. ok is false when the content held no splits, meta or
// assets.
func Normalize(content, host, pageURL, dataset, bib string) (tracker.Result, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return tracker.Result{}, false
	}
	if tracker.IsJSONFeed(content) {
		return myResultJSON(content, pageURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return tracker.Result{}, false
	}
	if strings.Contains(host, hostMyResult) {
		if res, ok := myResultPage(doc, pageURL); ok {
			return res, ok
		}
	}
	return resultTable(doc)
}

// NewDocument parses rendered page HTML for the scrape helpers.
func NewDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func resultOK(res tracker.Result) bool {
	return len(res.Splits) > 0 || len(res.Assets) > 0 ||
		res.Meta.RaceLabel != nil || res.Meta.RaceTotalKm != nil
}

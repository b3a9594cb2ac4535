package tracker

import "strings"

// JSONPrefix marks fetched content that is a raw machine-readable feed
// rather than an HTML document. The rendering worker stamps it when a page
// load resolves to a JSON response.
const JSONPrefix = "JSON::"

// IsJSONFeed reports whether fetched content carries the feed marker or is
// bare JSON.
func IsJSONFeed(content string) bool {
	if strings.HasPrefix(content, JSONPrefix) {
		return true
	}
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// TrimJSONPrefix strips the feed marker, returning the raw payload.
func TrimJSONPrefix(content string) string {
	return strings.TrimPrefix(content, JSONPrefix)
}

package tracker

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Template placeholders understood by BuildURL.
const (
	placeholderBib     = "{nameorbibno}"
	placeholderDataset = "{usedata}"
	placeholderBibSix  = "{bib_spct6}"
	cacheBusterParam   = "_ts"
	bibSixPaddedLength = 6
)

// BuildURL expands a marathon URL template for one participant. The bib
// placeholder takes the lookup key verbatim; {bib_spct6} zero-pads numeric
// bibs to six digits for providers that key on fixed-width bib numbers.
func BuildURL(template, bib, dataset string) string {
	u := strings.ReplaceAll(template, placeholderBib, bib)
	u = strings.ReplaceAll(u, placeholderDataset, dataset)
	if strings.Contains(u, placeholderBibSix) {
		u = strings.ReplaceAll(u, placeholderBibSix, padBib(bib))
	}
	return u
}

func padBib(bib string) string {
	if bib == "" || !isDigits(bib) {
		return bib
	}
	for len(bib) < bibSixPaddedLength {
		bib = "0" + bib
	}
	return bib
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeBib rewrites a lookup key the way the provider indexes it. Hosts
// in the spct family store numeric bibs at a fixed six digits, so those are
// zero-padded once at registration rather than on every fetch.
func NormalizeBib(template, bib string) string {
	if bib != "" && isDigits(bib) && strings.Contains(Host(template), "spct") {
		return padBib(bib)
	}
	return bib
}

// WithCacheBuster appends a timestamp query parameter so intermediaries do
// not serve stale copies. The caller keys caches on the original URL.
func WithCacheBuster(rawURL string, now time.Time) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(cacheBusterParam, strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// Host extracts the lowercased hostname of a URL, or "" when unparsable.
// Routing decisions (serial lane, render-first hosts) key on this value.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// HostMatches reports whether host contains any of the given fragments.
// Provider families are matched by substring so subdomains qualify too.
func HostMatches(host string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(host, f) {
			return true
		}
	}
	return false
}

// Package timefmt parses and formats the loosely structured time, pace, and
// distance text found on race result pages. Providers disagree on formats, so
// everything here is tolerant: parse what looks plausible, report ok=false
// otherwise.
package timefmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timeExactRe = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)
	timeFindRe  = regexp.MustCompile(`\d{1,2}:\d{2}(:\d{2})?`)
	paceRe      = regexp.MustCompile(`(\d{1,2})[':](\d{2})`)
)

// LooksTime reports whether s is a plausible clock or net time, either
// h:mm:ss or mm:ss.
func LooksTime(s string) bool {
	return timeExactRe.MatchString(strings.TrimSpace(s))
}

// FirstTime extracts the first time-looking token from free text, or "".
func FirstTime(s string) string {
	return timeFindRe.FindString(s)
}

// Seconds parses h:mm:ss or mm:ss into whole seconds.
func Seconds(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !timeExactRe.MatchString(s) {
		return 0, false
	}
	parts := strings.Split(s, ":")
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

// FormatNet renders elapsed seconds the way providers print net times:
// h:mm:ss with a bare hour digit, or mm:ss under an hour.
func FormatNet(totalSec int) string {
	if totalSec < 0 {
		totalSec = 0
	}
	h := totalSec / 3600
	m := totalSec % 3600 / 60
	s := totalSec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// ETAFromClock projects a pass clock forward by delta and renders it as a
// wall clock, wrapping at midnight.
func ETAFromClock(clock string, delta time.Duration) (string, bool) {
	base, ok := Seconds(clock)
	if !ok {
		return "", false
	}
	const day = 24 * 3600
	eta := (base + int(delta.Seconds())) % day
	if eta < 0 {
		eta += day
	}
	return fmt.Sprintf("%02d:%02d:%02d", eta/3600, eta%3600/60, eta%60), true
}

// SecPerKm parses pace text such as "5:31" or 5'31" into seconds per km.
func SecPerKm(pace string) (float64, bool) {
	m := paceRe.FindStringSubmatch(pace)
	if m == nil {
		return 0, false
	}
	minutes, _ := strconv.Atoi(m[1])
	seconds, _ := strconv.Atoi(m[2])
	spk := float64(minutes*60 + seconds)
	if spk <= 0 {
		return 0, false
	}
	return spk, true
}

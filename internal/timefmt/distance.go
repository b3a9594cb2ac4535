package timefmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Finish keywords as they appear in provider checkpoint labels. Korean
// labels are matched against the raw text, English ones case-insensitively.
var (
	finishKeywordsKO = []string{"완주", "도착", "골인", "피니쉬", "피니시"}
	finishKeywordsEN = []string{"finish", "goal"}
)

const (
	kmHalf = 21.0975
	kmFull = 42.195
)

// snapTargets are the canonical road race distances user-entered totals
// get snapped onto (e.g. 21.1 means a half).
var snapTargets = []float64{5, 10, 15, 20, kmHalf, 25, 30, kmFull}

var kmLabelRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[kK]`)

// IsFinishLabel reports whether a checkpoint label marks the finish line.
func IsFinishLabel(label string) bool {
	raw := strings.TrimSpace(label)
	if raw == "" {
		return false
	}
	for _, k := range finishKeywordsKO {
		if strings.Contains(raw, k) {
			return true
		}
	}
	low := strings.ToLower(raw)
	for _, k := range finishKeywordsEN {
		if strings.Contains(low, k) {
			return true
		}
	}
	return false
}

// KmFromLabel extracts the distance a checkpoint label refers to. Handles
// "10km"/"10K 지점" style labels plus the half/full course names; finish
// labels carry no usable distance of their own.
func KmFromLabel(label string) (float64, bool) {
	raw := strings.TrimSpace(label)
	if raw == "" {
		return 0, false
	}
	if m := kmLabelRe.FindStringSubmatch(raw); m != nil {
		km, err := strconv.ParseFloat(m[1], 64)
		if err == nil && km > 0 {
			return km, true
		}
	}
	low := strings.ToLower(raw)
	if strings.Contains(low, "half") || strings.Contains(raw, "하프") {
		return kmHalf, true
	}
	if strings.Contains(low, "full") || strings.Contains(raw, "풀코스") {
		return kmFull, true
	}
	return 0, false
}

// SnapDistance maps a rough course distance onto the nearest canonical race
// distance when one lies within half a kilometer.
func SnapDistance(km float64) (float64, bool) {
	for _, target := range snapTargets {
		diff := km - target
		if diff < 0 {
			diff = -diff
		}
		if diff <= 0.5 {
			return target, true
		}
	}
	return 0, false
}

// FinishTolerance returns how close (in km) a checkpoint must be to the
// course distance to count as the finish. Long courses place their last
// timing mat further from the line.
func FinishTolerance(km float64) float64 {
	switch {
	case km < 15:
		return 0.3
	case km < 30:
		return 0.5
	default:
		return 1.0
	}
}

// LabelForDistance renders a human readable category for a course distance,
// used when the provider never reported a race label.
func LabelForDistance(km float64) string {
	if km <= 0 {
		return ""
	}
	if snapped, ok := SnapDistance(km); ok {
		switch snapped {
		case kmHalf:
			return "Half"
		case kmFull:
			return "Full"
		default:
			km = snapped
		}
	}
	if km == float64(int64(km)) {
		return fmt.Sprintf("%dkm", int64(km))
	}
	return fmt.Sprintf("%.1fkm", km)
}

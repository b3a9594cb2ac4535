package parse

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jaekyeom/splitfeed/internal/timefmt"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// Key spellings observed across feed revisions. Order matters: the first
// present key wins.
var (
	feedRowKeys   = []string{"splits", "records", "record_list", "list", "rows"}
	rowLabelKeys  = []string{"point_label", "point_name", "point", "label", "location"}
	rowKmKeys     = []string{"point_km", "km", "distance", "dist"}
	rowNetKeys    = []string{"net_time", "nettime", "record", "net", "time"}
	rowClockKeys  = []string{"pass_clock", "pass_time", "passtime", "clock", "arrival_time"}
	rowPaceKeys   = []string{"pace", "pace_str"}
	metaLabelKeys = []string{"race_label", "category", "course", "event_name", "race"}
	metaKmKeys    = []string{"race_total_km", "total_km", "course_km", "total_distance"}
	assetCertKeys = []string{"cert_url", "certificate", "cert_image", "record_image", "photo_url", "photo"}
)

// myResultJSON decodes a myresult-style JSON feed. The payload is either
// an object (possibly wrapped in a data/result envelope) holding a row
// array plus race meta, or a bare row array.
func myResultJSON(content, pageURL string) (tracker.Result, bool) {
	payload := strings.TrimSpace(tracker.TrimJSONPrefix(content))

	var res tracker.Result
	if strings.HasPrefix(payload, "[") {
		var rows []map[string]any
		if err := json.Unmarshal([]byte(payload), &rows); err != nil {
			return tracker.Result{}, false
		}
		res.Splits = feedSplits(rows)
		return res, resultOK(res)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return tracker.Result{}, false
	}
	body = unwrapEnvelope(body)

	res.Splits = feedSplits(pickRows(body, feedRowKeys...))
	if label := pickString(body, metaLabelKeys...); label != "" {
		res.Meta.RaceLabel = &label
	}
	if km, ok := pickFloat(body, metaKmKeys...); ok && km > 0 {
		res.Meta.RaceTotalKm = &km
	}
	if cert := pickString(body, assetCertKeys...); cert != "" {
		if abs := resolveURL(pageURL, cert); abs != "" {
			res.Assets = append(res.Assets, tracker.Asset{
				Kind: tracker.AssetKindCertificate,
				URL:  abs,
				Host: tracker.Host(abs),
			})
		}
	}
	return res, resultOK(res)
}

func feedSplits(rows []map[string]any) []tracker.Split {
	splits := make([]tracker.Split, 0, len(rows))
	for _, row := range rows {
		label := strings.TrimSpace(pickString(row, rowLabelKeys...))
		if label == "" {
			continue
		}
		sp := tracker.Split{
			PointLabel: label,
			NetTime:    timefmt.FirstTime(pickString(row, rowNetKeys...)),
			PassClock:  timefmt.FirstTime(pickString(row, rowClockKeys...)),
			Pace:       strings.TrimSpace(pickString(row, rowPaceKeys...)),
		}
		if sp.NetTime == "" && sp.PassClock == "" {
			continue
		}
		if km, ok := pickFloat(row, rowKmKeys...); ok && km > 0 {
			sp.PointKm = &km
		} else if km, ok := timefmt.KmFromLabel(label); ok {
			sp.PointKm = &km
		}
		splits = append(splits, sp)
	}
	return splits
}

// unwrapEnvelope descends through data/result wrappers some feed
// revisions add around the payload proper.
func unwrapEnvelope(body map[string]any) map[string]any {
	for depth := 0; depth < 3; depth++ {
		descended := false
		for _, key := range []string{"data", "result", "response"} {
			inner, ok := body[key].(map[string]any)
			if ok {
				body = inner
				descended = true
				break
			}
		}
		if !descended {
			return body
		}
	}
	return body
}

func pickString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func pickFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func pickRows(m map[string]any, keys ...string) []map[string]any {
	for _, key := range keys {
		raw, ok := m[key].([]any)
		if !ok {
			continue
		}
		rows := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			if row, ok := item.(map[string]any); ok {
				rows = append(rows, row)
			}
		}
		if len(rows) > 0 {
			return rows
		}
	}
	return nil
}

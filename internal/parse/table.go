package parse

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jaekyeom/splitfeed/internal/timefmt"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// Header keywords mapping result-table columns to split fields. Clock
// keywords are checked before net keywords because 통과기록 style headers
// contain both.
var (
	headerLabelWords = []string{"지점", "구간", "위치", "point", "split", "checkpoint", "location"}
	headerKmWords    = []string{"거리", "km", "distance"}
	headerClockWords = []string{"통과", "시각", "clock"}
	headerNetWords   = []string{"기록", "net", "time"}
	headerPaceWords  = []string{"페이스", "pace"}
)

type columnMap struct {
	label, km, clock, net, pace int
}

// resultTable walks every table on the page and extracts splits from the
// first one that looks like a checkpoint table. Column meaning comes from
// header keywords when a header row exists, positionally otherwise.
func resultTable(doc *goquery.Document) (tracker.Result, bool) {
	var res tracker.Result
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		splits := splitsFromTable(table)
		if len(splits) == 0 {
			return true
		}
		res.Splits = splits
		return false
	})
	return res, resultOK(res)
}

func splitsFromTable(table *goquery.Selection) []tracker.Split {
	rows := table.Find("tr")
	if rows.Length() == 0 {
		return nil
	}

	cm, headered := headerColumns(rows.Eq(0))
	var splits []tracker.Split
	rows.Each(func(i int, row *goquery.Selection) {
		if headered && i == 0 {
			return
		}
		cells := cellTexts(row)
		var sp tracker.Split
		var ok bool
		if headered {
			sp, ok = splitFromMappedRow(cells, cm)
		} else {
			sp, ok = splitFromBareRow(cells)
		}
		if ok {
			splits = append(splits, sp)
		}
	})
	return splits
}

// headerColumns maps header-cell keywords to column indexes. ok is false
// when the row does not look like a header.
func headerColumns(row *goquery.Selection) (columnMap, bool) {
	cm := columnMap{label: -1, km: -1, clock: -1, net: -1, pace: -1}
	row.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(cell.Text()))
		switch {
		case cm.label < 0 && containsAny(text, headerLabelWords):
			cm.label = i
		case cm.km < 0 && containsAny(text, headerKmWords):
			cm.km = i
		case cm.clock < 0 && containsAny(text, headerClockWords):
			cm.clock = i
		case cm.net < 0 && containsAny(text, headerNetWords):
			cm.net = i
		case cm.pace < 0 && containsAny(text, headerPaceWords):
			cm.pace = i
		}
	})
	return cm, cm.label >= 0 && (cm.net >= 0 || cm.clock >= 0)
}

func splitFromMappedRow(cells []string, cm columnMap) (tracker.Split, bool) {
	sp := tracker.Split{
		PointLabel: cellAt(cells, cm.label),
		NetTime:    timefmt.FirstTime(cellAt(cells, cm.net)),
		PassClock:  timefmt.FirstTime(cellAt(cells, cm.clock)),
		Pace:       cellAt(cells, cm.pace),
	}
	if sp.PointLabel == "" || (sp.NetTime == "" && sp.PassClock == "") {
		return tracker.Split{}, false
	}
	if raw := cellAt(cells, cm.km); raw != "" {
		raw = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(raw), "km"))
		if km, err := strconv.ParseFloat(raw, 64); err == nil && km > 0 {
			sp.PointKm = &km
		}
	}
	if sp.PointKm == nil {
		if km, ok := timefmt.KmFromLabel(sp.PointLabel); ok {
			sp.PointKm = &km
		}
	}
	return sp, true
}

// splitFromBareRow handles tables without a recognizable header. The
// leading cell is the label; with two time tokens the clock comes first,
// a lone token is the net time.
func splitFromBareRow(cells []string) (tracker.Split, bool) {
	if len(cells) < 2 {
		return tracker.Split{}, false
	}
	label := cells[0]
	if label == "" || timefmt.LooksTime(label) {
		return tracker.Split{}, false
	}
	var times []string
	for _, cell := range cells[1:] {
		if t := timefmt.FirstTime(cell); t != "" {
			times = append(times, t)
		}
	}
	if len(times) == 0 {
		return tracker.Split{}, false
	}
	sp := tracker.Split{PointLabel: label}
	if len(times) >= 2 {
		sp.PassClock = times[0]
		sp.NetTime = times[1]
	} else {
		sp.NetTime = times[0]
	}
	if km, ok := timefmt.KmFromLabel(label); ok {
		sp.PointKm = &km
	}
	return sp, true
}

func cellTexts(row *goquery.Selection) []string {
	var cells []string
	row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})
	return cells
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

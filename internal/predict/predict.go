// Package predict turns a participant's recorded splits into a finish
// verdict and, while the runner is still on course, a projected finish time.
// Providers rarely agree on how a finish shows up, so detection runs three
// increasingly loose tests before falling back to a pace-based projection.
package predict

import (
	"strings"
	"time"

	"github.com/jaekyeom/splitfeed/internal/timefmt"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// Status text attached to participant data responses.
const (
	StatusWaiting  = "대기중"
	StatusRunning  = "주행중"
	StatusFinished = "완주"
)

// Prediction is the analysis attached to a participant's split list.
// Finished runners carry their confirmed record, runners still on course
// carry projections, and runners without splits carry only the waiting
// status.
type Prediction struct {
	Finished      bool   `json:"finished"`
	StatusText    string `json:"status_text"`
	FinishPoint   string `json:"finish_point,omitempty"`
	FinishETA     string `json:"finish_eta,omitempty"`
	FinishNetPred string `json:"finish_net_pred,omitempty"`
	DisplayTime   string `json:"display_point_time,omitempty"`
}

// finishRecord is a confirmed finish pulled out of the split list.
type finishRecord struct {
	point string
	net   string
	clock string
}

// Calculate builds a Prediction for splits recorded over a course of
// totalKm kilometers. Splits are expected in checkpoint order, oldest
// first.
func Calculate(splits []tracker.Split, totalKm float64) Prediction {
	if len(splits) == 0 {
		return Prediction{StatusText: StatusWaiting}
	}

	if rec, ok := checkFinish(splits, totalKm); ok {
		point := rec.point
		if point == "" {
			point = StatusFinished
		}
		eta := StatusFinished
		if rec.clock != "" {
			eta = StatusFinished + " @ " + rec.clock
		}
		display := rec.net
		if display == "" {
			display = rec.clock
		}
		return Prediction{
			Finished:      true,
			StatusText:    StatusFinished,
			FinishPoint:   point,
			FinishETA:     eta,
			FinishNetPred: rec.net,
			DisplayTime:   display,
		}
	}

	last := splits[len(splits)-1]

	spk, ok := timefmt.SecPerKm(last.Pace)
	if !ok {
		spk, ok = meanPace(splits)
	}
	if !ok {
		return Prediction{StatusText: StatusRunning}
	}

	// The label is more trustworthy than the stored distance here: some
	// providers report cumulative point numbers, not kilometers.
	lastKm := 0.0
	if km, ok := timefmt.KmFromLabel(last.PointLabel); ok {
		lastKm = km
	} else if last.PointKm != nil && *last.PointKm > 0 {
		lastKm = *last.PointKm
	}

	remain := totalKm - lastKm
	if remain < 0 {
		remain = 0
	}
	deltaSec := int(remain * spk)

	p := Prediction{StatusText: StatusRunning}

	clock := strings.TrimSpace(last.PassClock)
	if timefmt.LooksTime(clock) {
		if eta, ok := timefmt.ETAFromClock(clock, time.Duration(deltaSec)*time.Second); ok {
			p.FinishETA = eta
		}
	}

	netSec, _ := timefmt.Seconds(last.NetTime)
	p.FinishNetPred = timefmt.FormatNet(netSec + deltaSec)

	return p
}

// checkFinish applies three finish tests in order: an explicit finish
// label, a checkpoint within tolerance of the course distance, and a last
// split at 90% or more of the course.
func checkFinish(splits []tracker.Split, totalKm float64) (finishRecord, bool) {
	// A finish label wins outright when its row carries a usable time.
	// Only the newest such row counts; an earlier mislabeled one is noise.
	lastFinish := -1
	for i := 0; i < len(splits); i++ {
		if timefmt.IsFinishLabel(splits[i].PointLabel) {
			lastFinish = i
		}
	}
	if lastFinish >= 0 {
		if rec, ok := recordFrom(splits[lastFinish]); ok {
			return rec, true
		}
	}

	// Next, the newest checkpoint close enough to the course distance.
	snapped := totalKm
	if snap, ok := timefmt.SnapDistance(totalKm); ok {
		snapped = snap
	}
	tol := timefmt.FinishTolerance(snapped)
	for i := len(splits) - 1; i >= 0; i-- {
		km, ok := splitKm(splits[i])
		if !ok {
			continue
		}
		diff := km - snapped
		if diff < 0 {
			diff = -diff
		}
		if diff > tol {
			continue
		}
		if rec, ok := recordFrom(splits[i]); ok {
			return rec, true
		}
	}

	// Last resort: the final split sits at 90% of the course or beyond.
	if totalKm > 0 {
		last := splits[len(splits)-1]
		if km, ok := splitKm(last); ok && km/totalKm >= 0.9 {
			if rec, ok := recordFrom(last); ok {
				return rec, true
			}
		}
	}

	return finishRecord{}, false
}

// splitKm resolves a checkpoint's distance, preferring the stored value
// over one recovered from the label.
func splitKm(sp tracker.Split) (float64, bool) {
	if sp.PointKm != nil && *sp.PointKm > 0 {
		return *sp.PointKm, true
	}
	return timefmt.KmFromLabel(sp.PointLabel)
}

// recordFrom validates a candidate finish row. At least one of net time
// and pass clock must look like a real time.
func recordFrom(sp tracker.Split) (finishRecord, bool) {
	net := strings.TrimSpace(sp.NetTime)
	clock := strings.TrimSpace(sp.PassClock)
	if !timefmt.LooksTime(net) && !timefmt.LooksTime(clock) {
		return finishRecord{}, false
	}
	rec := finishRecord{point: sp.PointLabel}
	if timefmt.LooksTime(net) {
		rec.net = net
	}
	if timefmt.LooksTime(clock) {
		rec.clock = clock
	}
	return rec, true
}

// meanPace averages every parseable pace across the splits.
func meanPace(splits []tracker.Split) (float64, bool) {
	sum := 0.0
	n := 0
	for i := 0; i < len(splits); i++ {
		if spk, ok := timefmt.SecPerKm(splits[i].Pace); ok {
			sum += spk
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

package parse

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jaekyeom/splitfeed/internal/timefmt"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// myresult renders its checkpoint grid as ant-design rows: label, pass
// clock, net time, pace.
const (
	selGridRow = ".table-row.ant-row"
	selGridCol = ".ant-col"
)

// myResultPage parses the rendered myresult result page.
func myResultPage(doc *goquery.Document, pageURL string) (tracker.Result, bool) {
	var res tracker.Result
	doc.Find(selGridRow).Each(func(_ int, row *goquery.Selection) {
		cols := row.Find(selGridCol)
		if cols.Length() < 4 {
			return
		}
		label := strings.TrimSpace(cols.Eq(0).Text())
		clock := timefmt.FirstTime(cols.Eq(1).Text())
		net := timefmt.FirstTime(cols.Eq(2).Text())
		if label == "" || (clock == "" && net == "") {
			return
		}
		sp := tracker.Split{
			PointLabel: label,
			NetTime:    net,
			PassClock:  clock,
			Pace:       strings.TrimSpace(cols.Eq(3).Text()),
		}
		if km, ok := timefmt.KmFromLabel(label); ok {
			sp.PointKm = &km
		}
		res.Splits = append(res.Splits, sp)
	})
	if cert := findCertImage(doc, pageURL); cert != "" {
		res.Assets = append(res.Assets, tracker.Asset{
			Kind: tracker.AssetKindCertificate,
			URL:  cert,
			Host: tracker.Host(cert),
		})
	}
	return res, resultOK(res)
}

// ExtractTotalNetTime pulls the overall finish record off a rendered
// result page. It tries record/total styled elements first, then any
// heading or emphasis whose text mentions a record.
func ExtractTotalNetTime(doc *goquery.Document) string {
	total := ""
	doc.Find("[class*=record], [class*=total]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := timefmt.FirstTime(s.Text()); t != "" {
			total = t
			return false
		}
		return true
	})
	if total != "" {
		return total
	}
	doc.Find("strong, h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "기록") {
			return true
		}
		if t := timefmt.FirstTime(text); t != "" {
			total = t
			return false
		}
		return true
	})
	return total
}

// ExtractFinishClock pulls the finish-line wall clock from the rendered
// checkpoint grid. The finish row is the one labelled 도착 (or another
// finish keyword); its second column carries the clock.
func ExtractFinishClock(doc *goquery.Document) string {
	clock := ""
	doc.Find(selGridRow).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cols := row.Find(selGridCol)
		if cols.Length() < 4 {
			return true
		}
		if !timefmt.IsFinishLabel(cols.Eq(0).Text()) {
			return true
		}
		if t := timefmt.FirstTime(cols.Eq(1).Text()); t != "" {
			clock = t
			return false
		}
		return true
	})
	return clock
}

func findCertImage(doc *goquery.Document, pageURL string) string {
	cert := ""
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		lower := strings.ToLower(src)
		if src == "" || strings.HasPrefix(lower, "data:") {
			return true
		}
		if !strings.Contains(lower, "cert") && !strings.Contains(lower, "record") {
			return true
		}
		if abs := resolveURL(pageURL, src); abs != "" {
			cert = abs
			return false
		}
		return true
	})
	return cert
}

// resolveURL makes ref absolute against base. Unusable references
// resolve to "".
func resolveURL(base, ref string) string {
	parsedRef, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if parsedRef.IsAbs() {
		return parsedRef.String()
	}
	parsedBase, err := url.Parse(base)
	if err != nil || parsedBase.Host == "" {
		return ""
	}
	return parsedBase.ResolveReference(parsedRef).String()
}

package parse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const myResultPageHTML = `<!DOCTYPE html>
<html><head><title>기록조회</title></head><body>
<div class="record-summary"><span class="record-time">1:10:22</span></div>
<div class="table-row ant-row">
  <div class="ant-col">지점</div><div class="ant-col">통과시간</div><div class="ant-col">기록</div><div class="ant-col">페이스</div>
</div>
<div class="table-row ant-row">
  <div class="ant-col">5km</div><div class="ant-col">09:26:40</div><div class="ant-col">00:26:11</div><div class="ant-col">5:14</div>
</div>
<div class="table-row ant-row">
  <div class="ant-col">10km</div><div class="ant-col">09:52:01</div><div class="ant-col">00:51:32</div><div class="ant-col">5:09</div>
</div>
<div class="table-row ant-row">
  <div class="ant-col">도착</div><div class="ant-col">10:10:44</div><div class="ant-col">1:10:22</div><div class="ant-col">5:13</div>
</div>
<img src="/images/cert_01234.jpg">
</body></html>`

func TestNormalizeMyResultPage(t *testing.T) {
	t.Parallel()

	res, ok := Normalize(myResultPageHTML, "myresult.co.kr", "https://myresult.co.kr/record/daegu/01234", "daegu", "01234")
	require.True(t, ok)
	require.Len(t, res.Splits, 3)

	five := res.Splits[0]
	require.Equal(t, "5km", five.PointLabel)
	require.Equal(t, "09:26:40", five.PassClock)
	require.Equal(t, "00:26:11", five.NetTime)
	require.Equal(t, "5:14", five.Pace)
	require.NotNil(t, five.PointKm)
	require.Equal(t, 5.0, *five.PointKm)

	finish := res.Splits[2]
	require.Equal(t, "도착", finish.PointLabel)
	require.Equal(t, "10:10:44", finish.PassClock)
	require.Equal(t, "1:10:22", finish.NetTime)

	require.Len(t, res.Assets, 1)
	require.Equal(t, "https://myresult.co.kr/images/cert_01234.jpg", res.Assets[0].URL)
}

func TestExtractTotalNetTime(t *testing.T) {
	t.Parallel()

	doc, err := NewDocument(myResultPageHTML)
	require.NoError(t, err)
	require.Equal(t, "1:10:22", ExtractTotalNetTime(doc))

	doc, err = NewDocument(`<html><body><strong>대회기록 1:23:45</strong></body></html>`)
	require.NoError(t, err)
	require.Equal(t, "1:23:45", ExtractTotalNetTime(doc))

	doc, err = NewDocument(`<html><body><p>결과가 없습니다</p></body></html>`)
	require.NoError(t, err)
	require.Empty(t, ExtractTotalNetTime(doc))
}

func TestExtractFinishClock(t *testing.T) {
	t.Parallel()

	doc, err := NewDocument(myResultPageHTML)
	require.NoError(t, err)
	require.Equal(t, "10:10:44", ExtractFinishClock(doc))

	doc, err = NewDocument(`<html><body>
<div class="table-row ant-row">
  <div class="ant-col">5km</div><div class="ant-col">09:26:40</div><div class="ant-col">00:26:11</div><div class="ant-col">5:14</div>
</div>
</body></html>`)
	require.NoError(t, err)
	require.Empty(t, ExtractFinishClock(doc))
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base, ref, want string
	}{
		{"https://myresult.co.kr/record/daegu/1", "/cert/a.png", "https://myresult.co.kr/cert/a.png"},
		{"https://myresult.co.kr/record/daegu/1", "https://cdn.example.com/a.png", "https://cdn.example.com/a.png"},
		{"", "/cert/a.png", ""},
		{"https://myresult.co.kr/record/daegu/1", "cert/a.png", "https://myresult.co.kr/record/daegu/cert/a.png"},
	}
	for _, tt := range tests {
		if got := resolveURL(tt.base, tt.ref); got != tt.want {
			t.Fatalf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}

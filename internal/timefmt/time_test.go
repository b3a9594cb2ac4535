package timefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLooksTime(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"1:23:45", true},
		{"23:45", true},
		{" 09:31:12 ", true},
		{"", false},
		{"-", false},
		{"1:2", false},
		{"123:45", false},
		{"abc", false},
		{"1:23:45 net", false},
	}
	for _, tt := range tests {
		if got := LooksTime(tt.in); got != tt.want {
			t.Fatalf("LooksTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFirstTime(t *testing.T) {
	require.Equal(t, "09:31:12", FirstTime("도착 09:31:12 (5km)"))
	require.Equal(t, "23:45", FirstTime("passed at 23:45 today"))
	require.Equal(t, "", FirstTime("no clock here"))
}

func TestSeconds(t *testing.T) {
	sec, ok := Seconds("1:23:45")
	require.True(t, ok)
	require.Equal(t, 5025, sec)

	sec, ok = Seconds("23:45")
	require.True(t, ok)
	require.Equal(t, 1425, sec)

	_, ok = Seconds("not a time")
	require.False(t, ok)
}

func TestFormatNet(t *testing.T) {
	require.Equal(t, "1:23:45", FormatNet(5025))
	require.Equal(t, "23:45", FormatNet(1425))
	require.Equal(t, "00:00", FormatNet(-3))
}

func TestETAFromClock(t *testing.T) {
	eta, ok := ETAFromClock("09:30:00", 45*time.Minute)
	require.True(t, ok)
	require.Equal(t, "10:15:00", eta)

	eta, ok = ETAFromClock("23:50:00", 20*time.Minute)
	require.True(t, ok)
	require.Equal(t, "00:10:00", eta, "projection should wrap at midnight")

	_, ok = ETAFromClock("", time.Minute)
	require.False(t, ok)
}

func TestSecPerKm(t *testing.T) {
	spk, ok := SecPerKm("5:31")
	require.True(t, ok)
	require.Equal(t, 331.0, spk)

	spk, ok = SecPerKm(`5'31"`)
	require.True(t, ok)
	require.Equal(t, 331.0, spk)

	_, ok = SecPerKm("")
	require.False(t, ok)
	_, ok = SecPerKm("-")
	require.False(t, ok)
}

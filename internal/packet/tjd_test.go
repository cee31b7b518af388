package packet

import (
	"math"
	"testing"
	"time"
)

func TestTJDToTime(t *testing.T) {
	tests := []struct {
		name   string
		tjd    int32
		sod    int32
		want   time.Time
		wantOK bool
	}{
		{"known date", 10281, 0, time.Date(1996, time.July, 17, 0, 0, 0, 0, time.UTC), true},
		{"noon", 10281, 4320000, time.Date(1996, time.July, 17, 12, 0, 0, 0, time.UTC), true},
		{"centiseconds kept", 10281, 4320001, time.Date(1996, time.July, 17, 12, 0, 0, 10_000_000, time.UTC), true},
		{"day one", 1, 0, time.Date(1968, time.May, 25, 0, 0, 0, 0, time.UTC), true},
		{"recent", 20000, 0, time.Date(2023, time.February, 25, 0, 0, 0, 0, time.UTC), true},
		{"sod past midnight rolls over", 10281, 8640000, time.Date(1996, time.July, 18, 0, 0, 0, 0, time.UTC), true},
		{"zero tjd", 0, 0, time.Time{}, false},
		{"negative tjd", -1, 0, time.Time{}, false},
		{"negative sod", 10281, -1, time.Time{}, false},
		{"beyond year 9999", math.MaxInt32, 0, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TJDToTime(tt.tjd, tt.sod)
			if ok != tt.wantOK {
				t.Fatalf("TJDToTime(%d, %d) ok = %v, want %v", tt.tjd, tt.sod, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("TJDToTime(%d, %d) = %s, want %s", tt.tjd, tt.sod, got, tt.want)
			}
		})
	}
}

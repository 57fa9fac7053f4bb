package rollover

import (
	"testing"
	"time"
)

func TestNextMidnight_SameDay(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)
	want := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if got := nextMidnight(now); !got.Equal(want) {
		t.Errorf("nextMidnight(%v) = %v, want %v", now, got, want)
	}
}

func TestNextMidnight_AtExactMidnight(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if got := nextMidnight(now); !got.Equal(want) {
		t.Errorf("nextMidnight(%v) = %v, want %v", now, got, want)
	}
}

func TestNextMonthStart_MidMonth(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if got := nextMonthStart(now); !got.Equal(want) {
		t.Errorf("nextMonthStart(%v) = %v, want %v", now, got, want)
	}
}

func TestNextMonthStart_December(t *testing.T) {
	now := time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)
	want := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := nextMonthStart(now); !got.Equal(want) {
		t.Errorf("nextMonthStart(%v) = %v, want %v", now, got, want)
	}
}

package domain

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestParseSendTime(t *testing.T) {
	m, err := ParseSendTime(" 09:30 ")
	if err != nil || m != 570 {
		t.Fatalf("want 570, got %d (%v)", m, err)
	}
	for _, bad := range []string{"24:00", "9", "09:60", "ab:cd"} {
		if _, err := ParseSendTime(bad); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("%q: want ErrInvalidTime, got %v", bad, err)
		}
	}
	if _, err := ParseSendTime(""); !errors.Is(err, ErrEmptyValue) {
		t.Fatalf("want ErrEmptyValue, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d != (Date{2024, time.February, 29}) {
		t.Fatalf("got %v", d)
	}
	if _, err := ParseDate("2023-02-29"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("want ErrInvalidDate, got %v", err)
	}
}

func TestParseWeekDays(t *testing.T) {
	days, err := ParseWeekDays("Mon, wednesday,5,mon")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !slices.Equal(days, []int{1, 3, 5}) {
		t.Fatalf("got %v", days)
	}
	if FormatWeekDays(days) != "1,3,5" {
		t.Fatalf("format: got %s", FormatWeekDays(days))
	}
	if _, err := ParseWeekDays("7"); !errors.Is(err, ErrInvalidDays) {
		t.Fatalf("want ErrInvalidDays, got %v", err)
	}
}

func TestDate_DaysUntilAcrossDST(t *testing.T) {
	a := Date{2025, time.March, 29}
	b := Date{2025, time.April, 2}
	if n := a.DaysUntil(b); n != 4 {
		t.Fatalf("want 4, got %d", n)
	}
	if n := b.DaysUntil(a); n != -4 {
		t.Fatalf("want -4, got %d", n)
	}
}

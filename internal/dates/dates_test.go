package dates_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pserver-scout/internal/dates"
)

func TestParse_SupportedFormats(t *testing.T) {
	want := time.Date(2025, time.July, 25, 0, 0, 0, 0, time.UTC)
	cases := []string{
		"2025-07-25",
		"2025-07-25T14:30:00Z",
		"Fri, 25 Jul 2025 14:30:00 GMT",
		"July 25, 2025",
		"July 25th, 2025",
		"Jul 25 2025",
		"25 Jul 2025",
		"25th July 2025",
		"07/25/2025",
		"25/07/2025",
		"2025/07/25",
		"July 25, 2025 at 02:30 PM",
	}
	for _, in := range cases {
		got, ok := dates.Parse(in)
		if !ok {
			t.Fatalf("Parse(%q) failed", in)
		}
		if got.Year() != want.Year() || got.Month() != want.Month() || got.Day() != want.Day() {
			t.Fatalf("Parse(%q) = %v, want date %v", in, got, want.Format("2006-01-02"))
		}
	}
}

func TestParse_EmptyAndUnknown(t *testing.T) {
	for _, in := range []string{"", "   ", "Unknown time", "not a date at all"} {
		if _, ok := dates.Parse(in); ok {
			t.Fatalf("Parse(%q) should fail", in)
		}
	}
}

func TestParse_RejectsNonDateText(t *testing.T) {
	for _, in := range []string{"Sticky, Hot", "Pinned, Locked", "News, Patch", "a,b", "2.1", "Sat, 12", "Unknown date"} {
		if got, ok := dates.Parse(in); ok {
			t.Fatalf("Parse(%q) = %v, want failure", in, got)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := dates.Format(time.Time{}, true); got != "Unknown date" {
		t.Fatalf("zero time = %q", got)
	}
	midnight := time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC)
	if got := dates.Format(midnight, true); got != "July 25, 2025" {
		t.Fatalf("midnight = %q", got)
	}
	afternoon := time.Date(2025, 7, 25, 14, 5, 0, 0, time.UTC)
	if got := dates.Format(afternoon, true); got != "July 25, 2025 at 02:05 PM" {
		t.Fatalf("with time = %q", got)
	}
	if got := dates.Format(afternoon, false); got != "July 25, 2025" {
		t.Fatalf("without time = %q", got)
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	inputs := []string{"2024-02-29", "March 3rd, 2023", "Mon, 02 Jan 2006 15:04:05 GMT", "11/30/2022"}
	for _, in := range inputs {
		first, ok := dates.Parse(in)
		if !ok {
			t.Fatalf("Parse(%q) failed", in)
		}
		for _, withTime := range []bool{false, true} {
			out := dates.Format(first, withTime)
			again, ok := dates.Parse(out)
			if !ok {
				t.Fatalf("re-parse of %q (from %q) failed", out, in)
			}
			if again.Format("2006-01-02") != first.Format("2006-01-02") {
				t.Fatalf("round trip %q -> %q -> %v, want %v", in, out, again, first)
			}
		}
	}
}

func TestExtractDates_OrderAndDedup(t *testing.T) {
	text := "Released 2025-07-25. Hotfix on July 27, 2025 and again 2025-07-25; notes from 3 Aug 2025 (08/04/2025)."
	got := dates.ExtractDates(text)
	want := []string{"2025-07-25", "July 27, 2025", "3 Aug 2025", "08/04/2025"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExtractDates mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstParseable_SkipsBadCandidates(t *testing.T) {
	raw, got, ok := dates.FirstParseable("build 99/99/9999 shipped on Jan 5th, 2024")
	if !ok {
		t.Fatal("expected a parseable date")
	}
	if raw != "Jan 5th, 2024" {
		t.Fatalf("raw = %q", raw)
	}
	if got.Format("2006-01-02") != "2024-01-05" {
		t.Fatalf("parsed = %v", got)
	}
}

func TestStripFromTitle(t *testing.T) {
	cases := map[string]string{
		"[July 25th, 2025] Big Patch":   "Big Patch",
		"Big Patch - July 25, 2025":     "Big Patch",
		"(2025-07-25) Server Restart":   "Server Restart",
		"Server Restart (07/25/2025)":   "Server Restart",
		"July 25, 2025: Maintenance":    "Maintenance",
		"Patch 3.3.5 notes":             "Patch 3.3.5 notes",
		"[July 25, 2025]":               "[July 25, 2025]",
	}
	for in, want := range cases {
		if got := dates.StripFromTitle(in); got != want {
			t.Fatalf("StripFromTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

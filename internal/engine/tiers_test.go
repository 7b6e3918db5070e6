package engine

import (
	"testing"
	"time"

	"remindd/internal/model"
)

func TestTierSchedules(t *testing.T) {
	t.Parallel()
	if got := len(ImportantTiers); got != 12 {
		t.Fatalf("important tiers = %d, want 12", got)
	}
	if got := len(RegularTiers); got != 3 {
		t.Fatalf("regular tiers = %d, want 3", got)
	}
	// Both schedules end at the 10-minute tier.
	if ImportantTiers[len(ImportantTiers)-1].Offset != 10*time.Minute {
		t.Fatal("important schedule does not end at 10 minutes")
	}
	if RegularTiers[len(RegularTiers)-1].Offset != 10*time.Minute {
		t.Fatal("regular schedule does not end at 10 minutes")
	}
	// Offsets strictly descend: the missed pass depends on distinct fire
	// times per tier.
	for i := 1; i < len(ImportantTiers); i++ {
		if ImportantTiers[i].Offset >= ImportantTiers[i-1].Offset {
			t.Fatalf("important tiers not descending at %d", i)
		}
	}
}

func TestImportant(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		desc   string
		marker string
		want   bool
	}{
		{"marker present", "budget review !important", "", true},
		{"marker embedded", "!important: board meeting", "", true},
		{"no marker", "coffee chat", "", false},
		{"marker in title only is not checked", "", "", false},
		{"custom marker", "flagged [urgent]", "[urgent]", true},
		{"custom marker ignores default", "!important", "[urgent]", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ev := model.Event{Description: tc.desc}
			if got := Important(ev, tc.marker); got != tc.want {
				t.Fatalf("Important(%q, %q) = %v, want %v", tc.desc, tc.marker, got, tc.want)
			}
		})
	}
}

func TestTiersFor(t *testing.T) {
	t.Parallel()
	plain := model.Event{Description: "standup"}
	flagged := model.Event{Description: "release day !important"}
	if got := TiersFor(plain, ""); len(got) != len(RegularTiers) {
		t.Fatalf("plain event got %d tiers", len(got))
	}
	if got := TiersFor(flagged, ""); len(got) != len(ImportantTiers) {
		t.Fatalf("flagged event got %d tiers", len(got))
	}
}

package model

import "testing"

func TestNewCanonicalID(t *testing.T) {
	id, err := NewCanonicalID("ACME-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Project() != "ACME" {
		t.Errorf("Project() = %q, want ACME", id.Project())
	}
	if id.Number() != 7 {
		t.Errorf("Number() = %d, want 7", id.Number())
	}

	if _, err := NewCanonicalID("acme-7"); err == nil {
		t.Error("expected lowercase project code to be rejected")
	}
	if _, err := NewCanonicalID("ACME"); err == nil {
		t.Error("expected missing number suffix to be rejected")
	}
}

func TestExtractTrackerID(t *testing.T) {
	cases := map[string]CanonicalID{
		"Synced from Tracker: ACME-7": "ACME-7",
		"Tracker Issue: ACME-12":      "ACME-12",
		"no mention here":             "",
	}
	for in, want := range cases {
		if got := ExtractTrackerID(in); got != want {
			t.Errorf("ExtractTrackerID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTrackerLabels(t *testing.T) {
	labels := []string{"tracker:ACME-1", "bug", "tracker:ACME-2"}
	got := ExtractTrackerLabels(labels)
	if len(got) != 2 || got[0] != "ACME-1" || got[1] != "ACME-2" {
		t.Errorf("ExtractTrackerLabels(%v) = %v, want [ACME-1 ACME-2]", labels, got)
	}
}

func TestProjectCodeOf(t *testing.T) {
	if ProjectCodeOf("ACME-7") != "ACME" {
		t.Errorf("ProjectCodeOf(ACME-7) = %q, want ACME", ProjectCodeOf("ACME-7"))
	}
	if ProjectCodeOf("garbage") != "" {
		t.Errorf("ProjectCodeOf(garbage) = %q, want empty", ProjectCodeOf("garbage"))
	}
}

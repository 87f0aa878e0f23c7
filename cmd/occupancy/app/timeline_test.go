package app

import (
	"testing"

	"github.com/spectrumsense/lbt/internal/journal"
)

func TestTimelineData_Finalize(t *testing.T) {
	td := NewTimelineData()

	decisions := []journal.Decision{
		{TimestampUs: 0, EnergyDBm: -90, ThresholdDBm: -82, Status: "FREE", Mode: "LBE"},
		{TimestampUs: 1000, EnergyDBm: -60, ThresholdDBm: -82, Status: "BUSY", Mode: "LBE"},
		{TimestampUs: 2000, EnergyDBm: -70, ThresholdDBm: -82, Status: "FREE", Mode: "LBE", Forced: true},
		{TimestampUs: 3000, EnergyDBm: -80, ThresholdDBm: -82, Status: "FREE", Mode: "LBE"},
	}
	for _, d := range decisions {
		td.Update(d)
	}

	td.Finalize(4)

	if td.Total != 4 || td.Busy != 1 || td.Forced != 1 {
		t.Errorf("Unexpected summary counts: total=%d busy=%d forced=%d", td.Total, td.Busy, td.Forced)
	}
	if td.StartUs != 0 || td.EndUs != 3000 {
		t.Errorf("Unexpected time span: [%d, %d]", td.StartUs, td.EndUs)
	}
	if td.MinEnergy != -90 || td.MaxEnergy != -60 {
		t.Errorf("Unexpected energy range: [%f, %f]", td.MinEnergy, td.MaxEnergy)
	}
	if td.Threshold != -82 || td.Mode != "LBE" {
		t.Errorf("Unexpected threshold/mode: %f %q", td.Threshold, td.Mode)
	}

	binned := 0
	for _, b := range td.Bins {
		binned += b.Count
	}
	if binned != 4 {
		t.Errorf("Expected every decision binned, got %d of 4", binned)
	}
}

func TestTimelineData_EmptySession(t *testing.T) {
	td := NewTimelineData()
	td.Finalize(100)

	if td.Total != 0 || len(td.Bins) != 0 {
		t.Errorf("Expected an empty timeline, got total=%d bins=%d", td.Total, len(td.Bins))
	}

	if _, err := Render(td); err == nil {
		t.Error("Expected rendering an empty timeline to fail")
	}
}

func TestStatusColorPriority(t *testing.T) {
	cases := []struct {
		name string
		bin  Bin
		want any
	}{
		{"empty", Bin{}, noDataColor},
		{"free", Bin{Count: 3}, freeColor},
		{"busy beats free", Bin{Count: 3, Busy: 1}, busyColor},
		{"forced beats busy", Bin{Count: 3, Busy: 1, Forced: 1}, forcedColor},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusColor(tc.bin); got != tc.want {
				t.Errorf("Unexpected color for %+v", tc.bin)
			}
		})
	}
}

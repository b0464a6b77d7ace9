package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgressTracker_BasicFunctionality(t *testing.T) {
	quietTracker := NewProgressTracker(1000, true)
	if !quietTracker.IsQuiet() {
		t.Error("Expected quiet tracker to be in quiet mode")
	}

	quietTracker.Update(500, 2000)

	rate, eta, percentage := quietTracker.GetCurrentStats()
	if percentage != 50.0 {
		t.Errorf("Expected 50%% progress, got %.1f%%", percentage)
	}
	if rate != 2000 {
		t.Errorf("Expected rate 2000, got %d", rate)
	}
	if eta != 250*time.Millisecond {
		t.Errorf("Expected ETA 250ms, got %v", eta)
	}

	summary := quietTracker.Finish(1000, false)
	if summary == nil {
		t.Fatal("Expected summary to be returned")
	}
	if summary.TotalBytes != 500 {
		t.Errorf("Expected 500 bytes, got %d", summary.TotalBytes)
	}
	if summary.AverageSpeed != 1000 {
		t.Errorf("Expected average speed 1000, got %d", summary.AverageSpeed)
	}
}

func TestProgressTracker_StatisticsCalculation(t *testing.T) {
	tracker := NewProgressTracker(1000, true)

	tracker.Update(100, 100)
	tracker.Update(300, 200)
	tracker.Update(600, 600)
	tracker.Update(700, 100)

	rate, eta, percentage := tracker.GetCurrentStats()

	if percentage != 70.0 {
		t.Errorf("Expected 70%% progress, got %.1f%%", percentage)
	}
	// smoothed over the last three samples
	if rate != 300 {
		t.Errorf("Expected smoothed rate 300, got %d", rate)
	}
	if eta != time.Second {
		t.Errorf("Expected ETA 1s, got %v", eta)
	}

	tracker.Update(1000, 300)
	summary := tracker.Finish(250, false)

	if summary.TotalBytes != 1000 {
		t.Errorf("Expected 1000 bytes, got %d", summary.TotalBytes)
	}
	if summary.TotalTime <= 0 {
		t.Error("Total time should be positive")
	}
}

func TestProgressTracker_UnknownTotal(t *testing.T) {
	tracker := NewProgressTracker(0, true)
	tracker.Update(4096, 1024)

	_, eta, percentage := tracker.GetCurrentStats()
	if percentage != 0 {
		t.Errorf("Expected no percentage without a total, got %.1f", percentage)
	}
	if eta != 0 {
		t.Errorf("Expected no ETA without a total, got %v", eta)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{-1, "0 B"},
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
		{5368709120, "5.0 GiB"},
	}

	for _, test := range tests {
		result := formatBytes(test.bytes)
		if result != test.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", test.bytes, result, test.expected)
		}
	}
}

func TestProgressTracker_NonQuietMode(t *testing.T) {
	var out bytes.Buffer
	tracker := NewProgressTrackerWithWriter(1000, false, &out)

	if tracker.IsQuiet() {
		t.Error("Expected non-quiet tracker")
	}

	tracker.Update(250, 100)
	tracker.Update(500, 400)
	tracker.Update(1000, 200)

	summary := tracker.Finish(300, false)
	if summary == nil {
		t.Fatal("Expected summary to be returned")
	}

	output := out.String()
	if !strings.Contains(output, "Transfer completed successfully!") {
		t.Errorf("Expected completion summary, got: %s", output)
	}
	if !strings.Contains(output, "Peak speed: 400 B/s") {
		t.Errorf("Expected peak speed in summary, got: %s", output)
	}
}

func TestProgressTracker_FailedSummary(t *testing.T) {
	var out bytes.Buffer
	tracker := NewProgressTrackerWithWriter(0, false, &out)
	tracker.Update(2048, 0)

	summary := tracker.Finish(0, true)
	if !summary.Failed {
		t.Error("Expected failed summary")
	}
	if !strings.Contains(out.String(), "Transfer failed after 2.0 KiB") {
		t.Errorf("Expected failure line, got: %s", out.String())
	}
}

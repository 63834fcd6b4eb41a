package utils

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestDurationUS(t *testing.T) {
	d := 1234*time.Microsecond + 567*time.Nanosecond
	got := DurationUS(d)
	if math.Abs(got-1234.567) > 0.001 {
		t.Fatalf("want 1234.567µs, got %.3f", got)
	}
}

func TestPrintTimingStatsRespectsVerbose(t *testing.T) {
	var buf strings.Builder
	oldOut, oldVerbose := Output, Verbose
	defer func() { Output, Verbose = oldOut, oldVerbose }()
	Output = &buf

	stats := &TimingStats{TotalTime: time.Second, ForwardPassTime: 400 * time.Millisecond}

	Verbose = false
	PrintTimingStats(stats, 2)
	if buf.Len() != 0 {
		t.Fatal("expected no output when Verbose is false")
	}

	Verbose = true
	PrintTimingStats(stats, 2)
	if !strings.Contains(buf.String(), "Forward pass") {
		t.Fatalf("missing forward pass line in output:\n%s", buf.String())
	}
}

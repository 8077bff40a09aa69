package gpu

import (
	"math"
	"testing"
)

func TestParseQueryLine(t *testing.T) {
	snap, err := parseQueryLine("NVIDIA A100-SXM4-80GB, 81920, 10240, 71680")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !snap.Available {
		t.Fatalf("expected available snapshot")
	}
	if snap.Device != "NVIDIA A100-SXM4-80GB" {
		t.Fatalf("device: %q", snap.Device)
	}
	if snap.TotalGB != 80 || snap.AllocatedGB != 10 || snap.FreeGB != 70 {
		t.Fatalf("memory: total=%g allocated=%g free=%g", snap.TotalGB, snap.AllocatedGB, snap.FreeGB)
	}
	if got := snap.UtilizationPercent(); math.Abs(got-12.5) > 1e-9 {
		t.Fatalf("utilization: %g", got)
	}
}

func TestParseQueryLineErrors(t *testing.T) {
	if _, err := parseQueryLine(""); err == nil {
		t.Fatalf("empty line should fail")
	}
	if _, err := parseQueryLine("name, 1, 2"); err == nil {
		t.Fatalf("short line should fail")
	}
	if _, err := parseQueryLine("name, a, b, c"); err == nil {
		t.Fatalf("non-numeric figures should fail")
	}
	if _, err := parseQueryLine("GPU, [Insufficient Permissions], 0, 0"); err == nil {
		t.Fatalf("permission failure should be reported")
	}
}

func TestUtilizationPercentZeroTotal(t *testing.T) {
	if got := (MemorySnapshot{Available: true}).UtilizationPercent(); got != 0 {
		t.Fatalf("zero total must not divide: %g", got)
	}
	if got := (MemorySnapshot{}).UtilizationPercent(); got != 0 {
		t.Fatalf("unavailable snapshot must report zero: %g", got)
	}
}

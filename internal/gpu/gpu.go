// Package gpu reads point-in-time device-memory figures by querying
// nvidia-smi. Snapshots are purely observational and never cached.
package gpu

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/mem"
)

// MemorySnapshot is a point-in-time read of device memory. Available is
// false when no device is present or introspection failed; the remaining
// fields are then zero.
type MemorySnapshot struct {
	Available   bool
	Device      string
	TotalGB     float64
	AllocatedGB float64
	FreeGB      float64
	Err         string
}

// UtilizationPercent returns allocated/total as a percentage, zero when
// the total is unreported.
func (s MemorySnapshot) UtilizationPercent() float64 {
	if !s.Available || s.TotalGB <= 0 {
		return 0
	}
	return s.AllocatedGB / s.TotalGB * 100
}

// Snapshot queries the first GPU via nvidia-smi. Any failure yields an
// unavailable snapshot rather than an error; probes degrade gracefully
// on hosts without a GPU.
func Snapshot(ctx context.Context) MemorySnapshot {
	cmd := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return MemorySnapshot{Err: fmt.Sprintf("nvidia-smi failed: %v", err)}
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	snap, err := parseQueryLine(line)
	if err != nil {
		return MemorySnapshot{Err: err.Error()}
	}
	return snap
}

// parseQueryLine parses one "name, total, used, free" CSV line with
// memory figures in MiB.
func parseQueryLine(line string) (MemorySnapshot, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return MemorySnapshot{}, fmt.Errorf("unexpected nvidia-smi output: %q", line)
	}
	name := strings.TrimSpace(fields[0])
	if strings.Contains(line, "[Insufficient Permissions]") {
		return MemorySnapshot{}, fmt.Errorf("insufficient permissions to run nvidia-smi")
	}
	mib := make([]float64, 3)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return MemorySnapshot{}, fmt.Errorf("failed to parse nvidia-smi memory figure %q: %v", f, err)
		}
		mib[i] = v
	}
	const mibPerGB = 1024
	return MemorySnapshot{
		Available:   true,
		Device:      name,
		TotalGB:     mib[0] / mibPerGB,
		AllocatedGB: mib[1] / mibPerGB,
		FreeGB:      mib[2] / mibPerGB,
	}, nil
}

// HostMemoryUsedPercent reports host RAM utilization for the metrics
// endpoint. The second return is false when the read fails.
func HostMemoryUsedPercent() (float64, bool) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, false
	}
	return vm.UsedPercent, true
}

// Package metrics implements the Metric Sampler: a CPU/memory/disk
// snapshot taken over the Remote Executor, recorded as a
// domain.ServerMetric. Samples are taken on every server status read
// (handlers.ServerStatus) and on each workers.ServerMonitor sweep.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/remote"
)

// Snapshot carries both the numeric percentages persisted as a
// domain.ServerMetric and the human-readable strings a status display
// shows alongside them.
type Snapshot struct {
	Uptime     string
	Memory     string // e.g. "2.0G/8.0G"
	Disk       string // e.g. "5.0G/20.0G (25% used)"
	Containers string

	CPUPercent  *float64
	MemPercent  *float64
	DiskPercent *float64
}

// Sample queries a connected Runner for uptime, memory, disk, CPU, and
// container state in one pass. A failure of the uptime command aborts the
// sample with an error; a failure on any other command leaves the
// corresponding field nil/empty — a server with an unparseable `top`
// output still reports memory and disk.
func Sample(ctx context.Context, r remote.Runner) (*Snapshot, error) {
	snap := &Snapshot{}

	uptime, err := r.RunChecked(ctx, "uptime -p", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("metrics: reading uptime: %w", err)
	}
	snap.Uptime = strings.TrimSpace(uptime)

	memOut, _, _, err := r.Run(ctx, "free -b | awk '/Mem:/{print $2, $3, $4}'", 15*time.Second)
	if err == nil {
		if total, used, ok := parseThreeInts(memOut); ok && total > 0 {
			pct := round1(float64(used) / float64(total) * 100)
			snap.MemPercent = &pct
			snap.Memory = fmt.Sprintf("%s/%s", humanBytes(used), humanBytes(total))
		}
	}

	diskOut, _, _, err := r.Run(ctx, "df -B1 / | awk 'NR==2{print $2, $3, $4, $5}'", 15*time.Second)
	if err == nil {
		if total, used, percent, ok := parseDiskLine(diskOut); ok {
			pct := float64(percent)
			snap.DiskPercent = &pct
			snap.Disk = fmt.Sprintf("%s/%s (%d%% used)", humanBytes(used), humanBytes(total), percent)
		}
	}

	cpuOut, _, _, err := r.Run(ctx, `top -bn1 | awk '/^%?Cpu\(s\)/{print $2}'`, 15*time.Second)
	if err == nil {
		snap.CPUPercent = ParseCPU(cpuOut)
	}

	containersOut, _, _, err := r.Run(ctx, "docker ps --format '{{.Names}}\t{{.Status}}' 2>/dev/null || echo 'Docker not running'", 15*time.Second)
	if err == nil {
		snap.Containers = strings.TrimSpace(containersOut)
	}

	return snap, nil
}

// ParseCPU parses a raw top/mpstat CPU-busy string into a percentage
// rounded to one decimal place, or nil if s does not parse as a float.
func ParseCPU(s string) *float64 {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil
	}
	rounded := round1(v)
	return &rounded
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

func parseThreeInts(s string) (a, b int64, ok bool) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return 0, 0, false
	}
	x, err1 := strconv.ParseInt(fields[0], 10, 64)
	y, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return x, y, true
}

// parseDiskLine parses "<total> <used> <avail> <percent>%" into
// total/used bytes and the bare integer percent.
func parseDiskLine(s string) (total, used int64, percent int, ok bool) {
	fields := strings.Fields(s)
	if len(fields) < 4 {
		return 0, 0, 0, false
	}
	t, err1 := strconv.ParseInt(fields[0], 10, 64)
	u, err2 := strconv.ParseInt(fields[1], 10, 64)
	p, err3 := strconv.Atoi(strings.TrimSuffix(fields[3], "%"))
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return t, u, p, true
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return fmt.Sprintf("%.1f%c", float64(n)/float64(div), units[exp])
}

// ToDomain converts a Snapshot into a persistable domain.ServerMetric row
// for serverID, stamped at the given time.
func ToDomain(serverID int64, recordedAt time.Time, snap *Snapshot) *domain.ServerMetric {
	return &domain.ServerMetric{
		ServerID:    serverID,
		RecordedAt:  recordedAt,
		CPUPercent:  snap.CPUPercent,
		MemPercent:  snap.MemPercent,
		DiskPercent: snap.DiskPercent,
	}
}

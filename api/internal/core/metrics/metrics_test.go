package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/metrics"
	"github.com/infrakt/infrakt/api/internal/core/remote"
)

func TestParseCPU(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"12.3", f64(12.3)},
		{"45.678", f64(45.7)},
		{"50", f64(50.0)},
		{"  8.5  ", f64(8.5)},
		{"bad", nil},
		{"", nil},
		{"0.0", f64(0.0)},
		{"100.0", f64(100.0)},
	}
	for _, c := range cases {
		got := metrics.ParseCPU(c.in)
		if (got == nil) != (c.want == nil) {
			t.Errorf("ParseCPU(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		if got != nil && *got != *c.want {
			t.Errorf("ParseCPU(%q) = %v, want %v", c.in, *got, *c.want)
		}
	}
}

func f64(v float64) *float64 { return &v }

func TestSample_ComputesMemAndDiskPercent(t *testing.T) {
	ctx := context.Background()
	runner := remote.NewFakeRunner("host1")
	runner.Responses["uptime -p"] = remote.FakeResponse{Stdout: "up 5 days"}
	runner.Responses["free -b | awk '/Mem:/{print $2, $3, $4}'"] = remote.FakeResponse{Stdout: "8000000000 2000000000 5000000000"}
	runner.Responses["df -B1 / | awk 'NR==2{print $2, $3, $4, $5}'"] = remote.FakeResponse{Stdout: "20000000000 5000000000 14000000000 25%"}
	runner.Responses[`top -bn1 | awk '/^%?Cpu\(s\)/{print $2}'`] = remote.FakeResponse{Stdout: "25.0"}

	snap, err := metrics.Sample(ctx, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.MemPercent == nil || *snap.MemPercent != 25.0 {
		t.Errorf("expected mem_percent 25.0, got %v", snap.MemPercent)
	}
	if snap.DiskPercent == nil || *snap.DiskPercent != 25.0 {
		t.Errorf("expected disk_percent 25.0, got %v", snap.DiskPercent)
	}
	if snap.CPUPercent == nil || *snap.CPUPercent != 25.0 {
		t.Errorf("expected cpu_percent 25.0, got %v", snap.CPUPercent)
	}
	if snap.Uptime != "up 5 days" {
		t.Errorf("expected uptime to be captured, got %q", snap.Uptime)
	}
}

func TestSample_UnparseableCPUYieldsNilWithoutFailingSnapshot(t *testing.T) {
	ctx := context.Background()
	runner := remote.NewFakeRunner("host1")
	runner.Responses["uptime -p"] = remote.FakeResponse{Stdout: "up 1 day"}
	runner.Responses["free -b | awk '/Mem:/{print $2, $3, $4}'"] = remote.FakeResponse{Stdout: "8000000000 2000000000 5000000000"}
	runner.Responses["df -B1 / | awk 'NR==2{print $2, $3, $4, $5}'"] = remote.FakeResponse{Stdout: "20000000000 5000000000 14000000000 25%"}
	runner.Responses[`top -bn1 | awk '/^%?Cpu\(s\)/{print $2}'`] = remote.FakeResponse{Stdout: "n/a"}

	snap, err := metrics.Sample(ctx, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.CPUPercent != nil {
		t.Errorf("expected nil cpu_percent for unparseable top output, got %v", *snap.CPUPercent)
	}
	if snap.MemPercent == nil || *snap.MemPercent != 25.0 {
		t.Errorf("expected mem_percent to still be captured, got %v", snap.MemPercent)
	}
}

func TestToDomain(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cpu := 10.0
	snap := &metrics.Snapshot{CPUPercent: &cpu}
	m := metrics.ToDomain(7, now, snap)
	if m.ServerID != 7 || m.RecordedAt != now || m.CPUPercent == nil || *m.CPUPercent != 10.0 {
		t.Errorf("unexpected conversion: %+v", m)
	}
}

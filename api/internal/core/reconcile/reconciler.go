// Package reconcile derives an App's true container state on the remote
// host and maps it to the persisted status model.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/remote"
)

// ContainerState is one record from `docker compose ps --format json`.
type ContainerState struct {
	Name   string `json:"Name"`
	State  string `json:"State"`
	Status string `json:"Status"`
	Image  string `json:"Image"`
	Health string `json:"Health"`
}

// Status derives the reconciled App status from the observed container
// states, per the table in §4.7: no records → stopped; any restarting →
// restarting; all running → running; some-but-not-all running → error;
// otherwise stopped.
func Status(states []ContainerState) domain.AppStatus {
	if len(states) == 0 {
		return domain.AppStopped
	}
	running, restarting := 0, 0
	for _, s := range states {
		switch s.State {
		case "restarting":
			restarting++
		case "running":
			running++
		}
	}
	if restarting > 0 {
		return domain.AppRestarting
	}
	if running == len(states) {
		return domain.AppRunning
	}
	if running > 0 {
		return domain.AppError
	}
	return domain.AppStopped
}

// Reconcile queries `docker compose ps --format json` in the app directory
// and returns the reconciled status. A non-zero exit or empty output is
// treated as "no records" (stopped), not an error.
func Reconcile(ctx context.Context, r remote.Runner, appDir string) (domain.AppStatus, []ContainerState, error) {
	cmd := fmt.Sprintf("cd %s && docker compose ps --format json", remote.Quote(appDir))
	out, _, code, err := r.Run(ctx, cmd, 30*time.Second)
	if err != nil {
		return domain.AppStopped, nil, nil
	}
	if code != 0 || strings.TrimSpace(out) == "" {
		return domain.AppStopped, nil, nil
	}

	var states []ContainerState
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var s ContainerState
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			continue
		}
		states = append(states, s)
	}
	return Status(states), states, nil
}

// HealthResult is the outcome of an HTTP health probe.
type HealthResult struct {
	Healthy      bool
	StatusCode   int
	ResponseMsMS float64
}

// CheckHealth issues a curl against the app's loopback port+path on the
// remote host; curl itself runs on the remote host since the port is bound
// to its loopback interface, not reachable from the control plane.
func CheckHealth(ctx context.Context, r remote.Runner, port int, path string) (HealthResult, error) {
	if path == "" {
		path = "/"
	}
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	cmd := fmt.Sprintf("curl -s -o /dev/null -w '%%{http_code} %%{time_total}' %s", remote.Quote(url))
	out, _, code, err := r.Run(ctx, cmd, 15*time.Second)
	if err != nil {
		return HealthResult{}, err
	}
	if code != 0 {
		return HealthResult{Healthy: false}, nil
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return HealthResult{Healthy: false}, nil
	}
	status, errAtoi := strconv.Atoi(fields[0])
	if errAtoi != nil {
		return HealthResult{Healthy: false}, nil
	}
	seconds, errParse := strconv.ParseFloat(fields[1], 64)
	if errParse != nil {
		return HealthResult{Healthy: false}, nil
	}
	healthy := status >= 200 && status < 400
	return HealthResult{Healthy: healthy, StatusCode: status, ResponseMsMS: roundOneDecimal(seconds * 1000)}, nil
}

func roundOneDecimal(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

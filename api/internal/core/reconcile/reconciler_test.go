package reconcile

import (
	"context"
	"testing"

	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/remote"
)

func TestStatus_Coverage(t *testing.T) {
	cases := []struct {
		name   string
		states []ContainerState
		want   domain.AppStatus
	}{
		{"no records", nil, domain.AppStopped},
		{"command fails treated as no records", []ContainerState{}, domain.AppStopped},
		{"any restarting", []ContainerState{{State: "running"}, {State: "restarting"}}, domain.AppRestarting},
		{"all running", []ContainerState{{State: "running"}, {State: "running"}}, domain.AppRunning},
		{"partial running is error", []ContainerState{{State: "running"}, {State: "exited"}}, domain.AppError},
		{"none running", []ContainerState{{State: "exited"}, {State: "exited"}}, domain.AppStopped},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Status(c.states); got != c.want {
				t.Errorf("Status(%v) = %s, want %s", c.states, got, c.want)
			}
		})
	}
}

func TestReconcile_ParsesNDJSON(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	r.Responses["cd '/opt/infrakt/apps/api' && docker compose ps --format json"] = remote.FakeResponse{
		Stdout: `{"Name":"infrakt-api","State":"running","Status":"Up 2 minutes","Image":"nginx:1.25","Health":""}` + "\n",
	}
	status, states, err := Reconcile(context.Background(), r, "/opt/infrakt/apps/api")
	if err != nil {
		t.Fatal(err)
	}
	if status != domain.AppRunning {
		t.Errorf("expected running, got %s", status)
	}
	if len(states) != 1 || states[0].Name != "infrakt-api" {
		t.Errorf("unexpected states: %+v", states)
	}
}

func TestReconcile_NoRecordsOnFailure(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	r.Responses["cd '/opt/infrakt/apps/api' && docker compose ps --format json"] = remote.FakeResponse{ExitCode: 1}
	status, states, err := Reconcile(context.Background(), r, "/opt/infrakt/apps/api")
	if err != nil {
		t.Fatal(err)
	}
	if status != domain.AppStopped || states != nil {
		t.Errorf("expected stopped/nil on failure, got %s %v", status, states)
	}
}

func TestCheckHealth(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	r.Responses["curl -s -o /dev/null -w '%{http_code} %{time_total}' 'http://127.0.0.1:8080/'"] = remote.FakeResponse{
		Stdout: "200 0.123",
	}
	res, err := CheckHealth(context.Background(), r, 8080, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Healthy || res.StatusCode != 200 {
		t.Errorf("expected healthy 200, got %+v", res)
	}
}

func TestCheckHealth_Unhealthy(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	r.Responses["curl -s -o /dev/null -w '%{http_code} %{time_total}' 'http://127.0.0.1:8080/'"] = remote.FakeResponse{
		Stdout: "503 0.5",
	}
	res, err := CheckHealth(context.Background(), r, 8080, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Healthy {
		t.Errorf("expected unhealthy for 503")
	}
}

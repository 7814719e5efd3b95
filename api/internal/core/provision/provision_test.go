package provision_test

import (
	"context"
	"strings"
	"testing"

	"github.com/infrakt/infrakt/api/internal/core/provision"
	"github.com/infrakt/infrakt/api/internal/core/remote"
)

func TestProvision_RunsStepsInOrderAndConfiguresTraefik(t *testing.T) {
	ctx := context.Background()
	runner := remote.NewFakeRunner("host1")

	var seen []string
	err := provision.Provision(ctx, runner, "ops@example.com", func(name string, index, total int) {
		seen = append(seen, name)
		if index >= total {
			t.Errorf("index %d should be < total %d", index, total)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen[0] != "Updating packages" {
		t.Errorf("expected first step to update packages, got %q", seen[0])
	}
	lastUFW := -1
	dockerNetwork := -1
	for i, name := range seen {
		if name == "Configuring UFW firewall" {
			lastUFW = i
		}
		if name == "Creating Docker network" {
			dockerNetwork = i
		}
	}
	if lastUFW == -1 || dockerNetwork == -1 || dockerNetwork < lastUFW {
		t.Errorf("expected UFW configuration before docker network creation, got order %v", seen)
	}

	traefikYML, ok := runner.Files["/opt/infrakt/traefik/traefik.yml"]
	if !ok {
		t.Fatal("expected traefik.yml to be uploaded")
	}
	if !strings.Contains(traefikYML, "ops@example.com") {
		t.Errorf("expected acme email in static config, got:\n%s", traefikYML)
	}
	if !strings.Contains(traefikYML, "/opt/infrakt/traefik/conf.d") {
		t.Errorf("expected file-provider directory in static config, got:\n%s", traefikYML)
	}

	composeYML, ok := runner.Files["/opt/infrakt/traefik/docker-compose.yml"]
	if !ok {
		t.Fatal("expected traefik docker-compose.yml to be uploaded")
	}
	if !strings.Contains(composeYML, "traefik:v3.2") {
		t.Errorf("expected pinned traefik image, got:\n%s", composeYML)
	}

	acmeInit := false
	traefikStart := false
	for _, c := range runner.Commands {
		if strings.Contains(c, "chmod 600 /opt/infrakt/traefik/letsencrypt/acme.json") {
			acmeInit = true
		}
		if c == "cd /opt/infrakt/traefik && docker compose up -d" {
			traefikStart = true
		}
	}
	if !acmeInit {
		t.Error("expected ACME storage file to be initialised with mode 600")
	}
	if !traefikStart {
		t.Error("expected traefik to be started via docker compose up -d")
	}
}

func TestProvision_FailedStepHaltsSequence(t *testing.T) {
	ctx := context.Background()
	runner := remote.NewFakeRunner("host1")
	runner.Responses["apt-get install -y -qq fail2ban && systemctl enable fail2ban && systemctl start fail2ban"] = remote.FakeResponse{ExitCode: 1, Stderr: "boom"}

	err := provision.Provision(ctx, runner, "", nil)
	if err == nil {
		t.Fatal("expected error when a provisioning step fails")
	}

	for _, c := range runner.Commands {
		if strings.Contains(c, "docker network create") {
			t.Errorf("expected provisioning to halt before later steps, but found %q", c)
		}
	}
}

func TestWipe_RunsAllStepsAndDeletesInfraktDir(t *testing.T) {
	ctx := context.Background()
	runner := remote.NewFakeRunner("host1")

	var steps int
	err := provision.Wipe(ctx, runner, func(name string, index, total int) {
		steps = total
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steps != len(provision.WipeSteps) {
		t.Errorf("expected %d total steps reported, got %d", len(provision.WipeSteps), steps)
	}

	found := false
	for _, c := range runner.Commands {
		if c == "rm -rf /opt/infrakt" {
			found = true
		}
	}
	if !found {
		t.Error("expected wipe to delete /opt/infrakt")
	}
}

package proxy

import (
	"context"
	"strings"
	"testing"

	"github.com/infrakt/infrakt/api/internal/core/remote"
)

func TestSanitise(t *testing.T) {
	cases := map[string]string{
		"api.example.com":  "api-example-com",
		"-leading-.com":    "leading--com",
		"a..b":             "a--b",
	}
	for in, want := range cases {
		if got := Sanitise(in); got != want {
			t.Errorf("Sanitise(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddDomain_WritesExpectedFile(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	s := NewStore("/opt/infrakt/traefik/conf.d")

	_, err := s.AddDomain(context.Background(), r, "api.example.com", 8001, "api")
	if err != nil {
		t.Fatal(err)
	}
	content, ok := r.Files["/opt/infrakt/traefik/conf.d/api-example-com.yml"]
	if !ok {
		t.Fatalf("expected file written at sanitised path, got files: %v", r.Files)
	}
	if !strings.Contains(content, "infrakt-api:8001") {
		t.Errorf("expected service target infrakt-api:8001, got:\n%s", content)
	}
	if !strings.Contains(content, "certResolver: letsencrypt") {
		t.Errorf("expected letsencrypt cert resolver, got:\n%s", content)
	}
}

func TestAddDomain_Idempotent(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	s := NewStore("/opt/infrakt/traefik/conf.d")

	s.AddDomain(context.Background(), r, "api.example.com", 8001, "api")
	first := r.Files["/opt/infrakt/traefik/conf.d/api-example-com.yml"]
	s.AddDomain(context.Background(), r, "api.example.com", 8001, "api")
	second := r.Files["/opt/infrakt/traefik/conf.d/api-example-com.yml"]

	if first != second {
		t.Errorf("expected byte-identical second write:\n%s\nvs\n%s", first, second)
	}
}

func TestListDomains_RoundTrip(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	s := NewStore("/opt/infrakt/traefik/conf.d")

	if _, err := s.AddDomain(context.Background(), r, "api.example.com", 8001, "api"); err != nil {
		t.Fatal(err)
	}

	var combined strings.Builder
	for _, content := range r.Files {
		combined.WriteString("---FILE---")
		combined.WriteString(content)
	}
	r.Responses["for f in /opt/infrakt/traefik/conf.d/*.yml; do echo ---FILE---; cat \"$f\" 2>/dev/null; done"] = remote.FakeResponse{
		Stdout: combined.String(),
	}

	routes, err := s.ListDomains(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].Domain != "api.example.com" || routes[0].Port != 8001 {
		t.Errorf("unexpected routes: %+v", routes)
	}
}

func TestListDomains_SkipsMalformed(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	s := NewStore("/opt/infrakt/traefik/conf.d")
	r.Responses["for f in /opt/infrakt/traefik/conf.d/*.yml; do echo ---FILE---; cat \"$f\" 2>/dev/null; done"] = remote.FakeResponse{
		Stdout: "---FILE---not: [valid yaml: :::",
	}
	routes, err := s.ListDomains(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 0 {
		t.Errorf("expected malformed file to be skipped, got %+v", routes)
	}
}

func TestRemoveDomain(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	s := NewStore("/opt/infrakt/traefik/conf.d")
	if err := s.RemoveDomain(context.Background(), r, "api.example.com"); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, cmd := range r.Commands {
		if strings.Contains(cmd, "rm -f") && strings.Contains(cmd, "api-example-com.yml") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an rm -f command against the sanitised path, got: %v", r.Commands)
	}
}

// Package provision implements the Host Provisioner: the ordered shell
// steps that turn a bare Linux host into a managed infrakt server (Docker,
// Traefik, UFW, fail2ban, the infrakt directory tree) and the inverse wipe
// that tears all of it back down.
package provision

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/infrakt/infrakt/api/internal/core/remote"
)

// step is one named shell command run in order, with its own timeout.
type step struct {
	Name    string
	Command string
	Timeout time.Duration
}

// ProvisionSteps installs packages and system services. Order matters: UFW
// allows SSH before the firewall is enabled, to avoid a lockout.
var ProvisionSteps = []step{
	{"Updating packages", "apt-get update -qq && DEBIAN_FRONTEND=noninteractive apt-get upgrade -y -qq", 300 * time.Second},
	{"Installing Docker", "if ! command -v docker &>/dev/null; then curl -fsSL https://get.docker.com | sh; systemctl enable docker && systemctl start docker; fi", 300 * time.Second},
	{"Installing fail2ban", "apt-get install -y -qq fail2ban && systemctl enable fail2ban && systemctl start fail2ban", 300 * time.Second},
	{"Configuring UFW firewall", "apt-get install -y -qq ufw && ufw allow 22/tcp && ufw allow 80/tcp && ufw allow 443/tcp && ufw default deny incoming && ufw default allow outgoing && echo 'y' | ufw enable", 300 * time.Second},
	{"Creating infrakt directories", "mkdir -p /opt/infrakt/apps /opt/infrakt/traefik/conf.d /opt/infrakt/traefik/letsencrypt /opt/infrakt/backups", 300 * time.Second},
	{"Installing awscli", "pip3 install -q awscli 2>/dev/null || apt-get install -y -qq awscli 2>/dev/null || true", 300 * time.Second},
	{"Creating Docker network", "docker network create infrakt 2>/dev/null || true", 300 * time.Second},
}

// WipeSteps removes every trace of a prior orchestrator (k3s, Rancher,
// snaps), Docker itself, common reverse proxies, and the infrakt tree.
var WipeSteps = []step{
	{"Uninstalling k3s (if present)", "if [ -x /usr/local/bin/k3s-killall.sh ]; then /usr/local/bin/k3s-killall.sh; fi && if [ -x /usr/local/bin/k3s-uninstall.sh ]; then /usr/local/bin/k3s-uninstall.sh; fi && if [ -x /usr/local/bin/k3s-agent-uninstall.sh ]; then /usr/local/bin/k3s-agent-uninstall.sh; fi || true", 120 * time.Second},
	{"Removing Rancher (if present)", "docker rm -f $(docker ps -a --filter name=rancher -q) 2>/dev/null || true && rm -rf /var/lib/rancher /etc/rancher 2>/dev/null || true", 120 * time.Second},
	{"Removing snap packages (if present)", "if command -v snap &>/dev/null; then snap list 2>/dev/null | awk 'NR>1{print $1}' | while read pkg; do snap remove --purge \"$pkg\" 2>/dev/null || true; done; systemctl stop snapd 2>/dev/null || true; apt-get purge -y -qq snapd 2>/dev/null || true; rm -rf /snap /var/snap /var/lib/snapd ~/snap 2>/dev/null || true; fi || true", 120 * time.Second},
	{"Stopping all Docker containers", "docker stop $(docker ps -aq) 2>/dev/null || true", 120 * time.Second},
	{"Removing all Docker data", "docker system prune -af --volumes 2>/dev/null || true", 120 * time.Second},
	{"Uninstalling Docker (full removal)", "systemctl stop docker docker.socket containerd 2>/dev/null || true && apt-get purge -y -qq docker-ce docker-ce-cli containerd.io docker-buildx-plugin docker-compose-plugin docker.io 2>/dev/null || true && rm -rf /var/lib/docker /var/lib/containerd /etc/docker 2>/dev/null || true", 120 * time.Second},
	{"Stopping and removing common services", "systemctl stop nginx apache2 caddy traefik haproxy 2>/dev/null || true && apt-get purge -y -qq nginx* apache2* caddy 2>/dev/null || true", 120 * time.Second},
	{"Cleaning up unused packages", "apt-get autoremove -y -qq && apt-get clean -qq", 120 * time.Second},
	{"Deleting /opt/infrakt", "rm -rf /opt/infrakt", 120 * time.Second},
}

// ProgressFunc reports step name, 0-based index, and total step count.
type ProgressFunc func(name string, index, total int)

// traefikStaticConfig mirrors Traefik's file-provider static config shape;
// field order is fixed by yaml struct tags (not alphabetised) so the
// rendered document reads the same way every provisioning run.
type traefikStaticConfig struct {
	API struct {
		Dashboard bool `yaml:"dashboard"`
		Insecure  bool `yaml:"insecure"`
	} `yaml:"api"`
	EntryPoints struct {
		Web struct {
			Address string `yaml:"address"`
			HTTP    struct {
				Redirections struct {
					EntryPoint struct {
						To        string `yaml:"to"`
						Scheme    string `yaml:"scheme"`
						Permanent bool   `yaml:"permanent"`
					} `yaml:"entryPoint"`
				} `yaml:"redirections"`
			} `yaml:"http"`
		} `yaml:"web"`
		WebSecure struct {
			Address string `yaml:"address"`
		} `yaml:"websecure"`
	} `yaml:"entryPoints"`
	CertificatesResolvers struct {
		Letsencrypt struct {
			ACME struct {
				Email         string `yaml:"email"`
				Storage       string `yaml:"storage"`
				HTTPChallenge struct {
					EntryPoint string `yaml:"entryPoint"`
				} `yaml:"httpChallenge"`
			} `yaml:"acme"`
		} `yaml:"letsencrypt"`
	} `yaml:"certificatesResolvers"`
	Providers struct {
		File struct {
			Directory string `yaml:"directory"`
			Watch     bool   `yaml:"watch"`
		} `yaml:"file"`
	} `yaml:"providers"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func buildTraefikStaticConfig(acmeEmail string) (string, error) {
	var cfg traefikStaticConfig
	cfg.API.Dashboard = true
	cfg.API.Insecure = true
	cfg.EntryPoints.Web.Address = ":80"
	cfg.EntryPoints.Web.HTTP.Redirections.EntryPoint.To = "websecure"
	cfg.EntryPoints.Web.HTTP.Redirections.EntryPoint.Scheme = "https"
	cfg.EntryPoints.Web.HTTP.Redirections.EntryPoint.Permanent = true
	cfg.EntryPoints.WebSecure.Address = ":443"
	cfg.CertificatesResolvers.Letsencrypt.ACME.Email = acmeEmail
	cfg.CertificatesResolvers.Letsencrypt.ACME.Storage = "/letsencrypt/acme.json"
	cfg.CertificatesResolvers.Letsencrypt.ACME.HTTPChallenge.EntryPoint = "web"
	cfg.Providers.File.Directory = "/opt/infrakt/traefik/conf.d"
	cfg.Providers.File.Watch = true
	cfg.Log.Level = "INFO"

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("provision: marshalling traefik static config: %w", err)
	}
	return string(out), nil
}

type traefikCompose struct {
	Services struct {
		Traefik struct {
			Image         string   `yaml:"image"`
			ContainerName string   `yaml:"container_name"`
			Restart       string   `yaml:"restart"`
			Ports         []string `yaml:"ports"`
			Volumes       []string `yaml:"volumes"`
			ExtraHosts    []string `yaml:"extra_hosts"`
			Networks      []string `yaml:"networks"`
		} `yaml:"traefik"`
	} `yaml:"services"`
	Networks struct {
		Infrakt struct {
			External bool `yaml:"external"`
		} `yaml:"infrakt"`
	} `yaml:"networks"`
}

func buildTraefikCompose() (string, error) {
	var cfg traefikCompose
	cfg.Services.Traefik.Image = "traefik:v3.2"
	cfg.Services.Traefik.ContainerName = "infrakt-traefik"
	cfg.Services.Traefik.Restart = "unless-stopped"
	cfg.Services.Traefik.Ports = []string{"80:80", "443:443", "127.0.0.1:8080:8080"}
	cfg.Services.Traefik.Volumes = []string{
		"/opt/infrakt/traefik/traefik.yml:/etc/traefik/traefik.yml:ro",
		"/opt/infrakt/traefik/conf.d:/opt/infrakt/traefik/conf.d:ro",
		"/opt/infrakt/traefik/letsencrypt:/letsencrypt",
	}
	cfg.Services.Traefik.ExtraHosts = []string{"host.docker.internal:host-gateway"}
	cfg.Services.Traefik.Networks = []string{"infrakt"}
	cfg.Networks.Infrakt.External = true

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("provision: marshalling traefik compose: %w", err)
	}
	return string(out), nil
}

// Provision runs every ProvisionSteps entry followed by the Traefik
// static-config write, compose-file write, ACME storage init, and Traefik
// start, reporting progress via onStep if non-nil.
func Provision(ctx context.Context, r remote.Runner, acmeEmail string, onStep ProgressFunc) error {
	const trailingSteps = 4
	total := len(ProvisionSteps) + trailingSteps
	idx := 0

	report := func(name string) {
		if onStep != nil {
			onStep(name, idx, total)
		}
	}

	for _, s := range ProvisionSteps {
		report(s.Name)
		if _, err := r.RunChecked(ctx, s.Command, s.Timeout); err != nil {
			return fmt.Errorf("provision: step %q: %w", s.Name, err)
		}
		idx++
	}

	report("Setting up Traefik static config")
	staticConfig, err := buildTraefikStaticConfig(acmeEmail)
	if err != nil {
		return err
	}
	if err := r.UploadString(ctx, staticConfig, "/opt/infrakt/traefik/traefik.yml"); err != nil {
		return fmt.Errorf("provision: uploading traefik.yml: %w", err)
	}
	idx++

	report("Writing Traefik docker-compose.yml")
	composeYML, err := buildTraefikCompose()
	if err != nil {
		return err
	}
	if err := r.UploadString(ctx, composeYML, "/opt/infrakt/traefik/docker-compose.yml"); err != nil {
		return fmt.Errorf("provision: uploading traefik docker-compose.yml: %w", err)
	}
	idx++

	report("Initializing ACME storage")
	if _, err := r.RunChecked(ctx, "touch /opt/infrakt/traefik/letsencrypt/acme.json && chmod 600 /opt/infrakt/traefik/letsencrypt/acme.json", 30*time.Second); err != nil {
		return fmt.Errorf("provision: initializing acme storage: %w", err)
	}
	idx++

	report("Starting Traefik")
	if _, err := r.RunChecked(ctx, "cd /opt/infrakt/traefik && docker compose up -d", 120*time.Second); err != nil {
		return fmt.Errorf("provision: starting traefik: %w", err)
	}
	return nil
}

// Wipe runs every WipeSteps entry, reporting progress via onStep if
// non-nil. Most commands are tolerant of missing components (the shell
// `|| true` idiom); the package cleanup and the final `rm -rf` are not, so
// a non-zero exit from either, like a connection-level error surfaced
// through RunChecked, stops Wipe with an error.
func Wipe(ctx context.Context, r remote.Runner, onStep ProgressFunc) error {
	total := len(WipeSteps)
	for idx, s := range WipeSteps {
		if onStep != nil {
			onStep(s.Name, idx, total)
		}
		if _, err := r.RunChecked(ctx, s.Command, s.Timeout); err != nil {
			return fmt.Errorf("provision: wipe step %q: %w", s.Name, err)
		}
	}
	return nil
}

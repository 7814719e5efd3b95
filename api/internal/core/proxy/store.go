// Package proxy implements the reverse-proxy file-provider store: per-domain
// YAML documents written into a directory watched by the remote host's
// Traefik file provider.
package proxy

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/infrakt/infrakt/api/internal/core/remote"
)

var sanitiseRe = regexp.MustCompile(`[^A-Za-z0-9-]`)

// Sanitise turns a domain into a filesystem- and Traefik-router-safe token:
// any non [A-Za-z0-9-] byte becomes '-', then leading/trailing '-' is trimmed.
func Sanitise(domain string) string {
	s := sanitiseRe.ReplaceAllString(domain, "-")
	return strings.Trim(s, "-")
}

// Store operates the file-provider config directory on a remote host.
type Store struct {
	ConfDir string // e.g. /opt/infrakt/traefik/conf.d
}

func NewStore(confDir string) *Store { return &Store{ConfDir: confDir} }

type router struct {
	Rule        string            `yaml:"rule"`
	Service     string            `yaml:"service"`
	EntryPoints []string          `yaml:"entryPoints"`
	TLS         map[string]string `yaml:"tls,omitempty"`
}

type loadBalancer struct {
	Servers []map[string]string `yaml:"servers"`
}

type service struct {
	LoadBalancer loadBalancer `yaml:"loadBalancer"`
}

type httpBlock struct {
	Routers  map[string]router  `yaml:"routers"`
	Services map[string]service `yaml:"services"`
}

type fileProviderDoc struct {
	HTTP httpBlock `yaml:"http"`
}

// buildDomainConfig constructs the two-router, one-service document for a
// domain. When appName is empty the service targets a host-gateway alias
// instead of the app's container name.
func buildDomainConfig(domain string, port int, appName string) fileProviderDoc {
	key := Sanitise(domain)
	target := fmt.Sprintf("http://host.docker.internal:%d", port)
	if appName != "" {
		target = fmt.Sprintf("http://infrakt-%s:%d", appName, port)
	}
	svcName := key + "-svc"
	return fileProviderDoc{
		HTTP: httpBlock{
			Routers: map[string]router{
				key + "-https": {
					Rule:        fmt.Sprintf("Host(`%s`)", domain),
					Service:     svcName,
					EntryPoints: []string{"websecure"},
					TLS:         map[string]string{"certResolver": "letsencrypt"},
				},
				key: {
					Rule:        fmt.Sprintf("Host(`%s`)", domain),
					Service:     svcName,
					EntryPoints: []string{"web"},
				},
			},
			Services: map[string]service{
				svcName: {LoadBalancer: loadBalancer{Servers: []map[string]string{{"url": target}}}},
			},
		},
	}
}

func (s *Store) filePath(domain string) string {
	return fmt.Sprintf("%s/%s.yml", strings.TrimSuffix(s.ConfDir, "/"), Sanitise(domain))
}

// AddDomain validates domain and port, writes the routed config file, and
// performs a best-effort DNS check, returning a non-fatal warning string
// when the domain does not yet resolve.
func (s *Store) AddDomain(ctx context.Context, r remote.Runner, domain string, port int, appName string) (warning string, err error) {
	if err := validateDomain(domain); err != nil {
		return "", err
	}
	if err := validatePort(port); err != nil {
		return "", err
	}
	doc := buildDomainConfig(domain, port, appName)
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshalling proxy config: %w", err)
	}
	if err := r.UploadString(ctx, string(out), s.filePath(domain)); err != nil {
		return "", fmt.Errorf("writing proxy config: %w", err)
	}

	if !strings.HasPrefix(domain, "*.") {
		if _, lookupErr := net.LookupHost(domain); lookupErr != nil {
			warning = fmt.Sprintf("DNS does not yet resolve for %s — the route will work once it does", domain)
		}
	}
	return warning, nil
}

// RemoveDomain deletes the domain's config file. Idempotent: a missing file
// is not an error.
func (s *Store) RemoveDomain(ctx context.Context, r remote.Runner, domain string) error {
	_, err := r.RunChecked(ctx, fmt.Sprintf("rm -f %s", remote.Quote(s.filePath(domain))), 10*time.Second)
	return err
}

// DomainRoute is a (domain, port) pair returned by ListDomains.
type DomainRoute struct {
	Domain string
	Port   int
}

// ListDomains globs conf.d/*.yml, parses each, and extracts the first
// load-balancer URL's port and host rule's domain. Malformed files are
// skipped.
func (s *Store) ListDomains(ctx context.Context, r remote.Runner) ([]DomainRoute, error) {
	out, _, code, err := r.Run(ctx, fmt.Sprintf("for f in %s/*.yml; do echo ---FILE---; cat \"$f\" 2>/dev/null; done", strings.TrimSuffix(s.ConfDir, "/")), 15*time.Second)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	var routes []DomainRoute
	for _, chunk := range strings.Split(out, "---FILE---") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		var doc fileProviderDoc
		if err := yaml.Unmarshal([]byte(chunk), &doc); err != nil {
			continue // malformed, skip
		}
		domain, ok := firstHostRuleDomain(doc)
		if !ok {
			continue
		}
		port, ok := firstServicePort(doc)
		if !ok {
			continue
		}
		routes = append(routes, DomainRoute{Domain: domain, Port: port})
	}
	return routes, nil
}

var hostRuleRe = regexp.MustCompile("Host\\(`([^`]+)`\\)")

func firstHostRuleDomain(doc fileProviderDoc) (string, bool) {
	for _, rt := range doc.HTTP.Routers {
		if m := hostRuleRe.FindStringSubmatch(rt.Rule); m != nil {
			return m[1], true
		}
	}
	return "", false
}

var portRe = regexp.MustCompile(`:(\d+)$`)

func firstServicePort(doc fileProviderDoc) (int, bool) {
	for _, svc := range doc.HTTP.Services {
		for _, srv := range svc.LoadBalancer.Servers {
			if m := portRe.FindStringSubmatch(srv["url"]); m != nil {
				p, err := strconv.Atoi(m[1])
				if err == nil {
					return p, true
				}
			}
		}
	}
	return 0, false
}

// ValidateDomainConfig polls the proxy's admin API on the remote host's
// loopback interface for the presence of this domain's router.
func (s *Store) ValidateDomainConfig(ctx context.Context, r remote.Runner, domain string) (bool, error) {
	routerName := Sanitise(domain)
	cmd := fmt.Sprintf("curl -s -o /dev/null -w '%%{http_code}' http://127.0.0.1:8080/api/http/routers/%s@file", routerName)
	out, _, _, err := r.Run(ctx, cmd, 10*time.Second)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "200", nil
}

var domainLabelRe = regexp.MustCompile(`^(\*\.)?([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

func validateDomain(domain string) error {
	if !domainLabelRe.MatchString(domain) {
		return fmt.Errorf("invalid domain %q", domain)
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	return nil
}

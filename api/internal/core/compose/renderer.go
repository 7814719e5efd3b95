// Package compose renders docker-compose manifests as a pure, deterministic
// function of a validated app or database descriptor.
package compose

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// AppSpec is the validated input to RenderApp.
type AppSpec struct {
	Name                string
	Port                int
	Image               string // set for image deploys
	BuildContext        string // set for source-repo deploys ("." relative to appdir)
	CPULimit            string
	MemoryLimit         string
	Replicas            int
	DeployStrategy      string
	HealthCheckURL      string
	HealthCheckInterval int
}

// DBSpec is the validated input to RenderDatabase.
type DBSpec struct {
	Type    string // postgres, mysql, redis, mongo
	Name    string
	Image   string
	Port    int
	EnvVars map[string]string
	Volume  string
}

// PortVar computes the <APP_UPPER_SNAKE>_PORT environment variable name.
func PortVar(appName string) string {
	return strings.ToUpper(strings.ReplaceAll(appName, "-", "_")) + "_PORT"
}

const appTemplate = `services:
  {{.Name}}:
    container_name: infrakt-{{.Name}}
{{- if .Image}}
    image: {{.Image}}
{{- else}}
    build:
      context: {{.BuildContext}}
{{- end}}
    restart: unless-stopped
    env_file:
      - .env
    environment:
      {{.PortVar}}: "{{.Port}}"
    networks:
      - infrakt
{{- if .HasLimits}}
    deploy:
      resources:
        limits:
{{- if .CPULimit}}
          cpus: "{{.CPULimit}}"
{{- end}}
{{- if .MemoryLimit}}
          memory: "{{.MemoryLimit}}"
{{- end}}
{{- end}}

networks:
  infrakt:
    external: true
`

type appTemplateData struct {
	AppSpec
	PortVar string
}

func (d appTemplateData) HasLimits() bool { return d.CPULimit != "" || d.MemoryLimit != "" }

// RenderApp produces a compose manifest for an image or source-repo app.
// Inputs must already satisfy ValidateName / ValidateDomain / etc.; beyond
// requiring exactly one of Image or BuildContext, this function performs
// no validation itself — callers in the deploy state machine validate
// before calling.
func RenderApp(spec AppSpec) (string, error) {
	if spec.Image == "" && spec.BuildContext == "" {
		return "", fmt.Errorf("compose: exactly one of Image or BuildContext must be set")
	}
	if spec.Image != "" && spec.BuildContext != "" {
		return "", fmt.Errorf("compose: Image and BuildContext are mutually exclusive")
	}
	tmpl, err := template.New("app").Parse(appTemplate)
	if err != nil {
		return "", err
	}
	data := appTemplateData{AppSpec: spec, PortVar: PortVar(spec.Name)}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// dbDefaults holds the fixed per-engine port and volume mount path.
var dbDefaults = map[string]struct {
	Port   int
	Volume string
	Image  string
}{
	"postgres": {Port: 5432, Volume: "/var/lib/postgresql/data", Image: "postgres:16"},
	"mysql":    {Port: 3306, Volume: "/var/lib/mysql", Image: "mysql:8"},
	"redis":    {Port: 6379, Volume: "/data", Image: "redis:7"},
	"mongo":    {Port: 27017, Volume: "/data/db", Image: "mongo:7"},
}

// DBDefaults returns the fixed defaults for a supported engine, or false if
// the engine is unsupported.
func DBDefaults(engine string) (port int, volume, image string, ok bool) {
	d, ok := dbDefaults[engine]
	if !ok {
		return 0, "", "", false
	}
	return d.Port, d.Volume, d.Image, true
}

const dbTemplate = `services:
  {{.Name}}:
    container_name: infrakt-db-{{.Name}}
    image: {{.Image}}
    restart: unless-stopped
    env_file:
      - .env
{{- if .EnvVars}}
    environment:
{{- range $k, $v := .EnvVars}}
      {{$k}}: "{{$v}}"
{{- end}}
{{- end}}
    volumes:
      - {{.Name}}_data:{{.Volume}}
    networks:
      - infrakt

networks:
  infrakt:
    external: true

volumes:
  {{.Name}}_data:
`

// RenderDatabase produces a compose manifest for a database engine app.
func RenderDatabase(spec DBSpec) (string, error) {
	if spec.Image == "" {
		return "", fmt.Errorf("compose: Image is required")
	}
	tmpl, err := template.New("db").Parse(dbTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, spec); err != nil {
		return "", err
	}
	return buf.String(), nil
}

package backup

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/remote"
)

func TestBackup_Postgres(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := Backup(context.Background(), r, "postgres", "myapp", "/opt/infrakt/backups", now)
	if err != nil {
		t.Fatal(err)
	}
	want := "/opt/infrakt/backups/myapp_20240102_030405.sql.gz"
	if path != want {
		t.Errorf("got %s want %s", path, want)
	}
	found := false
	for _, cmd := range r.Commands {
		if strings.Contains(cmd, "pg_dump -U 'myapp' 'myapp'") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected pg_dump command, got: %v", r.Commands)
	}
}

func TestBackup_Mysql_FetchesPasswordFromContainer(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	r.Responses["docker exec 'infrakt-db-myapp' printenv 'MYSQL_PASSWORD'"] = remote.FakeResponse{Stdout: "sekret\n"}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := Backup(context.Background(), r, "mysql", "myapp", "/opt/infrakt/backups", now)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, cmd := range r.Commands {
		if strings.Contains(cmd, "-psekret") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected password fetched at runtime to appear in mysqldump command, got: %v", r.Commands)
	}
}

func TestRestore_FailsWhenFileMissing(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	r.Responses["test -f '/opt/infrakt/backups/missing.sql.gz'"] = remote.FakeResponse{ExitCode: 1}

	err := Restore(context.Background(), r, "postgres", "myapp", "/opt/infrakt/backups/missing.sql.gz")
	if err == nil {
		t.Fatal("expected error for missing backup file")
	}
}

func TestGenerateScript_Retention(t *testing.T) {
	script, err := GenerateScript("postgres", "myapp", "/opt/infrakt/backups", 30)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(script, "-mtime +30 -delete") != 1 {
		t.Errorf("expected exactly one -mtime +30 -delete line:\n%s", script)
	}
	if strings.Contains(script, "-mtime +7 -delete") {
		t.Errorf("expected zero -mtime +7 -delete lines:\n%s", script)
	}
	if !strings.HasPrefix(script, "#!/usr/bin/env bash\nset -euo pipefail\n") {
		t.Errorf("expected posix script header, got:\n%s", script)
	}
}

func TestInstallCron_Idempotent(t *testing.T) {
	r := remote.NewFakeRunner("h1")
	if err := InstallCron(context.Background(), r, "postgres", "myapp", "/opt/infrakt/backups", "0 2 * * *", 7); err != nil {
		t.Fatal(err)
	}
	if err := InstallCron(context.Background(), r, "postgres", "myapp", "/opt/infrakt/backups", "0 2 * * *", 7); err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, cmd := range r.Commands {
		if strings.Contains(cmd, "crontab -l") && strings.Contains(cmd, "infrakt-backup:myapp") {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected install to run grep -v/crontab pipeline each call, got %d", count)
	}
}

func TestParseS3LsOutput(t *testing.T) {
	out := "2024-01-02 03:04:05       1234 myapp_20240102_030405.sql.gz\n" +
		"2024-01-03 04:05:06       5678 myapp_20240103_040506.sql.gz\n"
	summaries := parseS3LsOutput(out)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Size != 1234 || summaries[0].Key != "myapp_20240102_030405.sql.gz" {
		t.Errorf("unexpected summary: %+v", summaries[0])
	}
}

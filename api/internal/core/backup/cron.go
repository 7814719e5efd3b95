package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/remote"
)

// CronMarker returns the unique trailing marker used to locate this app's
// backup cron entry for idempotent install/removal.
func CronMarker(appName string) string { return "infrakt-backup:" + appName }

// GenerateScript produces a POSIX `set -euo pipefail` shell script that
// performs an engine-specific dump and a retention sweep. The script
// computes its own timestamp at run time via `date`, unlike Backup which is
// given one for on-demand calls.
func GenerateScript(engine, appName, backupDir string, retentionDays int) (string, error) {
	container := ContainerName(appName)
	const tsExpr = "$(date +%Y%m%d_%H%M%S)"

	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -euo pipefail\n")
	fmt.Fprintf(&b, "BACKUP_DIR=%s\n", remote.Quote(backupDir))
	b.WriteString("mkdir -p \"$BACKUP_DIR\"\n\n")

	switch engine {
	case "postgres":
		filename := fmt.Sprintf("%s_%s.sql.gz", appName, tsExpr)
		fmt.Fprintf(&b, "docker exec %s pg_dump -U %s %s | gzip > \"$BACKUP_DIR/%s\"\n",
			remote.Quote(container), remote.Quote(appName), remote.Quote(appName), filename)
	case "mysql":
		fmt.Fprintf(&b, "MYSQL_PASS=$(docker exec %s printenv MYSQL_PASSWORD)\n", remote.Quote(container))
		filename := fmt.Sprintf("%s_%s.sql.gz", appName, tsExpr)
		fmt.Fprintf(&b, "docker exec %s mysqldump -u %s -p\"$MYSQL_PASS\" %s | gzip > \"$BACKUP_DIR/%s\"\n",
			remote.Quote(container), remote.Quote(appName), remote.Quote(appName), filename)
	case "redis":
		filename := fmt.Sprintf("%s_%s.rdb", appName, tsExpr)
		fmt.Fprintf(&b, "docker exec %s redis-cli BGSAVE\n", remote.Quote(container))
		b.WriteString("sleep 2\n")
		fmt.Fprintf(&b, "docker cp %s:/data/dump.rdb \"$BACKUP_DIR/%s\"\n", remote.Quote(container), filename)
	case "mongo":
		fmt.Fprintf(&b, "MONGO_PASS=$(docker exec %s printenv MONGO_INITDB_ROOT_PASSWORD)\n", remote.Quote(container))
		filename := fmt.Sprintf("%s_%s.archive.gz", appName, tsExpr)
		fmt.Fprintf(&b, "docker exec %s mongodump --archive --gzip -u %s -p \"$MONGO_PASS\" --authenticationDatabase admin > \"$BACKUP_DIR/%s\"\n",
			remote.Quote(container), remote.Quote(appName), filename)
	default:
		return "", fmt.Errorf("unsupported database engine for scheduled backup: %s", engine)
	}

	b.WriteString("\n# Clean up old backups\n")
	fmt.Fprintf(&b, "find \"$BACKUP_DIR\" -name %s -mtime +%d -delete\n", remote.Quote(appName+"_*"), retentionDays)

	return b.String(), nil
}

// InstallCron uploads the generated script and installs a cron entry,
// idempotently replacing any prior entry carrying the same marker.
func InstallCron(ctx context.Context, r remote.Runner, engine, appName, backupDir, cronExpr string, retentionDays int) error {
	script, err := GenerateScript(engine, appName, backupDir, retentionDays)
	if err != nil {
		return err
	}
	scriptPath := fmt.Sprintf("%s/backup-%s.sh", backupDir, appName)
	marker := CronMarker(appName)

	if _, err := r.RunChecked(ctx, fmt.Sprintf("mkdir -p %s", remote.Quote(backupDir)), 10*time.Second); err != nil {
		return err
	}
	if err := r.UploadString(ctx, script, scriptPath); err != nil {
		return err
	}
	if _, err := r.RunChecked(ctx, fmt.Sprintf("chmod +x %s", remote.Quote(scriptPath)), 10*time.Second); err != nil {
		return err
	}

	cronLine := fmt.Sprintf("%s %s # %s", cronExpr, scriptPath, marker)
	installCmd := fmt.Sprintf("(crontab -l 2>/dev/null | grep -v %s; echo %s) | crontab -",
		remote.Quote(marker), remote.Quote(cronLine))
	_, err = r.RunChecked(ctx, installCmd, 15*time.Second)
	return err
}

// RemoveCron removes the cron entry and backup script. Both operations are
// tolerant of the entry/file already being absent.
func RemoveCron(ctx context.Context, r remote.Runner, appName, backupDir string) {
	marker := CronMarker(appName)
	scriptPath := fmt.Sprintf("%s/backup-%s.sh", backupDir, appName)

	r.Run(ctx, fmt.Sprintf("crontab -l 2>/dev/null | grep -v %s | crontab -", remote.Quote(marker)), 15*time.Second)
	r.Run(ctx, fmt.Sprintf("rm -f %s", remote.Quote(scriptPath)), 10*time.Second)
}

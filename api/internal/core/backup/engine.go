// Package backup implements per-engine database dump/restore commands, a
// cron-script generator for scheduled backups, and object-store replication.
package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/remote"
)

// ContainerName returns the Docker container name for a database app.
func ContainerName(appName string) string { return "infrakt-db-" + appName }

func timestamp(now time.Time) string { return now.UTC().Format("20060102_150405") }

func getContainerEnv(ctx context.Context, r remote.Runner, container, v string) (string, error) {
	out, err := r.RunChecked(ctx, fmt.Sprintf("docker exec %s printenv %s", remote.Quote(container), remote.Quote(v)), 10*time.Second)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Backup runs an immediate dump on the remote host and returns the absolute
// remote path of the resulting file. now is injected for determinism in
// tests; callers pass time.Now().
func Backup(ctx context.Context, r remote.Runner, engine, appName, backupDir string, now time.Time) (string, error) {
	container := ContainerName(appName)
	ts := timestamp(now)

	if _, err := r.RunChecked(ctx, fmt.Sprintf("mkdir -p %s", remote.Quote(backupDir)), 10*time.Second); err != nil {
		return "", err
	}

	var filename, cmd string
	switch engine {
	case "postgres":
		filename = fmt.Sprintf("%s_%s.sql.gz", appName, ts)
		path := backupDir + "/" + filename
		cmd = fmt.Sprintf("docker exec %s pg_dump -U %s %s | gzip > %s",
			remote.Quote(container), remote.Quote(appName), remote.Quote(appName), remote.Quote(path))
	case "mysql":
		pass, err := getContainerEnv(ctx, r, container, "MYSQL_PASSWORD")
		if err != nil {
			return "", err
		}
		filename = fmt.Sprintf("%s_%s.sql.gz", appName, ts)
		path := backupDir + "/" + filename
		cmd = fmt.Sprintf("docker exec %s mysqldump -u %s -p%s %s | gzip > %s",
			remote.Quote(container), remote.Quote(appName), pass, remote.Quote(appName), remote.Quote(path))
	case "redis":
		filename = fmt.Sprintf("%s_%s.rdb", appName, ts)
		path := backupDir + "/" + filename
		if _, err := r.RunChecked(ctx, fmt.Sprintf("docker exec %s redis-cli BGSAVE", remote.Quote(container)), 30*time.Second); err != nil {
			return "", err
		}
		r.Run(ctx, "sleep 2", 5*time.Second)
		cmd = fmt.Sprintf("docker cp %s:/data/dump.rdb %s", remote.Quote(container), remote.Quote(path))
	case "mongo":
		pass, err := getContainerEnv(ctx, r, container, "MONGO_INITDB_ROOT_PASSWORD")
		if err != nil {
			return "", err
		}
		filename = fmt.Sprintf("%s_%s.archive.gz", appName, ts)
		path := backupDir + "/" + filename
		cmd = fmt.Sprintf("docker exec %s mongodump --archive --gzip -u %s -p %s --authenticationDatabase admin > %s",
			remote.Quote(container), remote.Quote(appName), pass, remote.Quote(path))
	default:
		return "", fmt.Errorf("unsupported database engine for backup: %s", engine)
	}

	if _, err := r.RunChecked(ctx, cmd, 300*time.Second); err != nil {
		return "", err
	}
	return backupDir + "/" + filename, nil
}

// Restore refuses to proceed unless the remote backup file exists.
func Restore(ctx context.Context, r remote.Runner, engine, appName, remoteBackupPath string) error {
	container := ContainerName(appName)

	_, _, code, err := r.Run(ctx, fmt.Sprintf("test -f %s", remote.Quote(remoteBackupPath)), 10*time.Second)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("backup file not found on server: %s", remoteBackupPath)
	}

	qPath := remote.Quote(remoteBackupPath)
	switch engine {
	case "postgres":
		cmd := fmt.Sprintf("gunzip -c %s | docker exec -i %s psql -U %s -d %s",
			qPath, remote.Quote(container), remote.Quote(appName), remote.Quote(appName))
		_, err := r.RunChecked(ctx, cmd, 300*time.Second)
		return err
	case "mysql":
		pass, err := getContainerEnv(ctx, r, container, "MYSQL_PASSWORD")
		if err != nil {
			return err
		}
		cmd := fmt.Sprintf("gunzip -c %s | docker exec -i %s mysql -u %s -p%s %s",
			qPath, remote.Quote(container), remote.Quote(appName), pass, remote.Quote(appName))
		_, err = r.RunChecked(ctx, cmd, 300*time.Second)
		return err
	case "redis":
		appPath := "/opt/infrakt/apps/" + appName
		if _, err := r.RunChecked(ctx, fmt.Sprintf("docker cp %s %s:/data/dump.rdb", qPath, remote.Quote(container)), 30*time.Second); err != nil {
			return err
		}
		_, err := r.RunChecked(ctx, fmt.Sprintf("cd %s && docker compose restart", remote.Quote(appPath)), 60*time.Second)
		return err
	case "mongo":
		pass, err := getContainerEnv(ctx, r, container, "MONGO_INITDB_ROOT_PASSWORD")
		if err != nil {
			return err
		}
		cmd := fmt.Sprintf("cat %s | docker exec -i %s mongorestore --archive --gzip --drop -u %s -p %s --authenticationDatabase admin",
			qPath, remote.Quote(container), remote.Quote(appName), pass)
		_, err = r.RunChecked(ctx, cmd, 300*time.Second)
		return err
	default:
		return fmt.Errorf("unsupported database engine for restore: %s", engine)
	}
}

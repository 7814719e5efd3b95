package cli

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
	"github.com/infrakt/infrakt/api/internal/core/compose"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage database services",
}

// restoreBackupRequest and installBackupCronRequest mirror the daemon's
// unexported backup request bodies.
type restoreBackupRequest struct {
	RemotePath string `json:"remote_path,omitempty"`
	ObjectKey  string `json:"object_key,omitempty"`
}

type installBackupCronRequest struct {
	CronExpr      string `json:"cron_expr"`
	RetentionDays int    `json:"retention_days"`
}

func init() {
	rootCmd.AddCommand(dbCmd)

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a database service",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBCreate,
	}
	createCmd.Flags().String("server", "", "target server (required)")
	createCmd.Flags().String("type", "", "postgres, mysql, redis, or mongo (required)")
	_ = createCmd.MarkFlagRequired("server")
	_ = createCmd.MarkFlagRequired("type")
	dbCmd.AddCommand(createCmd)

	destroyCmd := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Destroy a database service and its data",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBDestroy,
	}
	destroyCmd.Flags().String("server", "", "server name (required)")
	_ = destroyCmd.MarkFlagRequired("server")
	dbCmd.AddCommand(destroyCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List database services",
		RunE:  runDBList,
	}
	listCmd.Flags().String("server", "", "restrict to one server")
	dbCmd.AddCommand(listCmd)

	backupCmd := &cobra.Command{
		Use:   "backup <name>",
		Short: "Back up a database",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBBackup,
	}
	backupCmd.Flags().String("server", "", "server name (required)")
	_ = backupCmd.MarkFlagRequired("server")
	dbCmd.AddCommand(backupCmd)

	restoreCmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Restore a database from a backup already on the host",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBRestore,
	}
	restoreCmd.Flags().String("server", "", "server name (required)")
	restoreCmd.Flags().String("remote-path", "", "path to the backup file on the remote host (required)")
	_ = restoreCmd.MarkFlagRequired("server")
	_ = restoreCmd.MarkFlagRequired("remote-path")
	dbCmd.AddCommand(restoreCmd)

	scheduleCmd := &cobra.Command{
		Use:   "schedule-backup <name>",
		Short: "Schedule automatic backups for a database",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBScheduleBackup,
	}
	scheduleCmd.Flags().String("server", "", "server name (required)")
	scheduleCmd.Flags().String("cron", "", `cron expression, e.g. "0 2 * * *" (required)`)
	scheduleCmd.Flags().Int("retention", 7, "days to keep old backups")
	_ = scheduleCmd.MarkFlagRequired("server")
	_ = scheduleCmd.MarkFlagRequired("cron")
	dbCmd.AddCommand(scheduleCmd)

	unscheduleCmd := &cobra.Command{
		Use:   "unschedule-backup <name>",
		Short: "Remove scheduled backups for a database",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBUnscheduleBackup,
	}
	unscheduleCmd.Flags().String("server", "", "server name (required)")
	_ = unscheduleCmd.MarkFlagRequired("server")
	dbCmd.AddCommand(unscheduleCmd)

	backupsCmd := &cobra.Command{
		Use:   "backups <name>",
		Short: "List available backups for a database",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBBackups,
	}
	backupsCmd.Flags().String("server", "", "server name (required)")
	_ = backupsCmd.MarkFlagRequired("server")
	dbCmd.AddCommand(backupsCmd)

	infoCmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show database details",
		Args:  cobra.ExactArgs(1),
		RunE:  runDBInfo,
	}
	infoCmd.Flags().String("server", "", "server name (required)")
	_ = infoCmd.MarkFlagRequired("server")
	dbCmd.AddCommand(infoCmd)
}

// dbEnvVars mirrors the original CLI's per-engine seed variables, keyed by
// name and a generated password so the database boots with credentials
// already set.
func dbEnvVars(engine, name, password string) map[string]string {
	switch engine {
	case "postgres":
		return map[string]string{
			"POSTGRES_DB":       name,
			"POSTGRES_USER":     name,
			"POSTGRES_PASSWORD": password,
		}
	case "mysql":
		return map[string]string{
			"MYSQL_DATABASE":      name,
			"MYSQL_USER":          name,
			"MYSQL_PASSWORD":      password,
			"MYSQL_ROOT_PASSWORD": password,
		}
	case "mongo":
		return map[string]string{
			"MONGO_INITDB_ROOT_USERNAME": name,
			"MONGO_INITDB_ROOT_PASSWORD": password,
		}
	default:
		return map[string]string{}
	}
}

func connectionString(engine, name, password string, port int) string {
	switch engine {
	case "postgres":
		return fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s", name, password, port, name)
	case "mysql":
		return fmt.Sprintf("mysql://%s:%s@localhost:%d/%s", name, password, port, name)
	case "mongo":
		return fmt.Sprintf("mongodb://%s:%s@localhost:%d", name, password, port)
	default:
		return fmt.Sprintf("localhost:%d", port)
	}
}

func generatePassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func runDBCreate(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	engine, _ := cmd.Flags().GetString("type")
	server, err := resolveServer(c, serverName)
	if err != nil {
		return err
	}
	port, _, image, ok := compose.DBDefaults(engine)
	if !ok {
		return fmt.Errorf("unsupported database type %q", engine)
	}

	name := args[0]
	password, err := generatePassword()
	if err != nil {
		return err
	}

	createReq := handlers.CreateAppRequest{
		Name:     name,
		ServerID: server.ID,
		Port:     port,
		Type:     domain.DatabaseAppType(engine),
		Image:    &image,
	}
	var app domain.App
	if err := c.do("POST", "/api/v1/apps", createReq, &app); err != nil {
		return err
	}

	if env := dbEnvVars(engine, name, password); len(env) > 0 {
		if err := c.do("PUT", fmt.Sprintf("/api/v1/apps/%d/env", app.ID), setAppEnvRequest{Env: env}, nil); err != nil {
			return err
		}
	}

	var deployResp map[string]any
	if err := c.do("POST", fmt.Sprintf("/api/v1/apps/%d/deploy", app.ID), deployRequest{}, &deployResp); err != nil {
		return err
	}

	fmt.Printf("Database %q (%s) created on %q\n", name, engine, serverName)
	fmt.Printf("Connection string: %s\n", connectionString(engine, name, password, port))
	fmt.Println("Save this connection string — the password is not stored locally.")
	return nil
}

func runDBDestroy(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	app, err := resolveApp(c, args[0], serverName)
	if err != nil {
		return err
	}
	if !app.Type.IsDatabase() {
		return fmt.Errorf("%q is not a database service", args[0])
	}
	if err := c.do("DELETE", fmt.Sprintf("/api/v1/apps/%d", app.ID), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Database %q destroyed\n", args[0])
	return nil
}

func runDBList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	path := "/api/v1/apps"
	if serverName != "" {
		server, err := resolveServer(c, serverName)
		if err != nil {
			return err
		}
		path = fmt.Sprintf("/api/v1/apps?server_id=%d", server.ID)
	} else {
		// The default /apps listing excludes database apps, so db list
		// without --server has nothing to filter; require it instead.
		return fmt.Errorf("--server is required")
	}
	var apps []*domain.App
	if err := c.do("GET", path, nil, &apps); err != nil {
		return err
	}
	dbs := make([]*domain.App, 0, len(apps))
	for _, a := range apps {
		if a.Type.IsDatabase() {
			dbs = append(dbs, a)
		}
	}
	printJSON(dbs)
	return nil
}

func dbAppFromFlags(c *Client, cmd *cobra.Command, name string) (*domain.App, error) {
	serverName, _ := cmd.Flags().GetString("server")
	app, err := resolveApp(c, name, serverName)
	if err != nil {
		return nil, err
	}
	if !app.Type.IsDatabase() {
		return nil, fmt.Errorf("%q is not a database service", name)
	}
	return app, nil
}

func runDBBackup(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := dbAppFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	var resp map[string]any
	if err := c.do("POST", fmt.Sprintf("/api/v1/apps/%d/backup", app.ID), nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func runDBRestore(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := dbAppFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	remotePath, _ := cmd.Flags().GetString("remote-path")
	if err := c.do("POST", fmt.Sprintf("/api/v1/apps/%d/backups/restore", app.ID), restoreBackupRequest{RemotePath: remotePath}, nil); err != nil {
		return err
	}
	fmt.Printf("Database %q restored\n", args[0])
	return nil
}

func runDBScheduleBackup(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := dbAppFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	cronExpr, _ := cmd.Flags().GetString("cron")
	retention, _ := cmd.Flags().GetInt("retention")
	req := installBackupCronRequest{CronExpr: cronExpr, RetentionDays: retention}
	if err := c.do("POST", fmt.Sprintf("/api/v1/apps/%d/backup/cron", app.ID), req, nil); err != nil {
		return err
	}
	fmt.Printf("Scheduled backups for %q with cron %q (retention %d days)\n", args[0], cronExpr, retention)
	return nil
}

func runDBUnscheduleBackup(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := dbAppFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	if err := c.do("DELETE", fmt.Sprintf("/api/v1/apps/%d/backup/cron", app.ID), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Removed scheduled backups for %q\n", args[0])
	return nil
}

func runDBBackups(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := dbAppFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	var objects []map[string]any
	if err := c.do("GET", fmt.Sprintf("/api/v1/apps/%d/backups", app.ID), nil, &objects); err != nil {
		return err
	}
	printJSON(objects)
	return nil
}

func runDBInfo(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := dbAppFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	printJSON(app)
	return nil
}

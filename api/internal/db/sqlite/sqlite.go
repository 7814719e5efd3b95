// Package sqlite is the persistence schema: the single on-disk SQLite
// database that durably records every Server, App, Deployment, SSHKey,
// WebhookSubscription, SourceIntegration, ObjectStoreConfig, and
// ServerMetric. One process, one file, no connection pool beyond what
// database/sql itself maintains — the control plane is a single daemon,
// never a fleet needing shared state.
package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// schema is applied with CREATE TABLE IF NOT EXISTS on every Open, so a
// fresh Home directory bootstraps itself and an existing one is untouched.
// Foreign keys cascade Server -> App -> (Deployment, AppDependency) and
// Server -> ServerMetric, matching the resolved deletion-cascade question.
const schema = `
CREATE TABLE IF NOT EXISTS servers (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	host        TEXT NOT NULL,
	port        INTEGER NOT NULL,
	user        TEXT NOT NULL,
	ssh_key_path TEXT,
	status      TEXT NOT NULL DEFAULT 'inactive',
	provider    TEXT,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS apps (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	name                  TEXT NOT NULL UNIQUE,
	server_id             INTEGER NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	domain                TEXT,
	port                  INTEGER NOT NULL DEFAULT 0,
	git_repo              TEXT,
	branch                TEXT NOT NULL DEFAULT 'main',
	image                 TEXT,
	compose_inline        TEXT,
	app_type              TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'stopped',
	webhook_secret        TEXT,
	auto_deploy           INTEGER NOT NULL DEFAULT 0,
	cpu_limit             TEXT,
	memory_limit          TEXT,
	health_check_url      TEXT,
	health_check_interval INTEGER,
	replicas              INTEGER NOT NULL DEFAULT 1,
	deploy_strategy       TEXT NOT NULL DEFAULT 'restart',
	created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_apps_server_id ON apps(server_id);
CREATE INDEX IF NOT EXISTS idx_apps_git_repo_branch ON apps(git_repo, branch);

CREATE TABLE IF NOT EXISTS app_dependencies (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	app_id            INTEGER NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
	depends_on_app_id INTEGER NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(app_id, depends_on_app_id)
);

CREATE TABLE IF NOT EXISTS deployments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	app_id      INTEGER NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
	status      TEXT NOT NULL,
	commit_hash TEXT,
	image_used  TEXT,
	log         TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_deployments_app_id ON deployments(app_id, started_at DESC);

CREATE TABLE IF NOT EXISTS ssh_keys (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL UNIQUE,
	fingerprint  TEXT NOT NULL,
	algorithm    TEXT NOT NULL,
	public_key   TEXT NOT NULL,
	private_path TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS webhooks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	url        TEXT NOT NULL,
	events     TEXT NOT NULL DEFAULT '',
	secret     TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Singleton rows (id always 1); Get/Save upsert against that fixed key.
CREATE TABLE IF NOT EXISTS source_integrations (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	username        TEXT NOT NULL,
	token_encrypted TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS object_store_configs (
	id                    INTEGER PRIMARY KEY CHECK (id = 1),
	endpoint_url          TEXT NOT NULL,
	bucket                TEXT NOT NULL,
	region                TEXT NOT NULL,
	access_key            TEXT NOT NULL,
	secret_key_encrypted  TEXT NOT NULL,
	prefix                TEXT
);

CREATE TABLE IF NOT EXISTS server_metrics (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id   INTEGER NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	recorded_at DATETIME NOT NULL,
	cpu_percent REAL,
	mem_percent REAL,
	disk_percent REAL
);
CREATE INDEX IF NOT EXISTS idx_server_metrics_server_recorded ON server_metrics(server_id, recorded_at);
`

// Open opens path, enables WAL journaling and foreign-key enforcement (the
// §9 Open Question resolution for Server deletion cascading to its Apps),
// and applies the schema.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: applying schema: %w", err)
	}
	return db, nil
}

package sqlite

type migration struct {
	version int
	sql     string
}

// migrations must stay ordered with versions counting up from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	email                TEXT NOT NULL UNIQUE,
	password_hash        BLOB NOT NULL,
	role                 TEXT NOT NULL CHECK (role IN ('admin', 'dispatcher', 'courier')),
	phone                TEXT NOT NULL DEFAULT '',
	is_active            INTEGER NOT NULL DEFAULT 1,
	current_lon          REAL NOT NULL DEFAULT 0,
	current_lat          REAL NOT NULL DEFAULT 0,
	last_location_update DATETIME,
	availability         TEXT NOT NULL DEFAULT 'offline',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_role_availability ON users (role, availability);
CREATE INDEX IF NOT EXISTS idx_users_location ON users (current_lat, current_lon);

CREATE TABLE IF NOT EXISTS user_sessions (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	device_id          TEXT NOT NULL,
	device_name        TEXT NOT NULL DEFAULT '',
	refresh_token_hash BLOB NOT NULL,
	ip_address         TEXT NOT NULL DEFAULT '',
	user_agent         TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	last_seen_at       DATETIME NOT NULL,
	expires_at         DATETIME NOT NULL,
	UNIQUE (user_id, device_id)
);

CREATE TABLE IF NOT EXISTS tasks (
	id                      TEXT PRIMARY KEY,
	title                   TEXT NOT NULL,
	description             TEXT NOT NULL DEFAULT '',
	priority                TEXT NOT NULL DEFAULT 'medium',
	status                  TEXT NOT NULL DEFAULT 'CREATED',
	pickup_address          TEXT NOT NULL,
	delivery_address        TEXT NOT NULL,
	recipient               TEXT NOT NULL DEFAULT '{}',
	created_by              TEXT NOT NULL,
	assigned_to             TEXT REFERENCES users (id) ON DELETE SET NULL,
	scheduled_pickup_time   DATETIME,
	scheduled_delivery_time DATETIME,
	actual_pickup_time      DATETIME,
	actual_delivery_time    DATETIME,
	notes                   TEXT NOT NULL DEFAULT '',
	proof_of_delivery       TEXT,
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_assigned ON tasks (status, assigned_to);
CREATE INDEX IF NOT EXISTS idx_tasks_created_by_status ON tasks (created_by, status);

CREATE TABLE IF NOT EXISTS task_status_history (
	task_id    TEXT NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	status     TEXT NOT NULL,
	updated_by TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	PRIMARY KEY (task_id, seq)
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	recipient_id    TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	type            TEXT NOT NULL,
	title           TEXT NOT NULL,
	message         TEXT NOT NULL,
	related_task_id TEXT,
	is_read         INTEGER NOT NULL DEFAULT 0,
	read_at         DATETIME,
	data            TEXT,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient_unread
	ON notifications (recipient_id, is_read, created_at DESC);
`,
	},
}

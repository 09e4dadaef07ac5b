package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// sqliteMigrations is the ordered list of schema migrations.
// Versions are sequential starting from 1.
var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS intents (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL,
	target      TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE intents ADD COLUMN last_error TEXT NOT NULL DEFAULT '';

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}

// postgresMigrations mirrors sqliteMigrations for Postgres.
var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS inboxsweep_schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS inboxsweep_intents (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL,
	target      JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0
);

INSERT INTO inboxsweep_schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE inboxsweep_intents ADD COLUMN IF NOT EXISTS last_error TEXT NOT NULL DEFAULT '';

INSERT INTO inboxsweep_schema_version (version) VALUES (2);
`,
	},
}

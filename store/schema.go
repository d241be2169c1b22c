package store

// schemaV2 is the full CREATE TABLE set for the current schema version
// (spec §4.4). Fresh databases are created directly at this schema;
// older files are migrated up to it (see migrations.go).
const schemaV2 = `
CREATE TABLE IF NOT EXISTS Records (
	key         INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id   TEXT    NOT NULL,
	data        BLOB    NOT NULL,
	modified    INTEGER NOT NULL,
	variant     INTEGER NOT NULL,
	parent_key  INTEGER REFERENCES Records(key) ON DELETE CASCADE,
	children    BLOB    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_records_parent_key ON Records(parent_key);
CREATE INDEX IF NOT EXISTS idx_records_record_id   ON Records(record_id);
CREATE INDEX IF NOT EXISTS idx_records_modified    ON Records(modified);

CREATE TABLE IF NOT EXISTS Identifiers (
	name       TEXT PRIMARY KEY,
	record_key INTEGER NOT NULL REFERENCES Records(key) ON DELETE CASCADE ON UPDATE RESTRICT
);

CREATE INDEX IF NOT EXISTS idx_identifiers_record_key ON Identifiers(record_key);

CREATE TABLE IF NOT EXISTS NullRecords (
	record_id TEXT PRIMARY KEY,
	attempted INTEGER NOT NULL
);
`

// schemaV1 is retained only so migrateV1ToV2 has something concrete to
// migrate from in tests; it predates the children cache column and used
// ON DELETE SET NULL for parent_key, per the open question in spec §9.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS Records (
	key         INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id   TEXT    NOT NULL,
	data        BLOB    NOT NULL,
	modified    INTEGER NOT NULL,
	variant     INTEGER NOT NULL,
	parent_key  INTEGER REFERENCES Records(key) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_records_parent_key ON Records(parent_key);
CREATE INDEX IF NOT EXISTS idx_records_record_id   ON Records(record_id);
CREATE INDEX IF NOT EXISTS idx_records_modified    ON Records(modified);

CREATE TABLE IF NOT EXISTS Identifiers (
	name       TEXT PRIMARY KEY,
	record_key INTEGER NOT NULL REFERENCES Records(key) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_identifiers_record_key ON Identifiers(record_key);

CREATE TABLE IF NOT EXISTS NullRecords (
	record_id TEXT PRIMARY KEY,
	attempted INTEGER NOT NULL
);
`

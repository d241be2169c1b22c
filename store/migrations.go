package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// migration applies one forward-only schema change inside an open
// transaction and returns the schema version it leaves the database at.
// Every migration also recomputes any derived columns it touches (spec
// §4.4: "Each migration is a transactional script that also updates the
// schema version and recomputes any derived columns").
type migration struct {
	from, to int
	apply    func(tx *sql.Tx) error
}

var migrations = []migration{
	{from: 1, to: 2, apply: migrateV1ToV2},
}

// migrateV1ToV2 rewrites parent_key from ON DELETE SET NULL to ON DELETE
// CASCADE (spec §9's open question, resolved in favor of cascade) and adds
// the children cache column, rebuilding it by walking parent_key for every
// record_id tree. SQLite cannot alter a foreign key's ON DELETE action in
// place, so the table is rebuilt under a transaction.
func migrateV1ToV2(tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE Records RENAME TO Records_v1`,
		`CREATE TABLE Records (
			key         INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id   TEXT    NOT NULL,
			data        BLOB    NOT NULL,
			modified    INTEGER NOT NULL,
			variant     INTEGER NOT NULL,
			parent_key  INTEGER REFERENCES Records(key) ON DELETE CASCADE,
			children    BLOB    NOT NULL DEFAULT ''
		)`,
		`INSERT INTO Records (key, record_id, data, modified, variant, parent_key, children)
			SELECT key, record_id, data, modified, variant, parent_key, '' FROM Records_v1`,
		`DROP TABLE Records_v1`,
		`CREATE INDEX IF NOT EXISTS idx_records_parent_key ON Records(parent_key)`,
		`CREATE INDEX IF NOT EXISTS idx_records_record_id   ON Records(record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_modified    ON Records(modified)`,

		`ALTER TABLE Identifiers RENAME TO Identifiers_v1`,
		`CREATE TABLE Identifiers (
			name       TEXT PRIMARY KEY,
			record_key INTEGER NOT NULL REFERENCES Records(key) ON DELETE CASCADE ON UPDATE RESTRICT
		)`,
		`INSERT INTO Identifiers (name, record_key) SELECT name, record_key FROM Identifiers_v1`,
		`DROP TABLE Identifiers_v1`,
		`CREATE INDEX IF NOT EXISTS idx_identifiers_record_key ON Identifiers(record_key)`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return errors.Wrapf(err, "migrate v1->v2: %s", s)
		}
	}
	return rebuildChildrenCache(tx)
}

// rebuildChildrenCache recomputes every Records.children blob from
// parent_key, as required after any migration that could have disturbed it.
func rebuildChildrenCache(tx *sql.Tx) error {
	rows, err := tx.Query(`SELECT key, parent_key FROM Records ORDER BY key`)
	if err != nil {
		return errors.Wrap(err, "rebuildChildrenCache: query")
	}
	children := make(map[int64][]int64)
	var all []int64
	for rows.Next() {
		var key int64
		var parent sql.NullInt64
		if err := rows.Scan(&key, &parent); err != nil {
			rows.Close()
			return errors.Wrap(err, "rebuildChildrenCache: scan")
		}
		all = append(all, key)
		if parent.Valid {
			children[parent.Int64] = append(children[parent.Int64], key)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "rebuildChildrenCache: rows")
	}
	rows.Close()

	for _, key := range all {
		blob, err := json.Marshal(children[key])
		if err != nil {
			return errors.Wrap(err, "rebuildChildrenCache: marshal")
		}
		if _, err := tx.Exec(`UPDATE Records SET children = ? WHERE key = ?`, blob, key); err != nil {
			return errors.Wrap(err, "rebuildChildrenCache: update")
		}
	}
	return nil
}

// migrate runs every applicable migration in order, each in its own
// transaction, until the database reaches SchemaVersion.
func migrate(db *sql.DB, from int) error {
	// Rebuilding a referenced table with foreign keys enforced would fire the
	// old ON DELETE SET NULL actions when Records_v1 is dropped, so
	// enforcement is off on the store's single connection while migrating.
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "migrate: disable foreign keys")
	}
	defer db.Exec("PRAGMA foreign_keys = ON")
	version := from
	for _, m := range migrations {
		if m.from != version {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return errors.Wrap(err, "migrate: begin")
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.to)); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "migrate: set user_version")
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "migrate: commit")
		}
		version = m.to
	}
	if version != SchemaVersion {
		return fmt.Errorf("no migration path from schema version %d to %d", version, SchemaVersion)
	}
	return nil
}

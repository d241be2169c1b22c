// Package store implements the relational schema, migrations, and CRUD
// operations of the autobib record store: the Records/Identifiers/
// NullRecords tables, invariant maintenance, and transactional operations
// (spec §4.4). It is backed by SQLite via database/sql and
// github.com/mattn/go-sqlite3.
package store

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/autobib/autobib/record"
)

// VoidTimestamp is the sentinel "modified" value used for void records
// (spec §3 invariant 2): a timestamp so far in the past it can never
// conflict with a real record's modification time, while still sorting
// first along any root-to-leaf path.
var VoidTimestamp = time.Date(-262143, time.January, 1, 0, 0, 0, 0, time.UTC)

// Store is an open handle on an autobib database.
type Store struct {
	db     *sql.DB
	log    *logrus.Logger
	path   string
}

// Open opens (creating if necessary) the database at path, checking the
// application_id and schema version and migrating forward as needed.
func Open(path string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}
	// A single connection keeps writes serialized within this process,
	// matching the single-writer transaction model of spec §5; cross-process
	// concurrency is still mediated by SQLite's own file lock.
	db.SetMaxOpenConns(1)

	if err := initOrMigrate(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, log: log, path: path}, nil
}

func initOrMigrate(db *sql.DB, log *logrus.Logger) error {
	var appID int64
	if err := db.QueryRow("PRAGMA application_id").Scan(&appID); err != nil {
		return &DatabaseError{Op: "read application_id", Err: err}
	}
	var userVersion int
	if err := db.QueryRow("PRAGMA user_version").Scan(&userVersion); err != nil {
		return &DatabaseError{Op: "read user_version", Err: err}
	}

	switch {
	case appID == 0 && userVersion == 0:
		// Fresh file: stamp it and create the current schema directly.
		if _, err := db.Exec(applicationIDPragma()); err != nil {
			return &DatabaseError{Op: "set application_id", Err: err}
		}
		if _, err := db.Exec(schemaV2); err != nil {
			return &DatabaseError{Op: "create schema", Err: err}
		}
		if _, err := db.Exec(userVersionPragma(SchemaVersion)); err != nil {
			return &DatabaseError{Op: "set user_version", Err: err}
		}
		return nil
	case appID != ApplicationID:
		return &ForeignDatabaseError{Got: appID}
	case userVersion > SchemaVersion:
		return &UnsupportedVersionError{Got: userVersion, Want: SchemaVersion}
	case userVersion == SchemaVersion:
		return nil
	default:
		log.WithFields(logrus.Fields{"from": userVersion, "to": SchemaVersion}).Info("migrating autobib database")
		return migrate(db, userVersion)
	}
}

func applicationIDPragma() string {
	return "PRAGMA application_id = " + itoa(ApplicationID)
}

func userVersionPragma(v int) string {
	return "PRAGMA user_version = " + itoa(v)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Row is a single Records row.
type Row struct {
	Key       int64
	RecordID  string
	Data      []byte
	Modified  time.Time
	Variant   record.Variant
	ParentKey *int64
	Children  []int64
}

// Tx is a single storage transaction; every exported Store method that
// mutates state takes one, so callers control transaction boundaries
// (spec §4.4: "each wrapped in a single transaction").
type Tx struct {
	tx  *sql.Tx
	log *logrus.Logger
}

// Begin starts a new transaction.
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &DatabaseError{Op: "begin", Err: err}
	}
	return &Tx{tx: tx, log: s.log}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return &DatabaseError{Op: "commit", Err: err}
	}
	return nil
}

// Rollback aborts the transaction. Errors from Rollback are logged, not
// returned, since callers invoke it from defer/error paths where the
// original error already takes precedence.
func (t *Tx) Rollback() {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		t.log.WithError(err).Warn("rollback failed")
	}
}

// WithTx runs fn in a new transaction, committing on success and rolling
// back on error or panic.
func (s *Store) WithTx(fn func(*Tx) error) (err error) {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// LookupResult is the outcome of Lookup.
type LookupResult struct {
	Key    int64
	Record Row
}

// Lookup resolves name to its active record row, or returns
// *NotIndexedError if nothing in Identifiers names it.
func (t *Tx) Lookup(name string) (LookupResult, error) {
	var key int64
	err := t.tx.QueryRow(`SELECT record_key FROM Identifiers WHERE name = ?`, name).Scan(&key)
	if err == sql.ErrNoRows {
		return LookupResult{}, &NotIndexedError{Name: name}
	}
	if err != nil {
		return LookupResult{}, &DatabaseError{Op: "lookup", Err: err}
	}
	row, err := t.getRow(key)
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{Key: key, Record: row}, nil
}

func (t *Tx) getRow(key int64) (Row, error) {
	var (
		row          Row
		variant      int
		parentKey    sql.NullInt64
		childrenBlob []byte
		modifiedUnix int64
	)
	err := t.tx.QueryRow(
		`SELECT key, record_id, data, modified, variant, parent_key, children FROM Records WHERE key = ?`,
		key,
	).Scan(&row.Key, &row.RecordID, &row.Data, &modifiedUnix, &variant, &parentKey, &childrenBlob)
	if err == sql.ErrNoRows {
		return Row{}, errors.Wrapf(&DatabaseError{Op: "getRow", Err: sql.ErrNoRows}, "no such record key %d", key)
	}
	if err != nil {
		return Row{}, &DatabaseError{Op: "getRow", Err: err}
	}
	row.Variant = record.Variant(variant)
	row.Modified = time.Unix(modifiedUnix, 0).UTC()
	if parentKey.Valid {
		pk := parentKey.Int64
		row.ParentKey = &pk
	}
	if len(childrenBlob) > 0 {
		if err := json.Unmarshal(childrenBlob, &row.Children); err != nil {
			return Row{}, &DatabaseError{Op: "getRow: unmarshal children", Err: err}
		}
	}
	return row, nil
}

// InsertRecord appends a new row to the tree identified by recordID, with
// parentKey as its predecessor (nil for a root), and returns its key. If
// parentKey is non-nil, the parent's children cache is updated to include
// the new key.
func (t *Tx) InsertRecord(recordID string, variant record.Variant, data []byte, parentKey *int64, modified time.Time) (int64, error) {
	res, err := t.tx.Exec(
		`INSERT INTO Records (record_id, data, modified, variant, parent_key, children) VALUES (?, ?, ?, ?, ?, '')`,
		recordID, data, modified.Unix(), int(variant), nullableInt64(parentKey),
	)
	if err != nil {
		return 0, &DatabaseError{Op: "insert record", Err: err}
	}
	key, err := res.LastInsertId()
	if err != nil {
		return 0, &DatabaseError{Op: "insert record: last insert id", Err: err}
	}
	if parentKey != nil {
		if err := t.appendChild(*parentKey, key); err != nil {
			return 0, err
		}
	}
	return key, nil
}

func (t *Tx) appendChild(parentKey, childKey int64) error {
	parent, err := t.getRow(parentKey)
	if err != nil {
		return err
	}
	children := append(parent.Children, childKey)
	blob, err := json.Marshal(children)
	if err != nil {
		return &DatabaseError{Op: "appendChild: marshal", Err: err}
	}
	if _, err := t.tx.Exec(`UPDATE Records SET children = ? WHERE key = ?`, blob, parentKey); err != nil {
		return &DatabaseError{Op: "appendChild: update", Err: err}
	}
	return nil
}

// SetActive atomically repoints every Identifiers row currently pointing at
// any row in recordID's tree to point at key instead.
func (t *Tx) SetActive(recordID string, key int64) error {
	rows, err := t.tx.Query(`SELECT key FROM Records WHERE record_id = ?`, recordID)
	if err != nil {
		return &DatabaseError{Op: "set active: query tree", Err: err}
	}
	var keys []int64
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return &DatabaseError{Op: "set active: scan", Err: err}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return &DatabaseError{Op: "set active: rows", Err: err}
	}
	rows.Close()
	if len(keys) == 0 {
		return nil
	}
	query, args := inClauseUpdate(keys, key)
	if _, err := t.tx.Exec(query, args...); err != nil {
		return &DatabaseError{Op: "set active: update", Err: err}
	}
	return nil
}

func inClauseUpdate(keys []int64, newKey int64) (string, []interface{}) {
	args := make([]interface{}, 0, len(keys)+1)
	args = append(args, newKey)
	q := `UPDATE Identifiers SET record_key = ? WHERE record_key IN (`
	for i, k := range keys {
		if i > 0 {
			q += ","
		}
		q += "?"
		args = append(args, k)
	}
	q += ")"
	return q, args
}

// AddIdentifier indexes name to recordKey, failing with *AliasExistsError if
// name is already indexed.
func (t *Tx) AddIdentifier(name string, recordKey int64) error {
	var existing int64
	err := t.tx.QueryRow(`SELECT record_key FROM Identifiers WHERE name = ?`, name).Scan(&existing)
	if err == nil {
		return &AliasExistsError{Name: name}
	}
	if err != sql.ErrNoRows {
		return &DatabaseError{Op: "add identifier: check existing", Err: err}
	}
	if _, err := t.tx.Exec(`INSERT INTO Identifiers (name, record_key) VALUES (?, ?)`, name, recordKey); err != nil {
		return &DatabaseError{Op: "add identifier: insert", Err: err}
	}
	return nil
}

// RepointIdentifier moves an existing name to point at a different key
// (used when an active pointer moves without going through SetActive's
// whole-tree repoint, e.g. undo/redo).
func (t *Tx) RepointIdentifier(name string, recordKey int64) error {
	res, err := t.tx.Exec(`UPDATE Identifiers SET record_key = ? WHERE name = ?`, recordKey, name)
	if err != nil {
		return &DatabaseError{Op: "repoint identifier", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &DatabaseError{Op: "repoint identifier: rows affected", Err: err}
	}
	if n == 0 {
		return &NotIndexedError{Name: name}
	}
	return nil
}

// RemoveIdentifier deletes a single Identifiers row by name.
func (t *Tx) RemoveIdentifier(name string) error {
	if _, err := t.tx.Exec(`DELETE FROM Identifiers WHERE name = ?`, name); err != nil {
		return &DatabaseError{Op: "remove identifier", Err: err}
	}
	return nil
}

// ActiveName returns the Identifiers row name, if any, that currently points
// at key.
func (t *Tx) ActiveName(key int64) (string, bool, error) {
	var name string
	err := t.tx.QueryRow(`SELECT name FROM Identifiers WHERE record_key = ? LIMIT 1`, key).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &DatabaseError{Op: "active name", Err: err}
	}
	return name, true, nil
}

// Tree returns every row of recordID's tree, ordered root-first (ancestors
// before descendants, by BFS from the roots).
func (t *Tx) Tree(recordID string) ([]Row, error) {
	rows, err := t.tx.Query(`SELECT key FROM Records WHERE record_id = ?`, recordID)
	if err != nil {
		return nil, &DatabaseError{Op: "tree: query", Err: err}
	}
	var all []Row
	byKey := make(map[int64]Row)
	var keys []int64
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, &DatabaseError{Op: "tree: scan", Err: err}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Op: "tree: rows", Err: err}
	}
	rows.Close()

	for _, k := range keys {
		row, err := t.getRow(k)
		if err != nil {
			return nil, err
		}
		byKey[k] = row
	}

	var roots []int64
	for _, k := range keys {
		if byKey[k].ParentKey == nil {
			roots = append(roots, k)
		}
	}
	visited := make(map[int64]bool)
	queue := append([]int64{}, roots...)
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if visited[k] {
			continue
		}
		visited[k] = true
		row := byKey[k]
		all = append(all, row)
		queue = append(queue, row.Children...)
	}
	return all, nil
}

// GetByKey returns a single row by its raw key, regardless of tree or
// active status (used for #revision lookups, spec §4.6 step 3).
func (t *Tx) GetByKey(key int64) (Row, bool, error) {
	row, err := t.getRow(key)
	if err != nil {
		if isNotFound(err) {
			return Row{}, false, nil
		}
		return Row{}, false, err
	}
	return row, true, nil
}

func isNotFound(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

// DeleteTree hard-deletes every row of recordID's tree; Identifiers rows
// pointing at any of them cascade per the foreign key (spec §4.5 "Delete
// (hard)").
func (t *Tx) DeleteTree(recordID string) error {
	if _, err := t.tx.Exec(`DELETE FROM Records WHERE record_id = ?`, recordID); err != nil {
		return &DatabaseError{Op: "delete tree", Err: err}
	}
	return nil
}

// IdentifiersFor returns every name currently indexing any row of
// recordID's tree (used to check "fails if identifiers remain unresolved"
// before a hard delete it does not itself forbid at the storage layer --
// that policy lives in the edittree package).
func (t *Tx) IdentifiersFor(recordID string) ([]string, error) {
	rows, err := t.tx.Query(
		`SELECT i.name FROM Identifiers i JOIN Records r ON i.record_key = r.key WHERE r.record_id = ?`,
		recordID,
	)
	if err != nil {
		return nil, &DatabaseError{Op: "identifiers for", Err: err}
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, &DatabaseError{Op: "identifiers for: scan", Err: err}
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// NullMark records that provider fetch of recordID definitively returned
// nothing, at the given time.
func (t *Tx) NullMark(recordID string, at time.Time) error {
	_, err := t.tx.Exec(
		`INSERT INTO NullRecords (record_id, attempted) VALUES (?, ?)
		 ON CONFLICT(record_id) DO UPDATE SET attempted = excluded.attempted`,
		recordID, at.Unix(),
	)
	if err != nil {
		return &DatabaseError{Op: "null mark", Err: err}
	}
	return nil
}

// NullClear evicts a negative cache entry.
func (t *Tx) NullClear(recordID string) error {
	if _, err := t.tx.Exec(`DELETE FROM NullRecords WHERE record_id = ?`, recordID); err != nil {
		return &DatabaseError{Op: "null clear", Err: err}
	}
	return nil
}

// NullClearOlderThan evicts every negative cache entry attempted before cutoff.
func (t *Tx) NullClearOlderThan(cutoff time.Time) (int64, error) {
	res, err := t.tx.Exec(`DELETE FROM NullRecords WHERE attempted < ?`, cutoff.Unix())
	if err != nil {
		return 0, &DatabaseError{Op: "null clear older than", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &DatabaseError{Op: "null clear older than: rows affected", Err: err}
	}
	return n, nil
}

// NullQuery reports whether recordID has a negative cache entry, and when.
func (t *Tx) NullQuery(recordID string) (attempted time.Time, found bool, err error) {
	var unix int64
	e := t.tx.QueryRow(`SELECT attempted FROM NullRecords WHERE record_id = ?`, recordID).Scan(&unix)
	if e == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if e != nil {
		return time.Time{}, false, &DatabaseError{Op: "null query", Err: e}
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// RecordExists reports whether any row exists for recordID (used by the
// resolution pipeline's step 4b: "tree exists but no identifier currently
// indexes it").
func (t *Tx) RecordExists(recordID string) (bool, error) {
	var count int
	err := t.tx.QueryRow(`SELECT COUNT(1) FROM Records WHERE record_id = ?`, recordID).Scan(&count)
	if err != nil {
		return false, &DatabaseError{Op: "record exists", Err: err}
	}
	return count > 0, nil
}

// ActiveRow returns the tree's active row: a row of the tree that some
// Identifiers entry references (the first one the query returns, if
// several are), or the tree's root when no entry references any row.
// Used to re-bind a canonical name to an orphaned tree (spec §4.6 step 4b).
func (t *Tx) ActiveRow(recordID string) (Row, bool, error) {
	var key int64
	err := t.tx.QueryRow(
		`SELECT i.record_key FROM Identifiers i JOIN Records r ON i.record_key = r.key WHERE r.record_id = ? LIMIT 1`,
		recordID,
	).Scan(&key)
	if err == sql.ErrNoRows {
		// No identifier currently indexes this tree; fall back to its root.
		var rootKey int64
		err2 := t.tx.QueryRow(`SELECT key FROM Records WHERE record_id = ? AND parent_key IS NULL LIMIT 1`, recordID).Scan(&rootKey)
		if err2 == sql.ErrNoRows {
			return Row{}, false, nil
		}
		if err2 != nil {
			return Row{}, false, &DatabaseError{Op: "active row: root fallback", Err: err2}
		}
		row, err3 := t.getRow(rootKey)
		return row, err3 == nil, err3
	}
	if err != nil {
		return Row{}, false, &DatabaseError{Op: "active row", Err: err}
	}
	row, err := t.getRow(key)
	return row, err == nil, err
}

// IdentifierEntry is one row of the Identifiers table.
type IdentifierEntry struct {
	Name      string
	RecordKey int64
}

// AllIdentifiers returns every Identifiers row, for the `find` command's
// brute-force scan and for diagnostics.
func (t *Tx) AllIdentifiers() ([]IdentifierEntry, error) {
	rows, err := t.tx.Query(`SELECT name, record_key FROM Identifiers ORDER BY name`)
	if err != nil {
		return nil, &DatabaseError{Op: "all identifiers", Err: err}
	}
	defer rows.Close()
	var out []IdentifierEntry
	for rows.Next() {
		var e IdentifierEntry
		if err := rows.Scan(&e.Name, &e.RecordKey); err != nil {
			return nil, &DatabaseError{Op: "all identifiers: scan", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AllRecordIDs returns every distinct record_id in Records, for `util check`
// to walk every tree in the database.
func (t *Tx) AllRecordIDs() ([]string, error) {
	rows, err := t.tx.Query(`SELECT DISTINCT record_id FROM Records ORDER BY record_id`)
	if err != nil {
		return nil, &DatabaseError{Op: "all record ids", Err: err}
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &DatabaseError{Op: "all record ids: scan", Err: err}
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AllNullRecords returns every NullRecords row, for `util evict` reporting.
func (t *Tx) AllNullRecords() (map[string]time.Time, error) {
	rows, err := t.tx.Query(`SELECT record_id, attempted FROM NullRecords`)
	if err != nil {
		return nil, &DatabaseError{Op: "all null records", Err: err}
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var unix int64
		if err := rows.Scan(&id, &unix); err != nil {
			return nil, &DatabaseError{Op: "all null records: scan", Err: err}
		}
		out[id] = time.Unix(unix, 0).UTC()
	}
	return out, rows.Err()
}

func nullableInt64(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

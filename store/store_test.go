package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobib/autobib/record"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "autobib.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenFreshDatabase(t *testing.T) {
	s := openTestStore(t)
	var appID int64
	require.NoError(t, s.db.QueryRow("PRAGMA application_id").Scan(&appID))
	assert.Equal(t, int64(ApplicationID), appID)
	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}

func TestOpenRejectsForeignDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "other.db")
	s, err := Open(path, testLogger())
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA application_id = 12345")
	require.NoError(t, err)
	s.Close()

	_, err = Open(path, testLogger())
	require.Error(t, err)
	var fdErr *ForeignDatabaseError
	assert.ErrorAs(t, err, &fdErr)
}

func TestInsertLookupAndSetActive(t *testing.T) {
	s := openTestStore(t)
	data, err := record.Encode(record.Data{EntryType: "article", Fields: []record.Field{{Key: "title", Value: "X"}}})
	require.NoError(t, err)

	var rootKey, childKey int64
	err = s.WithTx(func(tx *Tx) error {
		k, err := tx.InsertRecord("doi:10.1/x", record.Entry, data, nil, time.Now())
		if err != nil {
			return err
		}
		rootKey = k
		if err := tx.AddIdentifier("doi:10.1/x", k); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	err = s.WithTx(func(tx *Tx) error {
		res, err := tx.Lookup("doi:10.1/x")
		if err != nil {
			return err
		}
		assert.Equal(t, rootKey, res.Key)

		ck, err := tx.InsertRecord("doi:10.1/x", record.Entry, data, &rootKey, time.Now())
		if err != nil {
			return err
		}
		childKey = ck
		return tx.SetActive("doi:10.1/x", ck)
	})
	require.NoError(t, err)

	err = s.WithTx(func(tx *Tx) error {
		res, err := tx.Lookup("doi:10.1/x")
		if err != nil {
			return err
		}
		assert.Equal(t, childKey, res.Key)

		tree, err := tx.Tree("doi:10.1/x")
		if err != nil {
			return err
		}
		require.Len(t, tree, 2)
		assert.Equal(t, rootKey, tree[0].Key)
		assert.Equal(t, childKey, tree[1].Key)
		return nil
	})
	require.NoError(t, err)
}

func TestAddIdentifierDuplicateFails(t *testing.T) {
	s := openTestStore(t)
	data, err := record.Encode(record.Data{EntryType: "misc"})
	require.NoError(t, err)
	err = s.WithTx(func(tx *Tx) error {
		k, err := tx.InsertRecord("local:alice", record.Entry, data, nil, time.Now())
		if err != nil {
			return err
		}
		if err := tx.AddIdentifier("local:alice", k); err != nil {
			return err
		}
		err = tx.AddIdentifier("local:alice", k)
		var aeErr *AliasExistsError
		assert.ErrorAs(t, err, &aeErr)
		return nil
	})
	require.NoError(t, err)
}

func TestLookupNotIndexed(t *testing.T) {
	s := openTestStore(t)
	err := s.WithTx(func(tx *Tx) error {
		_, err := tx.Lookup("doi:missing")
		var niErr *NotIndexedError
		assert.ErrorAs(t, err, &niErr)
		return nil
	})
	require.NoError(t, err)
}

func TestNullMarkQueryClear(t *testing.T) {
	s := openTestStore(t)
	err := s.WithTx(func(tx *Tx) error {
		return tx.NullMark("zbmath:999", time.Now())
	})
	require.NoError(t, err)

	err = s.WithTx(func(tx *Tx) error {
		_, found, err := tx.NullQuery("zbmath:999")
		if err != nil {
			return err
		}
		assert.True(t, found)
		return tx.NullClear("zbmath:999")
	})
	require.NoError(t, err)

	err = s.WithTx(func(tx *Tx) error {
		_, found, err := tx.NullQuery("zbmath:999")
		if err != nil {
			return err
		}
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteTreeCascadesIdentifiers(t *testing.T) {
	s := openTestStore(t)
	data, err := record.Encode(record.Data{EntryType: "misc"})
	require.NoError(t, err)
	var key int64
	err = s.WithTx(func(tx *Tx) error {
		k, err := tx.InsertRecord("doi:10.1/gone", record.Entry, data, nil, time.Now())
		if err != nil {
			return err
		}
		key = k
		return tx.AddIdentifier("doi:10.1/gone", k)
	})
	require.NoError(t, err)
	_ = key

	err = s.WithTx(func(tx *Tx) error {
		return tx.DeleteTree("doi:10.1/gone")
	})
	require.NoError(t, err)

	err = s.WithTx(func(tx *Tx) error {
		_, err := tx.Lookup("doi:10.1/gone")
		var niErr *NotIndexedError
		assert.ErrorAs(t, err, &niErr)
		names, err := tx.IdentifiersFor("doi:10.1/gone")
		if err != nil {
			return err
		}
		assert.Empty(t, names)
		return nil
	})
	require.NoError(t, err)
}

func TestMigrationFromV1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.db")

	// Simulate a v1 database by hand.
	s, err := Open(path, testLogger())
	require.NoError(t, err)
	s.Close()

	// Reopen with raw sql to downgrade in place for the test.
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec("DROP TABLE Records; DROP TABLE Identifiers; DROP TABLE NullRecords;")
	require.NoError(t, err)
	_, err = raw.Exec(schemaV1)
	require.NoError(t, err)
	_, err = raw.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	var rootKey int64
	data, err := record.Encode(record.Data{EntryType: "misc"})
	require.NoError(t, err)
	res, err := raw.Exec(`INSERT INTO Records (record_id, data, modified, variant, parent_key) VALUES (?, ?, ?, ?, NULL)`,
		"local:x", data, time.Now().Unix(), int(record.Entry))
	require.NoError(t, err)
	rootKey, err = res.LastInsertId()
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO Identifiers (name, record_key) VALUES (?, ?)`, "local:x", rootKey)
	require.NoError(t, err)
	raw.Close()

	s2, err := Open(path, testLogger())
	require.NoError(t, err)
	defer s2.Close()

	err = s2.WithTx(func(tx *Tx) error {
		res, err := tx.Lookup("local:x")
		if err != nil {
			return err
		}
		assert.Equal(t, rootKey, res.Key)
		assert.Empty(t, res.Record.Children)
		return nil
	})
	require.NoError(t, err)
}

func TestAllIdentifiersRecordIDsAndNullRecords(t *testing.T) {
	s := openTestStore(t)
	data, err := record.Encode(record.Data{EntryType: "misc"})
	require.NoError(t, err)

	err = s.WithTx(func(tx *Tx) error {
		k1, err := tx.InsertRecord("doi:10.1/a", record.Entry, data, nil, time.Now())
		if err != nil {
			return err
		}
		if err := tx.AddIdentifier("doi:10.1/a", k1); err != nil {
			return err
		}
		k2, err := tx.InsertRecord("doi:10.1/b", record.Entry, data, nil, time.Now())
		if err != nil {
			return err
		}
		if err := tx.AddIdentifier("doi:10.1/b", k2); err != nil {
			return err
		}
		if err := tx.AddIdentifier("alias-b", k2); err != nil {
			return err
		}
		return tx.NullMark("doi:10.1/c", time.Now())
	})
	require.NoError(t, err)

	err = s.WithTx(func(tx *Tx) error {
		ids, err := tx.AllIdentifiers()
		if err != nil {
			return err
		}
		assert.Len(t, ids, 3)

		recordIDs, err := tx.AllRecordIDs()
		if err != nil {
			return err
		}
		assert.ElementsMatch(t, []string{"doi:10.1/a", "doi:10.1/b"}, recordIDs)

		nulls, err := tx.AllNullRecords()
		if err != nil {
			return err
		}
		assert.Contains(t, nulls, "doi:10.1/c")
		return nil
	})
	require.NoError(t, err)
}

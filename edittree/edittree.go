// Package edittree implements the revision-tree semantics of spec §4.5:
// edit, remote update with conflict resolution, soft/hard delete, revive,
// void, reset, undo, redo and replace, all built on top of package store's
// transactional primitives.
package edittree

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autobib/autobib/record"
	"github.com/autobib/autobib/store"
)

// Manager applies edit-tree operations to a single store.
type Manager struct {
	db  *store.Store
	log *logrus.Logger
	now func() time.Time
}

// New constructs a Manager over db. log defaults to the standard logger if
// nil.
func New(db *store.Store, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{db: db, log: log, now: time.Now}
}

// DeletedError is returned by operations that refuse to act on (or through)
// a soft-deleted node without Force.
type DeletedError struct {
	RecordID string
}

func (e *DeletedError) Error() string {
	return fmt.Sprintf("%s is soft-deleted", e.RecordID)
}

// NoParentError is returned by Undo when the active node has no parent.
type NoParentError struct{ RecordID string }

func (e *NoParentError) Error() string { return fmt.Sprintf("%s has no parent revision", e.RecordID) }

// NoChildError is returned by Redo when the active node has no children, or
// the requested index is out of range.
type NoChildError struct{ RecordID string }

func (e *NoChildError) Error() string { return fmt.Sprintf("%s has no child revision", e.RecordID) }

// AmbiguousRedoError is returned by Redo when index is nil, more than one
// non-deleted child exists, and their modified times tie.
type AmbiguousRedoError struct{ RecordID string }

func (e *AmbiguousRedoError) Error() string {
	return fmt.Sprintf("%s has multiple candidate children for redo; an index is required", e.RecordID)
}

// AlreadyVoidError is returned by Void, and by Reset's pre-root branch, when
// recordID's tree already has a void root: spec §3 invariant 3 allows at
// most one void node per tree.
type AlreadyVoidError struct{ RecordID string }

func (e *AlreadyVoidError) Error() string {
	return fmt.Sprintf("%s already has a void root", e.RecordID)
}

// hasVoidRoot reports whether tree already contains a void node (always a
// parentless root, by construction).
func hasVoidRoot(tree []store.Row) bool {
	for _, r := range tree {
		if r.Variant == record.Void {
			return true
		}
	}
	return false
}

func encode(d record.Data) ([]byte, error) {
	return record.Encode(d)
}

// activeTreeState is the active row plus its tree, loaded once per
// operation.
type activeTreeState struct {
	active store.Row
	tree   []store.Row
}

func loadActive(tx *store.Tx, recordID string) (activeTreeState, error) {
	res, err := tx.Lookup(recordID)
	if err != nil {
		return activeTreeState{}, err
	}
	tree, err := tx.Tree(recordID)
	if err != nil {
		return activeTreeState{}, err
	}
	return activeTreeState{active: res.Record, tree: tree}, nil
}

func byKey(tree []store.Row, key int64) (store.Row, bool) {
	for _, r := range tree {
		if r.Key == key {
			return r, true
		}
	}
	return store.Row{}, false
}

// Edit creates a new child of the active node holding newData and makes it
// active.
func (m *Manager) Edit(recordID string, newData record.Data) (int64, error) {
	var newKey int64
	err := m.db.WithTx(func(tx *store.Tx) error {
		st, err := loadActive(tx, recordID)
		if err != nil {
			return err
		}
		blob, err := encode(newData)
		if err != nil {
			return err
		}
		parent := st.active.Key
		k, err := tx.InsertRecord(recordID, record.Entry, blob, &parent, m.now())
		if err != nil {
			return err
		}
		if err := tx.SetActive(recordID, k); err != nil {
			return err
		}
		newKey = k
		return nil
	})
	return newKey, err
}

// ConflictPolicy controls how Update merges an incoming fetched record with
// the currently active one.
type ConflictPolicy int

const (
	PreferCurrent ConflictPolicy = iota
	PreferIncoming
	Prompt
	PerField
)

// ConflictResolver is consulted field-by-field when PerField or Prompt
// policy is in effect and a field differs between current and incoming. It
// is the externalized callback of spec §9 ("the core remains non-interactive
// and testable").
type ConflictResolver interface {
	Resolve(field, current, incoming string) (string, error)
}

// Update fetches-and-merges: incoming is the freshly retrieved provider
// data; the result is merged with the currently active record per policy
// and inserted as a new child.
func (m *Manager) Update(recordID string, incoming record.Data, policy ConflictPolicy, resolver ConflictResolver) (int64, error) {
	var newKey int64
	err := m.db.WithTx(func(tx *store.Tx) error {
		st, err := loadActive(tx, recordID)
		if err != nil {
			return err
		}
		if st.active.Variant == record.Deleted {
			return &DeletedError{RecordID: recordID}
		}
		current, err := record.Decode(st.active.Data)
		if err != nil {
			return err
		}
		merged, err := merge(current, incoming, policy, resolver)
		if err != nil {
			return err
		}
		blob, err := encode(merged)
		if err != nil {
			return err
		}
		parent := st.active.Key
		k, err := tx.InsertRecord(recordID, record.Entry, blob, &parent, m.now())
		if err != nil {
			return err
		}
		if err := tx.SetActive(recordID, k); err != nil {
			return err
		}
		newKey = k
		return nil
	})
	return newKey, err
}

func merge(current, incoming record.Data, policy ConflictPolicy, resolver ConflictResolver) (record.Data, error) {
	switch policy {
	case PreferCurrent:
		return mergeKeepingConflicts(current, incoming, func(field, curV, incV string) (string, error) { return curV, nil })
	case PreferIncoming:
		return mergeKeepingConflicts(current, incoming, func(field, curV, incV string) (string, error) { return incV, nil })
	case Prompt, PerField:
		if resolver == nil {
			return record.Data{}, fmt.Errorf("conflict policy %v requires a resolver", policy)
		}
		return mergeKeepingConflicts(current, incoming, resolver.Resolve)
	default:
		return record.Data{}, fmt.Errorf("unknown conflict policy %v", policy)
	}
}

func mergeKeepingConflicts(current, incoming record.Data, choose func(field, curV, incV string) (string, error)) (record.Data, error) {
	out := record.Data{EntryType: incoming.EntryType}
	if out.EntryType == "" {
		out.EntryType = current.EntryType
	}
	keys := make(map[string]struct{})
	for _, f := range current.Fields {
		keys[f.Key] = struct{}{}
	}
	for _, f := range incoming.Fields {
		keys[f.Key] = struct{}{}
	}
	for key := range keys {
		curV, curOK := current.Get(key)
		incV, incOK := incoming.Get(key)
		switch {
		case curOK && incOK && curV == incV:
			out = out.With(key, curV)
		case curOK && incOK:
			v, err := choose(key, curV, incV)
			if err != nil {
				return record.Data{}, err
			}
			out = out.With(key, v)
		case curOK:
			out = out.With(key, curV)
		case incOK:
			out = out.With(key, incV)
		}
	}
	return out, nil
}

// SoftDelete inserts a `deleted` leaf, optionally carrying a UTF-8
// replacement canonical id, and makes it active.
func (m *Manager) SoftDelete(recordID string, replacement *string) (int64, error) {
	var newKey int64
	err := m.db.WithTx(func(tx *store.Tx) error {
		st, err := loadActive(tx, recordID)
		if err != nil {
			return err
		}
		var data []byte
		if replacement != nil {
			data = []byte(*replacement)
		}
		parent := st.active.Key
		k, err := tx.InsertRecord(recordID, record.Deleted, data, &parent, m.now())
		if err != nil {
			return err
		}
		if err := tx.SetActive(recordID, k); err != nil {
			return err
		}
		newKey = k
		return nil
	})
	return newKey, err
}

// Replace soft-deletes recordID storing replacementCanonical, after
// confirming the replacement currently resolves to an active record.
func (m *Manager) Replace(recordID, replacementCanonical string) error {
	err := m.db.WithTx(func(tx *store.Tx) error {
		if _, err := tx.Lookup(replacementCanonical); err != nil {
			return fmt.Errorf("replacement %q does not currently resolve: %w", replacementCanonical, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = m.SoftDelete(recordID, &replacementCanonical)
	return err
}

// HardDelete removes recordID's entire subtree. It refuses if any name
// other than recordID's own canonical entry still indexes the tree ("fails
// if identifiers remain unresolved", spec §4.5).
func (m *Manager) HardDelete(recordID string) error {
	return m.db.WithTx(func(tx *store.Tx) error {
		names, err := tx.IdentifiersFor(recordID)
		if err != nil {
			return err
		}
		for _, n := range names {
			if n != recordID {
				return fmt.Errorf("cannot hard-delete %s: %q still resolves to it", recordID, n)
			}
		}
		return tx.DeleteTree(recordID)
	})
}

// Revive inserts a new entry child on top of a `deleted` active node.
func (m *Manager) Revive(recordID string, data record.Data) (int64, error) {
	var newKey int64
	err := m.db.WithTx(func(tx *store.Tx) error {
		st, err := loadActive(tx, recordID)
		if err != nil {
			return err
		}
		if st.active.Variant != record.Deleted {
			return fmt.Errorf("%s active revision is not deleted", recordID)
		}
		blob, err := encode(data)
		if err != nil {
			return err
		}
		parent := st.active.Key
		k, err := tx.InsertRecord(recordID, record.Entry, blob, &parent, m.now())
		if err != nil {
			return err
		}
		if err := tx.SetActive(recordID, k); err != nil {
			return err
		}
		newKey = k
		return nil
	})
	return newKey, err
}

// Void replaces the tree root with a sentinel void record; prior rows
// remain reachable only via explicit revision ids.
func (m *Manager) Void(recordID string) (int64, error) {
	var newKey int64
	err := m.db.WithTx(func(tx *store.Tx) error {
		tree, err := tx.Tree(recordID)
		if err != nil {
			return err
		}
		if hasVoidRoot(tree) {
			return &AlreadyVoidError{RecordID: recordID}
		}
		k, err := tx.InsertRecord(recordID, record.Void, nil, nil, store.VoidTimestamp)
		if err != nil {
			return err
		}
		if err := tx.SetActive(recordID, k); err != nil {
			return err
		}
		newKey = k
		return nil
	})
	return newKey, err
}

// Undo moves the active pointer to the parent of the active node. It
// refuses to cross into a `deleted` node unless force is set.
func (m *Manager) Undo(recordID string, force bool) (int64, error) {
	var newKey int64
	err := m.db.WithTx(func(tx *store.Tx) error {
		st, err := loadActive(tx, recordID)
		if err != nil {
			return err
		}
		if st.active.ParentKey == nil {
			return &NoParentError{RecordID: recordID}
		}
		parent, ok := byKey(st.tree, *st.active.ParentKey)
		if !ok {
			return fmt.Errorf("parent %d of %s not found in tree", *st.active.ParentKey, recordID)
		}
		if parent.Variant == record.Deleted && !force {
			return &DeletedError{RecordID: recordID}
		}
		if err := tx.SetActive(recordID, parent.Key); err != nil {
			return err
		}
		newKey = parent.Key
		return nil
	})
	return newKey, err
}

// Redo moves the active pointer to a child of the active node. index, when
// non-nil, selects among the active node's Children slice (order as cached
// by the store); when nil, the non-deleted child with the latest Modified
// time is chosen (deleted children are considered only when every child is
// deleted; ties require an explicit index). Refuses a `deleted` target
// unless force.
func (m *Manager) Redo(recordID string, index *int, force bool) (int64, error) {
	var newKey int64
	err := m.db.WithTx(func(tx *store.Tx) error {
		st, err := loadActive(tx, recordID)
		if err != nil {
			return err
		}
		if len(st.active.Children) == 0 {
			return &NoChildError{RecordID: recordID}
		}

		var target store.Row
		if index != nil {
			if *index < 0 || *index >= len(st.active.Children) {
				return &NoChildError{RecordID: recordID}
			}
			row, ok := byKey(st.tree, st.active.Children[*index])
			if !ok {
				return fmt.Errorf("child %d of %s not found in tree", st.active.Children[*index], recordID)
			}
			target = row
		} else {
			var candidates, live []store.Row
			for _, ck := range st.active.Children {
				row, ok := byKey(st.tree, ck)
				if ok {
					candidates = append(candidates, row)
					if row.Variant != record.Deleted {
						live = append(live, row)
					}
				}
			}
			if len(live) > 0 {
				candidates = live
			}
			target, err = latestByModified(recordID, candidates)
			if err != nil {
				return err
			}
		}
		if target.Variant == record.Deleted && !force {
			return &DeletedError{RecordID: recordID}
		}
		if err := tx.SetActive(recordID, target.Key); err != nil {
			return err
		}
		newKey = target.Key
		return nil
	})
	return newKey, err
}

func latestByModified(recordID string, rows []store.Row) (store.Row, error) {
	if len(rows) == 0 {
		return store.Row{}, &NoChildError{RecordID: recordID}
	}
	best := rows[0]
	tie := false
	for _, r := range rows[1:] {
		if r.Modified.After(best.Modified) {
			best = r
			tie = false
		} else if r.Modified.Equal(best.Modified) {
			tie = true
		}
	}
	if tie {
		return store.Row{}, &AmbiguousRedoError{RecordID: recordID}
	}
	return best, nil
}

// ResetTarget selects where Reset should move the active pointer to: either
// an explicit revision key, or a timestamp (choosing the deepest node whose
// Modified <= target, per spec §4.5's tie-break).
type ResetTarget struct {
	RevisionKey *int64
	Timestamp   *time.Time
}

// Reset moves the active pointer to an explicit revision or the node
// selected by a timestamp target. If the chosen point predates the tree's
// root, a void is inserted instead (spec §4.5).
func (m *Manager) Reset(recordID string, target ResetTarget) (int64, error) {
	var newKey int64
	err := m.db.WithTx(func(tx *store.Tx) error {
		tree, err := tx.Tree(recordID)
		if err != nil {
			return err
		}
		if len(tree) == 0 {
			return fmt.Errorf("%s has no tree", recordID)
		}

		var chosen store.Row
		found := false
		switch {
		case target.RevisionKey != nil:
			chosen, found = byKey(tree, *target.RevisionKey)
			if !found {
				return fmt.Errorf("revision #%x not found in %s's tree", *target.RevisionKey, recordID)
			}
		case target.Timestamp != nil:
			chosen, found = deepestAtOrBefore(tree, *target.Timestamp)
			if !found {
				// Target predates the root: insert a void, unless one
				// already exists for this tree.
				if hasVoidRoot(tree) {
					return &AlreadyVoidError{RecordID: recordID}
				}
				k, err := tx.InsertRecord(recordID, record.Void, nil, nil, store.VoidTimestamp)
				if err != nil {
					return err
				}
				if err := tx.SetActive(recordID, k); err != nil {
					return err
				}
				newKey = k
				return nil
			}
		default:
			return fmt.Errorf("reset requires a revision key or a timestamp")
		}

		if err := tx.SetActive(recordID, chosen.Key); err != nil {
			return err
		}
		newKey = chosen.Key
		return nil
	})
	return newKey, err
}

// deepestAtOrBefore finds the node with Modified <= target that has the
// greatest depth (most ancestors) in the tree, breaking ties by the latest
// Modified among equal-depth candidates.
func deepestAtOrBefore(tree []store.Row, target time.Time) (store.Row, bool) {
	depth := make(map[int64]int)
	byK := make(map[int64]store.Row, len(tree))
	for _, r := range tree {
		byK[r.Key] = r
	}
	var depthOf func(key int64) int
	depthOf = func(key int64) int {
		if d, ok := depth[key]; ok {
			return d
		}
		r := byK[key]
		d := 0
		if r.ParentKey != nil {
			d = depthOf(*r.ParentKey) + 1
		}
		depth[key] = d
		return d
	}

	var best store.Row
	bestDepth := -1
	haveBest := false
	for _, r := range tree {
		if r.Modified.After(target) {
			continue
		}
		d := depthOf(r.Key)
		if d > bestDepth || (d == bestDepth && r.Modified.After(best.Modified)) {
			best = r
			bestDepth = d
			haveBest = true
		}
	}
	return best, haveBest
}

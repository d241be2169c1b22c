package main

import (
	"fmt"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/record"
	"github.com/autobib/autobib/store"
)

func registerUtilCommand(app *kingpin.Application, g *globalFlags) {
	util := app.Command("util", "Maintenance operations over the local database.")

	check := util.Command("check", "Re-verify storage invariants across every tree.")
	dispatch[check.FullCommand()] = run(g, cmdCheck)

	evict := util.Command("evict", "Clear negative-cache (null) entries.")
	all := evict.Flag("all", "Clear every negative-cache entry, regardless of age.").Bool()
	olderThan := evict.Flag("older-than", "Clear entries attempted more than this long ago (e.g. 168h).").Default("0s").Duration()
	dispatch[evict.FullCommand()] = run(g, func(a *appContext) int {
		return cmdEvict(a, *all, *olderThan)
	})
}

func cmdCheck(a *appContext) int {
	var violations []string
	err := a.db.WithTx(func(tx *store.Tx) error {
		ids, err := tx.AllRecordIDs()
		if err != nil {
			return err
		}
		for _, recordID := range ids {
			tree, err := tx.Tree(recordID)
			if err != nil {
				return err
			}
			violations = append(violations, checkTree(tx, recordID, tree)...)
		}
		return nil
	})
	if err != nil {
		printErr("%v", err)
		return exitDatabaseError
	}
	for _, v := range violations {
		fmt.Println(v)
	}
	if len(violations) > 0 {
		return exitUserError
	}
	fmt.Println("ok")
	return exitOK
}

// checkTree re-verifies invariants 2-4 of spec §3 for a single tree.
// Invariant 1 (single-tree-per-record_id) holds by construction of Tree.
// For invariant 4 it checks that the canonical name resolves to a row of
// this tree; other names pointing into the tree are not examined.
func checkTree(tx *store.Tx, recordID string, tree []store.Row) []string {
	var problems []string
	byKey := make(map[int64]store.Row, len(tree))
	for _, row := range tree {
		byKey[row.Key] = row
	}

	voidRoots := 0
	for _, row := range tree {
		if row.Variant == record.Void {
			voidRoots++
			if row.ParentKey != nil {
				problems = append(problems, fmt.Sprintf("%s #%x: void node has a parent", recordID, row.Key))
			}
		}
		if row.ParentKey != nil {
			parent, ok := byKey[*row.ParentKey]
			if !ok {
				problems = append(problems, fmt.Sprintf("%s #%x: parent #%x not in tree", recordID, row.Key, *row.ParentKey))
				continue
			}
			if parent.Variant != record.Void && !row.Modified.After(parent.Modified) {
				problems = append(problems, fmt.Sprintf("%s #%x: modified %s not after parent #%x's %s", recordID, row.Key, row.Modified, parent.Key, parent.Modified))
			}
		}
	}
	if voidRoots > 1 {
		problems = append(problems, fmt.Sprintf("%s: %d void nodes, expected at most 1", recordID, voidRoots))
	}

	res, err := tx.Lookup(recordID)
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("%s: no active revision: %v", recordID, err))
	default:
		if _, ok := byKey[res.Key]; !ok {
			problems = append(problems, fmt.Sprintf("%s: active key #%x not in its own tree", recordID, res.Key))
		}
	}
	return problems
}

func cmdEvict(a *appContext, all bool, olderThan time.Duration) int {
	var n int64
	err := a.db.WithTx(func(tx *store.Tx) error {
		if all {
			entries, err := tx.AllNullRecords()
			if err != nil {
				return err
			}
			for recordID := range entries {
				if err := tx.NullClear(recordID); err != nil {
					return err
				}
				n++
			}
			return nil
		}
		cutoff := nowUTC().Add(-olderThan)
		cleared, err := tx.NullClearOlderThan(cutoff)
		n = cleared
		return err
	})
	if err != nil {
		printErr("%v", err)
		return exitDatabaseError
	}
	fmt.Printf("evicted %d negative-cache entries\n", n)
	return exitOK
}

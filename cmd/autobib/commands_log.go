package main

import (
	"fmt"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/identifier"
	"github.com/autobib/autobib/store"
)

func registerLogCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("log", "Print the revision tree of an identifier, root to leaf.")
	ident := cmd.Arg("identifier", "Identifier, alias, or #revision.").Required().String()
	dot := cmd.Flag("dot", "Render as a graphviz dot graph instead of a text list.").Bool()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdLog(a, *ident, *dot)
	})
}

// treeRoot resolves ident (alias, canonical/reference id, or #revision) to
// its tree's record_id and currently-active key, without going through the
// resolution pipeline's fetch-on-miss behavior: log only inspects what is
// already stored.
func treeRoot(a *appContext, ident string) (recordID string, activeKey int64, err error) {
	id, perr := identifier.Parse(ident, a.registry)
	if perr != nil {
		return "", 0, perr
	}
	return a.lookupTreeRootErr(id)
}

func (a *appContext) lookupTreeRootErr(id identifier.Identifier) (string, int64, error) {
	var recordID string
	var key int64
	err := a.db.WithTx(func(tx *store.Tx) error {
		if id.Kind == identifier.KindRevision {
			row, ok, err := tx.GetByKey(int64(id.Revision))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no such revision #%x", id.Revision)
			}
			recordID, key = row.RecordID, row.Key
			return nil
		}
		res, err := tx.Lookup(id.Name())
		if err != nil {
			return err
		}
		recordID, key = res.Record.RecordID, res.Key
		return nil
	})
	return recordID, key, err
}

func cmdLog(a *appContext, ident string, dot bool) int {
	recordID, activeKey, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	var tree []store.Row
	err = a.db.WithTx(func(tx *store.Tx) error {
		t, err := tx.Tree(recordID)
		tree = t
		return err
	})
	if err != nil {
		printErr("%v", err)
		return exitDatabaseError
	}
	if dot {
		fmt.Print(store.RenderDot(recordID, tree, activeKey))
		return exitOK
	}
	for _, row := range tree {
		marker := " "
		if row.Key == activeKey {
			marker = "*"
		}
		parent := "-"
		if row.ParentKey != nil {
			parent = fmt.Sprintf("%x", *row.ParentKey)
		}
		fmt.Printf("%s #%x  parent=%-6s variant=%-8s modified=%s\n", marker, row.Key, parent, row.Variant, row.Modified.Format("2006-01-02T15:04:05Z"))
	}
	return exitOK
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/edittree"
	"github.com/autobib/autobib/record"
)

func registerHistCommand(app *kingpin.Application, g *globalFlags) {
	hist := app.Command("hist", "Move an identifier's active revision through its history.")

	undo := hist.Command("undo", "Move the active revision to its parent.")
	undoIdent := undo.Arg("identifier", "Identifier, alias, or #revision.").Required().String()
	undoForce := undo.Flag("force", "Allow moving onto a deleted revision.").Bool()
	dispatch[undo.FullCommand()] = run(g, func(a *appContext) int { return cmdUndo(a, *undoIdent, *undoForce) })

	redo := hist.Command("redo", "Move the active revision to a child.")
	redoIdent := redo.Arg("identifier", "Identifier, alias, or #revision.").Required().String()
	redoIndex := redo.Flag("index", "Which child to select when more than one exists.").Default("-1").Int()
	redoForce := redo.Flag("force", "Allow moving onto a deleted revision.").Bool()
	dispatch[redo.FullCommand()] = run(g, func(a *appContext) int {
		var idx *int
		if *redoIndex >= 0 {
			idx = redoIndex
		}
		return cmdRedo(a, *redoIdent, idx, *redoForce)
	})

	void := hist.Command("void", "Replace the tree root with a void sentinel.")
	voidIdent := void.Arg("identifier", "Identifier, alias, or #revision.").Required().String()
	dispatch[void.FullCommand()] = run(g, func(a *appContext) int { return cmdVoid(a, *voidIdent) })

	revive := hist.Command("revive", "Insert a new entry revision on top of a deleted one.")
	reviveIdent := revive.Arg("identifier", "Identifier, alias, or #revision.").Required().String()
	reviveSets := revive.Flag("set", "field=value to set (repeatable).").Strings()
	reviveType := revive.Flag("type", "Entry type for the revived record.").Default("misc").String()
	dispatch[revive.FullCommand()] = run(g, func(a *appContext) int {
		return cmdRevive(a, *reviveIdent, *reviveSets, *reviveType)
	})

	reset := hist.Command("reset", "Move the active revision to an explicit point in history.")
	resetIdent := reset.Arg("identifier", "Identifier, alias, or #revision.").Required().String()
	resetRevision := reset.Flag("revision", "Target revision, as hex (without the leading '#').").String()
	resetAt := reset.Flag("at", "Target timestamp, RFC3339.").String()
	dispatch[reset.FullCommand()] = run(g, func(a *appContext) int {
		return cmdReset(a, *resetIdent, *resetRevision, *resetAt)
	})
}

func cmdUndo(a *appContext, ident string, force bool) int {
	recordID, _, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	key, err := a.edit.Undo(recordID, force)
	return reportHistResult(recordID, key, err)
}

func cmdRedo(a *appContext, ident string, index *int, force bool) int {
	recordID, _, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	key, err := a.edit.Redo(recordID, index, force)
	return reportHistResult(recordID, key, err)
}

func cmdVoid(a *appContext, ident string) int {
	recordID, _, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	key, err := a.edit.Void(recordID)
	return reportHistResult(recordID, key, err)
}

func cmdRevive(a *appContext, ident string, sets []string, entryType string) int {
	overrides, err := parseSets(sets)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	recordID, _, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	data := record.Data{EntryType: entryType}
	for k, v := range overrides {
		data = data.With(k, v)
	}
	key, err := a.edit.Revive(recordID, data)
	return reportHistResult(recordID, key, err)
}

func cmdReset(a *appContext, ident, revisionHex, at string) int {
	recordID, _, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	var target edittree.ResetTarget
	switch {
	case revisionHex != "":
		n, perr := strconv.ParseUint(revisionHex, 16, 64)
		if perr != nil {
			printErr("bad --revision %q: %v", revisionHex, perr)
			return exitUserError
		}
		key := int64(n)
		target.RevisionKey = &key
	case at != "":
		ts, perr := time.Parse(time.RFC3339, at)
		if perr != nil {
			printErr("bad --at %q: %v", at, perr)
			return exitUserError
		}
		target.Timestamp = &ts
	default:
		printErr("reset requires --revision or --at")
		return exitUserError
	}
	key, err := a.edit.Reset(recordID, target)
	return reportHistResult(recordID, key, err)
}

func reportHistResult(recordID string, key int64, err error) int {
	if err != nil {
		printErr("%v", err)
		switch err.(type) {
		case *edittree.NoParentError, *edittree.NoChildError, *edittree.AmbiguousRedoError, *edittree.DeletedError, *edittree.AlreadyVoidError:
			return exitUserError
		default:
			return exitDatabaseError
		}
	}
	fmt.Printf("%s: active revision now #%x\n", recordID, key)
	return exitOK
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/edittree"
	"github.com/autobib/autobib/identifier"
	"github.com/autobib/autobib/provider"
	"github.com/autobib/autobib/record"
	"github.com/autobib/autobib/store"
)

func registerEditCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("edit", "Create a new revision of a record by overriding fields.")
	ident := cmd.Arg("identifier", "Identifier, alias, or #revision to edit.").Required().String()
	sets := cmd.Flag("set", "field=value to set (repeatable).").Strings()
	entryType := cmd.Flag("type", "Override the entry type.").String()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdEdit(a, *ident, *sets, *entryType)
	})
}

func parseSets(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		idx := strings.IndexByte(s, '=')
		if idx < 0 {
			return nil, fmt.Errorf("--set %q: expected field=value", s)
		}
		out[s[:idx]] = s[idx+1:]
	}
	return out, nil
}

func cmdEdit(a *appContext, ident string, sets []string, entryType string) int {
	overrides, err := parseSets(sets)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	recordID, activeKey, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	var current record.Data
	err = a.db.WithTx(func(tx *store.Tx) error {
		row, ok, err := tx.GetByKey(activeKey)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: active revision not found", recordID)
		}
		current, err = record.Decode(row.Data)
		return err
	})
	if err != nil {
		printErr("%v", err)
		return exitDatabaseError
	}
	newData := current
	if entryType != "" {
		newData.EntryType = entryType
	}
	for k, v := range overrides {
		newData = newData.With(k, v)
	}
	key, err := a.edit.Edit(recordID, newData)
	if err != nil {
		printErr("%v", err)
		return exitDatabaseError
	}
	fmt.Printf("%s: new active revision #%x\n", recordID, key)
	return exitOK
}

func registerUpdateCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("update", "Re-fetch from the record's provider and merge with the current revision.")
	ident := cmd.Arg("identifier", "Identifier, alias, or #revision to update.").Required().String()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdUpdate(a, *ident)
	})
}

func cmdUpdate(a *appContext, ident string) int {
	recordID, _, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	id, err := identifier.Parse(recordID, a.registry)
	if err != nil || id.Kind != identifier.KindCanonical {
		printErr("%s: update requires a canonical record", recordID)
		return exitUserError
	}

	fr, err := a.registry.Fetch(context.Background(), provider.Tag(id.Provider), id.SubID)
	if err != nil {
		printErr("%v", err)
		return exitNetworkError
	}
	if fr.Status != provider.FetchEntry {
		printErr("%s: provider has no data to update with", recordID)
		return exitUserError
	}
	incoming := fr.Data
	if h := onInsertHooks(a.cfg); h != nil {
		incoming = h(incoming)
	}

	var resolver edittree.ConflictResolver
	if a.cfg.ConflictPolicy == "prompt" {
		resolver = newStdinResolver(os.Stdin, os.Stdout)
	}
	key, err := a.edit.Update(recordID, incoming, conflictPolicy(a.cfg.ConflictPolicy), resolver)
	if err != nil {
		printErr("%v", err)
		return exitDatabaseError
	}
	fmt.Printf("%s: new active revision #%x\n", recordID, key)
	return exitOK
}

func registerDeleteCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("delete", "Soft- or hard-delete a record.")
	ident := cmd.Arg("identifier", "Identifier, alias, or #revision to delete.").Required().String()
	hard := cmd.Flag("hard", "Hard-delete (irreversibly removes the whole tree).").Bool()
	replace := cmd.Flag("replace", "Canonical id of the replacement record (soft delete only).").String()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdDelete(a, *ident, *hard, *replace)
	})
}

func cmdDelete(a *appContext, ident string, hard bool, replace string) int {
	recordID, _, err := treeRoot(a, ident)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	if hard {
		if err := a.edit.HardDelete(recordID); err != nil {
			printErr("%v", err)
			return exitUserError
		}
		fmt.Printf("%s: hard-deleted\n", recordID)
		return exitOK
	}
	if replace != "" {
		if err := a.edit.Replace(recordID, replace); err != nil {
			printErr("%v", err)
			return exitUserError
		}
		fmt.Printf("%s: soft-deleted, replaced by %s\n", recordID, replace)
		return exitOK
	}
	if _, err := a.edit.SoftDelete(recordID, nil); err != nil {
		printErr("%v", err)
		return exitDatabaseError
	}
	fmt.Printf("%s: soft-deleted\n", recordID)
	return exitOK
}

func registerReplaceCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("replace", "Soft-delete a record, pointing lookups at a replacement.")
	ident := cmd.Arg("identifier", "Identifier of the record being replaced.").Required().String()
	replacement := cmd.Arg("replacement", "Canonical id of the replacement, which must already resolve.").Required().String()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		recordID, _, err := treeRoot(a, *ident)
		if err != nil {
			printErr("%v", err)
			return exitUserError
		}
		if err := a.edit.Replace(recordID, *replacement); err != nil {
			printErr("%v", err)
			return exitUserError
		}
		fmt.Printf("%s: replaced by %s\n", recordID, *replacement)
		return exitOK
	})
}

func registerAliasCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("alias", "Bind a new alias name to an existing identifier's active revision.")
	name := cmd.Arg("alias", "New alias name.").Required().String()
	ident := cmd.Arg("identifier", "Identifier the alias should resolve to.").Required().String()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdAlias(a, *name, *ident)
	})
}

func cmdAlias(a *appContext, name, ident string) int {
	if err := identifier.ValidateAlias(name); err != nil {
		printErr("%v", err)
		return exitUserError
	}
	out := a.resolver.Resolve(context.Background(), ident)
	code := exitCodeForOutcome(out.Kind)
	if code != exitOK {
		printErr("%s does not currently resolve (%s)", ident, out.Kind)
		return code
	}
	err := a.db.WithTx(func(tx *store.Tx) error {
		return tx.AddIdentifier(name, out.Key)
	})
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	fmt.Printf("%s -> %s\n", name, out.Name)
	return exitOK
}

func registerLocalCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("local", "Create a new local (no-provider) record.")
	name := cmd.Arg("name", "Local sub-id, e.g. 'my-notes'.").Required().String()
	sets := cmd.Flag("set", "field=value to set (repeatable).").Strings()
	entryType := cmd.Flag("type", "Entry type.").Default("misc").String()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdLocal(a, *name, *sets, *entryType)
	})
}

func cmdLocal(a *appContext, name string, sets []string, entryType string) int {
	overrides, err := parseSets(sets)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	norm, ok, err := a.registry.Normalize(string(provider.Local), name)
	if err != nil || !ok {
		printErr("bad local sub-id %q: %v", name, err)
		return exitUserError
	}
	recordID := string(provider.Local) + ":" + norm
	data := record.Data{EntryType: entryType}
	for k, v := range overrides {
		data = data.With(k, v)
	}
	blob, err := record.Encode(data)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	var key int64
	err = a.db.WithTx(func(tx *store.Tx) error {
		k, err := tx.InsertRecord(recordID, record.Entry, blob, nil, nowUTC())
		if err != nil {
			return err
		}
		key = k
		return tx.AddIdentifier(recordID, k)
	})
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}
	fmt.Printf("%s: created #%x\n", recordID, key)
	return exitOK
}

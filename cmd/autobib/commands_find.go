package main

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/record"
	"github.com/autobib/autobib/store"
)

func registerFindCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("find", "Search active records for entries matching every term in query.")
	query := cmd.Arg("query", "Search terms; quote a term to match it literally, including spaces.").Required().String()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdFind(a, *query)
	})
}

func cmdFind(a *appContext, query string) int {
	terms, err := shlex.Split(query)
	if err != nil {
		printErr("bad query: %v", err)
		return exitUserError
	}
	if len(terms) == 0 {
		printErr("empty query")
		return exitUserError
	}
	for i, t := range terms {
		terms[i] = strings.ToLower(t)
	}

	var hits int
	err = a.db.WithTx(func(tx *store.Tx) error {
		names, err := tx.AllIdentifiers()
		if err != nil {
			return err
		}
		for _, n := range names {
			row, ok, err := tx.GetByKey(n.RecordKey)
			if err != nil {
				return err
			}
			if !ok || row.Variant != record.Entry {
				continue
			}
			d, err := record.Decode(row.Data)
			if err != nil {
				continue
			}
			if matchesAllTerms(n.Name, d, terms) {
				bib, rerr := renderBibTeX(n.Name, d)
				if rerr != nil {
					continue
				}
				fmt.Print(bib)
				hits++
			}
		}
		return nil
	})
	if err != nil {
		printErr("%v", err)
		return exitDatabaseError
	}
	if hits == 0 {
		printErr("no matches")
		return exitUserError
	}
	return exitOK
}

func matchesAllTerms(name string, d record.Data, terms []string) bool {
	haystack := strings.ToLower(name + " " + d.EntryType)
	for _, f := range d.Fields {
		haystack += " " + strings.ToLower(f.Value)
	}
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

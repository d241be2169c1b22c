package main

import (
	"context"
	"fmt"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/resolve"
)

func registerGetCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("get", "Resolve an identifier and print its record as BibTeX.")
	ident := cmd.Arg("identifier", "Identifier, alias, or #revision to resolve.").Required().String()
	raw := cmd.Flag("raw", "Print the decoded record fields instead of BibTeX.").Bool()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdGet(a, *ident, *raw)
	})
}

func cmdGet(a *appContext, ident string, raw bool) int {
	out := a.resolver.Resolve(context.Background(), ident)
	switch out.Kind {
	case resolve.KindEntry:
		if raw {
			fmt.Printf("%s %+v\n", out.Name, out.Record)
			return exitOK
		}
		bib, err := renderBibTeX(out.Name, out.Record)
		if err != nil {
			printErr("%v", err)
			return exitUserError
		}
		fmt.Print(bib)
		return exitOK
	case resolve.KindDeleted:
		if out.Replacement != nil {
			printErr("%s is deleted; replaced by %s", out.Name, *out.Replacement)
		} else {
			printErr("%s is deleted", out.Name)
		}
		return exitUserError
	case resolve.KindNullRemote:
		printErr("%s: provider has no record (cached)", out.Name)
		return exitUserError
	case resolve.KindNullAlias:
		printErr("%s: no such alias", out.Name)
		return exitUserError
	case resolve.KindBadIdentifier:
		printErr("%s: %v", out.Name, out.Err)
		return exitUserError
	case resolve.KindNetworkError:
		printErr("%s: network error: %v", out.Name, out.Err)
		return exitNetworkError
	default:
		printErr("%s: %v", out.Name, out.Err)
		return exitDatabaseError
	}
}

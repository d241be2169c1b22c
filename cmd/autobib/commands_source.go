package main

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/h2non/filetype"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/resolve"
)

func registerSourceCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("source", "Resolve every identifier listed in file, one per line.")
	file := cmd.Arg("file", "Path to a file of identifiers, or '-' for stdin.").Required().String()
	skip := cmd.Flag("skip", "Identifier to skip (repeatable).").Strings()
	skipFrom := cmd.Flag("skip-from", "File of identifiers to skip, one per line.").String()
	appendTo := cmd.Flag("append", "Existing output file; identifiers already resolved there are skipped.").String()
	concurrency := cmd.Flag("concurrency", "Maximum concurrent provider fetches.").Default("4").Int()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdSource(a, *file, *skip, *skipFrom, *appendTo, *concurrency)
	})
}

func registerImportCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("import", "Resolve every citation key listed in file, one per line.")
	file := cmd.Arg("file", "Path to a file of citation keys, or '-' for stdin.").Required().String()
	skip := cmd.Flag("skip", "Citation key to skip (repeatable).").Strings()
	skipFrom := cmd.Flag("skip-from", "File of citation keys to skip, one per line.").String()
	appendTo := cmd.Flag("append", "Existing output file; keys already resolved there are skipped.").String()
	concurrency := cmd.Flag("concurrency", "Maximum concurrent provider fetches.").Default("4").Int()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdSource(a, *file, *skip, *skipFrom, *appendTo, *concurrency)
	})
}

// cmdSource backs both `source` and `import`: spec §4.6's closing paragraph
// treats them identically once a list of bare identifier/citation-key
// strings has been produced, the only difference being where that list
// comes from (a plain line-oriented file for `source`, citation keys lifted
// out of a .bib file upstream of this tool for `import`).
func cmdSource(a *appContext, file string, skip []string, skipFrom, appendFrom string, concurrency int) int {
	inputs, err := readLines(file)
	if err != nil {
		printErr("%v", err)
		return exitUserError
	}

	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipSet[s] = struct{}{}
	}
	if skipFrom != "" {
		extra, err := readLines(skipFrom)
		if err != nil {
			printErr("%v", err)
			return exitUserError
		}
		for _, s := range extra {
			skipSet[s] = struct{}{}
		}
	}
	seenSet := map[string]struct{}{}
	if appendFrom != "" {
		extra, err := readLines(appendFrom)
		if err != nil && !os.IsNotExist(err) {
			printErr("%v", err)
			return exitUserError
		}
		for _, s := range extra {
			seenSet[s] = struct{}{}
		}
	}

	items := a.resolver.Batch(context.Background(), inputs, resolve.BatchOptions{
		Concurrency: concurrency,
		Skip:        skipSet,
		Seen:        seenSet,
	})

	worst := exitOK
	for _, item := range items {
		if _, skipped := skipSet[item.Input]; skipped {
			continue
		}
		if _, seen := seenSet[item.Input]; seen {
			continue
		}
		code := exitCodeForOutcome(item.Outcome.Kind)
		switch item.Outcome.Kind {
		case resolve.KindEntry:
			fmt.Printf("%s: ok (%s)\n", item.Input, item.Outcome.Name)
		default:
			fmt.Printf("%s: %s\n", item.Input, item.Outcome.Kind)
		}
		if code > worst {
			worst = code
		}
	}
	return worst
}

// readLines reads file (or stdin, for "-") as one identifier per line,
// transparently gunzipping when the content is gzip-compressed.
func readLines(path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(261)
	if err != nil && err != io.EOF {
		return nil, err
	}
	kind, _ := filetype.Match(head)
	if kind.Extension == "gz" {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("reading gzip-compressed %s: %w", path, err)
		}
		defer gz.Close()
		return scanLines(gz)
	}
	return scanLines(br)
}

func scanLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

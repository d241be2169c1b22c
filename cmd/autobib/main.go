// Command autobib maintains a local, versioned database of bibliographic
// records keyed by stable identifiers. This file is the thin argument-
// parsing and dispatch boundary named out of scope by the core packages;
// every command here does no more than assemble an appContext and call
// into package resolve/edittree/store.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/version"
)

// globalFlags are parsed once before any command's Action runs.
type globalFlags struct {
	configFile        string
	databasePath      string
	responseCachePath string
	replayResponses   bool
	noInteractive     bool
	debug             bool
	profileMode       string
}

func main() {
	app := kingpin.New("autobib", "Maintains a local, versioned database of bibliographic records.")
	app.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("autobib")).Author("autobib maintainers")
	app.HelpFlag.Short('h')

	var globals globalFlags
	app.Flag("config", "Configuration file (overrides AUTOBIB_CONFIG_PATH).").
		Short('c').StringVar(&globals.configFile)
	app.Flag("database", "Database file (overrides AUTOBIB_DATABASE_PATH).").
		Short('d').StringVar(&globals.databasePath)
	app.Flag("response-cache", "Provider response cache file (overrides AUTOBIB_RESPONSE_CACHE_PATH).").
		StringVar(&globals.responseCachePath)
	app.Flag("replay-responses", "Answer provider fetches from --response-cache instead of performing them.").
		BoolVar(&globals.replayResponses)
	app.Flag("no-interactive", "Never prompt; conflict_policy=prompt falls back to prefer-current.").
		BoolVar(&globals.noInteractive)
	app.Flag("debug", "Enable debug-level logging.").BoolVar(&globals.debug)
	app.Flag("profile", "Write a pprof profile of this invocation: cpu, mem, or block.").
		StringVar(&globals.profileMode)

	registerGetCommand(app, &globals)
	registerSourceCommand(app, &globals)
	registerImportCommand(app, &globals)
	registerEditCommand(app, &globals)
	registerUpdateCommand(app, &globals)
	registerDeleteCommand(app, &globals)
	registerReplaceCommand(app, &globals)
	registerAliasCommand(app, &globals)
	registerLocalCommand(app, &globals)
	registerFindCommand(app, &globals)
	registerHistCommand(app, &globals)
	registerLogCommand(app, &globals)
	registerUtilCommand(app, &globals)
	registerCompletionsCommand(app, &globals)
	registerDefaultConfigCommand(app, &globals)

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	stop := func() {}
	if globals.profileMode != "" {
		stop = startProfile(globals.profileMode)
	}

	code, ok := dispatch[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "autobib: unknown command %q\n", cmd)
		stop()
		os.Exit(exitUserError)
	}
	exitCode := code()
	stop()
	os.Exit(exitCode)
}

// dispatch maps a parsed kingpin command path to the thunk that runs it.
// Each register*Command function appends its own entry at registration
// time, rather than this file enumerating every command's Action inline --
// keeps main.go a pure wiring/dispatch table, with flag declarations
// separate from each command's own logic.
var dispatch = map[string]func() int{}

func startProfile(mode string) func() {
	var p interface{ Stop() }
	switch mode {
	case "cpu":
		p = profile.Start(profile.CPUProfile)
	case "mem":
		p = profile.Start(profile.MemProfile)
	case "block":
		p = profile.Start(profile.BlockProfile)
	default:
		fmt.Fprintf(os.Stderr, "autobib: unknown --profile mode %q\n", mode)
		return func() {}
	}
	return p.Stop
}

package main

import (
	"fmt"

	"gopkg.in/alecthomas/kingpin.v2"
)

// topLevelCommands lists the subcommands completions should offer. Kept as
// a literal rather than walked off the kingpin.Application model, since the
// shell script is generated once at build time via this command and does
// not need to track flag-level completion.
var topLevelCommands = []string{
	"get", "source", "import", "edit", "update", "delete", "replace",
	"alias", "local", "find", "log", "hist", "util", "completions",
	"default-config",
}

func registerCompletionsCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("completions", "Print a shell completion script.")
	shell := cmd.Arg("shell", "Target shell.").Default("bash").Enum("bash", "zsh")

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdCompletions(*shell)
	})
}

func cmdCompletions(shell string) int {
	switch shell {
	case "zsh":
		fmt.Print(zshCompletionScript())
	default:
		fmt.Print(bashCompletionScript())
	}
	return exitOK
}

func bashCompletionScript() string {
	words := joinWords(topLevelCommands)
	return fmt.Sprintf(`# bash completion for autobib
_autobib() {
	local cur prev
	COMPREPLY=()
	cur="${COMP_WORDS[COMP_CWORD]}"
	if [ "$COMP_CWORD" -eq 1 ]; then
		COMPREPLY=( $(compgen -W "%s" -- "$cur") )
	fi
}
complete -F _autobib autobib
`, words)
}

func zshCompletionScript() string {
	words := joinWords(topLevelCommands)
	return fmt.Sprintf(`#compdef autobib
_autobib() {
	_arguments '1: :(%s)'
}
_autobib
`, words)
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}

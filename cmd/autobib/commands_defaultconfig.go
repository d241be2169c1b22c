package main

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/autobib/autobib/config"
)

func registerDefaultConfigCommand(app *kingpin.Application, g *globalFlags) {
	cmd := app.Command("default-config", "Print (or write) the default configuration.")
	write := cmd.Flag("write", "Write to the resolved config path instead of stdout.").Bool()

	full := cmd.FullCommand()
	dispatch[full] = run(g, func(a *appContext) int {
		return cmdDefaultConfig(a, *write)
	})
}

func cmdDefaultConfig(a *appContext, write bool) int {
	cfg, err := config.Unmarshal(nil)
	if err != nil {
		printErr("%v", err)
		return exitConfigError
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		printErr("%v", err)
		return exitConfigError
	}
	if !write {
		fmt.Print(string(out))
		return exitOK
	}
	path := a.configPath
	if err := ensureParentDir(path); err != nil {
		printErr("%v", err)
		return exitConfigError
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		printErr("%v", err)
		return exitConfigError
	}
	fmt.Printf("wrote default configuration to %s\n", path)
	return exitOK
}

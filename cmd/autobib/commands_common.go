package main

import (
	"fmt"
	"os"
)

// run builds an appContext from globals, invokes fn, and closes it
// afterward, translating a context build failure into an appropriate
// exit code: configuration errors exit 4, everything else exits 3.
func run(globals *globalFlags, fn func(*appContext) int) func() int {
	return func() int {
		ctx, err := newAppContext(*globals)
		if err != nil {
			fmt.Fprintf(os.Stderr, "autobib: %v\n", err)
			if _, ok := err.(*configLoadError); ok {
				return exitConfigError
			}
			return exitDatabaseError
		}
		defer ctx.Close()
		return fn(ctx)
	}
}

func printErr(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "autobib: "+format+"\n", args...)
}

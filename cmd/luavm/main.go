// Command luavm is the thin CLI entry point: run a script file, or drop
// into a line-reading REPL when none is given. Grounded on the teacher's
// root main.go/run.go (read-file, compile, run) and repl.go (REPL loop),
// collapsed into one command and pointed at the new api package instead
// of state.New()/OpenLibs().
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lollipopkit/luavm/api"
	"github.com/lollipopkit/luavm/stdlib"
)

func main() {
	flag.Parse()

	l := api.New(context.Background())
	stdlib.Open(l)

	file := flag.Arg(0)
	if file == "" {
		runREPL(l)
		return
	}

	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	prog, err := api.Parse(data, file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := l.Execute(prog); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/lollipopkit/luavm/api"
)

const banner = "luavm -- embeddable Lua 5.4 subset"

// runREPL reads one line at a time in the terminal's raw mode (so
// backspace/Ctrl-C/Ctrl-D behave without a full line-discipline), compiles
// and runs it as its own chunk, and prints any error without exiting —
// generalized from the teacher's repl.go bufio.ReadString loop, swapping
// its bare stdin reader for golang.org/x/term raw-mode editing (teacher's
// term/size.go shells out to `stty`; this uses the library directly).
func runREPL(l *api.Lua) {
	fmt.Println(banner)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		runPipedREPL(l)
		return
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		runPipedREPL(l)
		return
	}
	defer term.Restore(fd, state)

	editor := &lineEditor{}
	for i := 1; ; i++ {
		fmt.Printf("\r\n> ")
		line, eof := editor.readLine()
		if eof {
			fmt.Print("\r\n")
			return
		}
		if line == "" {
			continue
		}
		runChunk(l, line, fmt.Sprintf("=repl:%d", i))
	}
}

// runPipedREPL is the non-terminal fallback (stdin redirected from a
// file/pipe): plain line reading, no raw mode.
func runPipedREPL(l *api.Lua) {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 1024)
	i := 1
	for {
		n, err := os.Stdin.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				idx := indexByte(buf, '\n')
				if idx < 0 {
					break
				}
				line := string(buf[:idx])
				buf = buf[idx+1:]
				runChunk(l, line, fmt.Sprintf("=repl:%d", i))
				i++
			}
		}
		if err != nil {
			return
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func runChunk(l *api.Lua, line, chunkName string) {
	prog, err := api.Parse([]byte(line), chunkName)
	if err != nil {
		fmt.Printf("\r\n%s\r\n", err.Error())
		return
	}
	if err := l.Execute(prog); err != nil {
		fmt.Printf("\r\n%s\r\n", err.Error())
	}
}

const (
	keyCtrlC     = 3
	keyCtrlD     = 4
	keyBackspace = 127
	keyEnter     = 13
)

// lineEditor accumulates one line of raw-mode keystrokes, supporting
// backspace and Ctrl-C (cancel current line) / Ctrl-D (EOF on empty line).
type lineEditor struct {
	buf []byte
}

func (e *lineEditor) readLine() (line string, eof bool) {
	e.buf = e.buf[:0]
	b := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(b)
		if err != nil || n == 0 {
			return "", true
		}
		switch b[0] {
		case keyEnter, '\n':
			return string(e.buf), false
		case keyCtrlC:
			e.buf = e.buf[:0]
			return "", false
		case keyCtrlD:
			if len(e.buf) == 0 {
				return "", true
			}
		case keyBackspace, '\b':
			if len(e.buf) > 0 {
				e.buf = e.buf[:len(e.buf)-1]
				fmt.Print("\b \b")
			}
		default:
			e.buf = append(e.buf, b[0])
			fmt.Printf("%c", b[0])
		}
	}
}

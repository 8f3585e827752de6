// Command sgbdctl is a thin line-oriented REPL over the relation
// manager. It performs fixed-shape keyword matching, not grammar-driven
// SQL parsing (spec.md §1's Non-goals exclude a SQL parser from the
// core, and sgbdctl stays a thin textual wrapper, the same way the
// teacher's cmd/repl is a thin wrapper over database/sql).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/malzahar-db/sgbd/config"
	"github.com/malzahar-db/sgbd/rm"
)

var (
	flagConfig  = flag.String("config", "", "path to a sgbd.yaml config file")
	flagDataDir = flag.String("data-dir", "", "data directory (overrides config)")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "sgbdctl:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *flagDataDir != "" {
		cfg.DataDir = *flagDataDir
	}

	args := flag.Args()
	if len(args) > 0 && args[0] == "compact" {
		if err := runCompact(cfg); err != nil {
			fmt.Fprintln(os.Stderr, "sgbdctl compact:", err)
			os.Exit(1)
		}
		return
	}

	engine := rm.New(cfg.DataDir)
	if err := engine.Open(); err != nil {
		fmt.Fprintln(os.Stderr, "sgbdctl:", err)
		os.Exit(1)
	}
	defer engine.Close()

	runREPL(engine)
}

func runREPL(e *rm.Engine) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 1024*1024)

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}

	for {
		if interactive {
			fmt.Print("sgbdctl> ")
		}
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if strings.EqualFold(line, "EXIT") || strings.EqualFold(line, "QUIT") {
			return
		}

		out, err := execute(e, line)
		if err != nil {
			fmt.Println("ERR:", err)
			continue
		}
		if out != "" {
			fmt.Print(out)
		}
	}
}

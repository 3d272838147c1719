// Command weldcoach scores welding practice sessions from marker and motion
// input, stores the results, renders reports and serves session history.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/weldcoach/internal/version"
)

const defaultDBPath = "weldcoach.db"

var showVersion = flag.Bool("version", false, "Print version and exit")

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: weldcoach [-version] <command> [flags]

Commands:
  run      score a session from live, recorded or demo input
  history  list stored sessions and best scores
  migrate  manage the session database schema (up, down, version, force N)
  serve    serve stored sessions and reports over HTTP

Run "weldcoach <command> -h" for command flags.
`)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "run":
		err = runCommand(args[1:])
	case "history":
		err = historyCommand(args[1:], os.Stdout)
	case "migrate":
		err = migrateCommand(args[1:], os.Stdout)
	case "serve":
		err = serveCommand(args[1:])
	default:
		usage()
		log.Fatalf("unknown command %q", args[0])
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

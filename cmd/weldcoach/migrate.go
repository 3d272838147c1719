package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/weldcoach/internal/db"
)

func migrateCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDBPath, "Session database path")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: weldcoach migrate [-db path] up|down|version|force N")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing migrate action")
	}

	store, err := db.OpenUnmigrated(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	switch action := fs.Arg(0); action {
	case "up":
		if err := store.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := store.MigrateDown(); err != nil {
			return err
		}
	case "version":
	case "force":
		if fs.NArg() < 2 {
			return fmt.Errorf("force needs a version")
		}
		v, err := strconv.Atoi(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", fs.Arg(1), err)
		}
		if err := store.MigrateForce(v); err != nil {
			return err
		}
	default:
		fs.Usage()
		return fmt.Errorf("unknown migrate action %q", action)
	}

	version, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := db.LatestMigration()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d of %d", version, latest)
	if dirty {
		fmt.Fprint(out, " (dirty)")
	}
	fmt.Fprintln(out)
	return nil
}

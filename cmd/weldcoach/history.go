package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/weldcoach/internal/db"
	"github.com/banshee-data/weldcoach/internal/technique"
)

func historyCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDBPath, "Session database path")
	limit := fs.Int("limit", 10, "Number of recent sessions to list (0 lists all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := db.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	recent, err := store.RecentSessions(*limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPLETED\tTECHNIQUE\tSCORE\tGRADE\tDURATION\tSAMPLES\tID")
	for _, r := range recent {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			r.CompletedAt.Local().Format("2006-01-02 15:04"), r.Technique, r.Score, r.Grade,
			r.Duration.Round(time.Second), r.Samples, r.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Fprintln(out, "no sessions recorded")
		return nil
	}

	stats, err := store.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TECHNIQUE\tSESSIONS\tBEST\tMEAN\tBEST SESSION")
	for _, t := range technique.All {
		best, err := store.BestScore(t)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		for _, st := range stats {
			if st.Technique == t {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%s\n", t, st.Sessions, st.BestScore, st.MeanScore, best.ID)
			}
		}
	}
	return tw.Flush()
}

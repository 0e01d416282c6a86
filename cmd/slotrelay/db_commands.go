package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/slotrelay/service/db"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

func jqFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "jq",
		Usage: "jq expression each row must satisfy (repeatable, e.g. '.counts.timed_out > 0')",
	}
}

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:    "runs",
		Usage:   "List stored bulk runs, most recent first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"e"},
				Usage:   "Filter by endpoint name",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of runs",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many runs",
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			codes, err := compileJQFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			runs, err := store.ListRuns(context.Background(), db.ListRunsParams{
				Endpoint: c.String("endpoint"),
				Limit:    int32(c.Int("limit")),
				Offset:   int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if runs, err = filterJQ(runs, codes); err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tENDPOINT\tSTARTED\tSLOT SENT\tSENT\tCONFIRMED\tTIMED OUT\tFAILED\tPOLL")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					r.RunID,
					r.Endpoint,
					formatTime(r.StartedAt),
					r.SlotSent,
					r.Counts.Sent,
					r.Counts.Confirmed,
					r.Counts.TimedOut,
					r.Counts.Failed,
					ms(r.PollElapsed),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d runs\n", len(runs))
			return nil
		},
	}
}

func getRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Show a stored bulk run with per-transaction results",
		Aliases:   []string{"get"},
		ArgsUsage: "<run-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: run id")
			}
			runID, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid run id: %w", err)
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			report, err := store.GetRun(context.Background(), runID)
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("run %s not found", runID)
			}
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(report)
			}
			printBulkReport(report)
			return nil
		},
	}
}

func listComparisonsCommand() *cli.Command {
	return &cli.Command{
		Name:    "comparisons",
		Usage:   "List stored comparison rounds, most recent first",
		Aliases: []string{"cmp"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Only rounds from this comparison run",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of rounds",
				Value:   50,
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			codes, err := compileJQFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			params := db.ListComparisonsParams{Limit: int32(c.Int("limit"))}
			if s := c.String("run-id"); s != "" {
				runID, err := uuid.Parse(s)
				if err != nil {
					return fmt.Errorf("invalid run id: %w", err)
				}
				params.RunID = &runID
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			results, err := store.ListComparisons(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to list comparisons: %w", err)
			}

			if results, err = filterJQ(results, codes); err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(results)
			}
			printComparisons(results)
			return nil
		},
	}
}

func pruneRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete bulk runs and their results older than a retention window",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Retention window",
				Value: 30 * 24 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			olderThan := c.Duration("older-than")
			if olderThan <= 0 {
				return fmt.Errorf("older-than must be positive")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			cutoff := time.Now().Add(-olderThan)
			deleted, err := store.DeleteRunsOlderThan(context.Background(), cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune runs: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]interface{}{
					"cutoff":  cutoff,
					"deleted": deleted,
				})
			}
			fmt.Printf("Deleted %d runs older than %s\n", deleted, cutoff.Format(time.RFC3339))
			return nil
		},
	}
}

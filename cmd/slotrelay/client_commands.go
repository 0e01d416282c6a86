package main

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/slotrelay/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the slotrelay server",
		Subcommands: []*cli.Command{
			remoteStartBulkCommand(),
			remoteStartCompareCommand(),
			remoteStatusCommand(),
			remoteRunsCommand(),
		},
	}
}

func newHTTPClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), &http.Client{Timeout: 30 * time.Second}, cliLogger(c))
}

func remoteStartBulkCommand() *cli.Command {
	return &cli.Command{
		Name:  "start-bulk",
		Usage: "Ask the server to start a bulk bench workflow",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "endpoint",
				Aliases:  []string{"e"},
				Usage:    "Endpoint name",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "tx-count",
				Aliases: []string{"n"},
				Usage:   "Transactions per run",
				Value:   10,
			},
			&cli.IntFlag{
				Name:  "runs",
				Usage: "Number of runs",
				Value: 1,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Pause between runs",
			},
		},
		Action: func(c *cli.Context) error {
			req := client.BulkBenchRequest{
				Endpoint: c.String("endpoint"),
				TxCount:  c.Int("tx-count"),
				Runs:     c.Int("runs"),
			}
			if c.IsSet("interval") {
				req.Interval = c.Duration("interval").String()
			}

			started, err := newHTTPClient(c).StartBulkBench(c.Context, req)
			if err != nil {
				return err
			}
			return printRemoteStarted(c, started)
		},
	}
}

func remoteStartCompareCommand() *cli.Command {
	return &cli.Command{
		Name:  "start-compare",
		Usage: "Ask the server to start a comparison workflow",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "endpoint-a",
				Aliases:  []string{"a"},
				Usage:    "First endpoint name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "endpoint-b",
				Aliases:  []string{"b"},
				Usage:    "Second endpoint name",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "rounds",
				Aliases: []string{"r"},
				Usage:   "Number of rounds",
				Value:   10,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Pause between rounds",
			},
		},
		Action: func(c *cli.Context) error {
			req := client.ComparisonRequest{
				EndpointA: c.String("endpoint-a"),
				EndpointB: c.String("endpoint-b"),
				Rounds:    c.Int("rounds"),
			}
			if c.IsSet("interval") {
				req.Interval = c.Duration("interval").String()
			}

			started, err := newHTTPClient(c).StartComparison(c.Context, req)
			if err != nil {
				return err
			}
			return printRemoteStarted(c, started)
		},
	}
}

func remoteStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Get a workflow's status from the server",
		ArgsUsage: "<workflow-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow id")
			}

			status, err := newHTTPClient(c).GetWorkflowStatus(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(status)
			}
			fmt.Printf("Workflow ID: %s\n", status.WorkflowID)
			fmt.Printf("Run ID:      %s\n", status.RunID)
			fmt.Printf("Type:        %s\n", status.Type)
			fmt.Printf("Status:      %s\n", status.Status)
			fmt.Printf("Started:     %s\n", formatTime(status.StartTime))
			if status.CloseTime != nil {
				fmt.Printf("Closed:      %s\n", formatTime(*status.CloseTime))
			}
			return nil
		},
	}
}

func remoteRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List bulk runs from the server",
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
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			runs, err := newHTTPClient(c).ListRuns(c.Context, client.ListRunsOptions{
				Endpoint: c.String("endpoint"),
				Limit:    c.Int("limit"),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tENDPOINT\tSTARTED\tSENT\tCONFIRMED\tTIMED OUT\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					r.RunID, r.Endpoint, formatTime(r.StartedAt),
					r.Counts.Sent, r.Counts.Confirmed, r.Counts.TimedOut, r.Counts.Failed)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d runs\n", len(runs))
			return nil
		},
	}
}

func printRemoteStarted(c *cli.Context, started *client.WorkflowStarted) error {
	if c.Bool("json") {
		return outputJSON(started)
	}
	fmt.Printf("✓ Started workflow %s (run %s)\n", started.WorkflowID, started.RunID)
	fmt.Printf("  Status: %s%s\n", c.String("server-url"), started.StatusURL)
	return nil
}

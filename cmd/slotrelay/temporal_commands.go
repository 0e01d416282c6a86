package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/slotrelay/service/temporal"
	"github.com/urfave/cli/v2"
)

func startBulkWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:  "start-bulk",
		Usage: "Start a BulkBenchWorkflow on the worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "endpoint",
				Aliases:  []string{"e"},
				Usage:    "Endpoint name as configured on the worker",
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
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Wait for the workflow to finish and print its result",
			},
		},
		Action: func(c *cli.Context) error {
			input := temporal.BulkBenchWorkflowInput{
				Endpoint: c.String("endpoint"),
				TxCount:  c.Int("tx-count"),
				Runs:     c.Int("runs"),
				Interval: c.Duration("interval"),
			}
			if input.TxCount < 1 || input.Runs < 1 {
				return fmt.Errorf("tx-count and runs must be at least 1")
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := context.Background()
			workflowID, runID, err := tc.StartBulkBench(ctx, input)
			if err != nil {
				return err
			}

			if !c.Bool("wait") {
				return printStarted(c, workflowID, runID)
			}

			var result temporal.BulkBenchWorkflowResult
			if err := tc.Await(ctx, "BulkBenchWorkflow", workflowID, runID, &result); err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(result)
			}
			fmt.Printf("Workflow:   %s\n", workflowID)
			fmt.Printf("Endpoint:   %s\n", result.Endpoint)
			fmt.Printf("Runs:       %d (%d failed)\n", len(result.Runs), result.FailedRuns)
			fmt.Printf("Sent:       %d\n", result.Totals.Sent)
			fmt.Printf("Confirmed:  %d\n", result.Totals.Confirmed)
			fmt.Printf("Timed Out:  %d\n", result.Totals.TimedOut)
			fmt.Printf("Failed:     %d\n", result.Totals.Failed)
			for _, e := range result.Errors {
				fmt.Printf("Error:      %s\n", e)
			}
			return nil
		},
	}
}

func startComparisonWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:  "start-compare",
		Usage: "Start a ComparisonWorkflow on the worker",
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
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Wait for the workflow to finish and print its result",
			},
		},
		Action: func(c *cli.Context) error {
			input := temporal.ComparisonWorkflowInput{
				EndpointA: c.String("endpoint-a"),
				EndpointB: c.String("endpoint-b"),
				Rounds:    c.Int("rounds"),
				Interval:  c.Duration("interval"),
			}
			if input.EndpointA == input.EndpointB {
				return fmt.Errorf("endpoint-a and endpoint-b must be different")
			}
			if input.Rounds < 1 {
				return fmt.Errorf("rounds must be at least 1")
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := context.Background()
			workflowID, runID, err := tc.StartComparison(ctx, input)
			if err != nil {
				return err
			}

			if !c.Bool("wait") {
				return printStarted(c, workflowID, runID)
			}

			var result temporal.ComparisonWorkflowResult
			if err := tc.Await(ctx, "ComparisonWorkflow", workflowID, runID, &result); err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(result)
			}
			fmt.Printf("Workflow:  %s\n", workflowID)
			fmt.Printf("Run ID:    %s\n", result.RunID)
			fmt.Printf("Rounds:    %d (%d failed)\n", len(result.Rounds), result.FailedRounds)
			fmt.Printf("%-9s  %d\n", input.EndpointA+":", result.WinsA)
			fmt.Printf("%-9s  %d\n", input.EndpointB+":", result.WinsB)
			fmt.Printf("Ties:      %d\n", result.Ties)
			fmt.Printf("No Result: %d\n", result.NoResult)
			return nil
		},
	}
}

func scheduleBulkCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule-bulk",
		Usage: "Create a schedule that runs a bulk bench against an endpoint periodically",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "endpoint",
				Aliases:  []string{"e"},
				Usage:    "Endpoint name as configured on the worker",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "tx-count",
				Aliases: []string{"n"},
				Usage:   "Transactions per run",
				Value:   10,
			},
			&cli.DurationFlag{
				Name:  "every",
				Usage: "Schedule interval",
				Value: time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			every := c.Duration("every")
			if every < time.Minute {
				return fmt.Errorf("every must be at least 1m")
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			id, err := tc.CreateBulkBenchSchedule(context.Background(), temporal.BulkBenchWorkflowInput{
				Endpoint: c.String("endpoint"),
				TxCount:  c.Int("tx-count"),
				Runs:     1,
			}, every)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{"schedule_id": id, "every": every.String()})
			}
			fmt.Printf("✓ Created schedule %s (every %s)\n", id, every)
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Delete the bulk bench schedule for an endpoint",
		ArgsUsage: "<endpoint>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: endpoint name")
			}
			endpoint := c.Args().First()

			if !c.Bool("force") {
				fmt.Printf("Delete the bulk bench schedule for %s? [y/N]: ", endpoint)
				var response string
				fmt.Scanln(&response)
				if response != "y" && response != "Y" {
					fmt.Println("Cancelled")
					return nil
				}
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteBulkBenchSchedule(context.Background(), endpoint); err != nil {
				return err
			}
			fmt.Printf("✓ Deleted schedule for %s\n", endpoint)
			return nil
		},
	}
}

func workflowStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Describe a bench workflow execution",
		ArgsUsage: "<workflow-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow id")
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			status, err := tc.DescribeWorkflow(context.Background(), c.Args().First())
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

func printStarted(c *cli.Context, workflowID, runID string) error {
	if c.Bool("json") {
		return outputJSON(map[string]string{"workflow_id": workflowID, "run_id": runID})
	}
	fmt.Printf("✓ Started workflow %s (run %s)\n", workflowID, runID)
	return nil
}

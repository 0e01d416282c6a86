package main

import (
	"fmt"
	"log"
	"os"

	"github.com/brojonat/slotrelay/service/config"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "slotrelay",
		Usage: "Solana RPC relay benchmarking CLI",
		Description: `A command-line tool for benchmarking how quickly Solana RPC endpoints land transactions.

Run bulk send-and-confirm rounds and head-to-head slot races locally, start them
as Temporal workflows, inspect stored results and stream live stats.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Before: func(c *cli.Context) error {
			return config.LoadDotEnv(c.StringSlice("env-file")...)
		},
		Commands: []*cli.Command{
			// Local benchmark commands
			benchCommands(),
			{
				Name:  "slot",
				Usage: "Slot timing commands",
				Subcommands: []*cli.Command{
					alignCommand(),
				},
			},
			{
				Name:  "latency",
				Usage: "Endpoint latency commands",
				Subcommands: []*cli.Command{
					probeCommand(),
				},
			},
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					listRunsCommand(),
					getRunCommand(),
					listComparisonsCommand(),
					pruneRunsCommand(),
				},
			},
			// Temporal workflow and schedule commands
			{
				Name:  "temporal",
				Usage: "Temporal workflow and schedule commands",
				Subcommands: []*cli.Command{
					startBulkWorkflowCommand(),
					startComparisonWorkflowCommand(),
					scheduleBulkCommand(),
					deleteScheduleCommand(),
					workflowStatusCommand(),
				},
			},
			// NATS stats streaming commands
			{
				Name:  "nats",
				Usage: "NATS stats streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			// SSE streaming commands
			sseCommands(),
			// Client commands (HTTP API)
			clientCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files to load before running (default: .env)",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "slotrelay-bench",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "slotrelay server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "warn",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

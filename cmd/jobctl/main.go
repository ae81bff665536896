package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "jobctl:", err)
		os.Exit(1)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "dotenv file to load before reading the environment",
		Value: ".env",
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "jobctl",
		Usage: "inspect and maintain the fetchd job store",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list job ids with their status",
				Flags:  []cli.Flag{envFlag()},
				Action: listAction,
			},
			{
				Name:  "show",
				Usage: "print one job record as JSON",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "job id",
						Required: true,
					},
				},
				Action: showAction,
			},
			{
				Name:   "sweep",
				Usage:  "run a single reclamation pass and print the report",
				Flags:  []cli.Flag{envFlag()},
				Action: sweepAction,
			},
			{
				Name:   "migrate",
				Usage:  "create the postgres schema for JOB_STORE=postgres",
				Flags:  []cli.Flag{envFlag()},
				Action: migrateAction,
			},
		},
	}
}

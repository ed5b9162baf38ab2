package main

import (
	"fmt"
	"log"
	"os"

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
		Name:  "mintify",
		Usage: "Create, mint and transfer SPL tokens through a mintify server",
		Description: `A command-line client for the mintify server.

Token operations block until the transaction is confirmed on chain.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			{
				Name:  "token",
				Usage: "Token operations",
				Subcommands: []*cli.Command{
					createTokenCommand(),
					mintTokenCommand(),
					transferTokenCommand(),
					historyCommand(),
					holdingsCommand(),
				},
			},
			statusCommand(),
			streamCommand(),
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "mintify server URL",
				EnvVars: []string{"MINTIFY_SERVER"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the JSON output (implies --json)",
			},
		},
	}
}

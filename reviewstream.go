package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/reviewstream/cmd"
)

// Version information (set by build-time ldflags)
var (
	version   = "development"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cmd.Version = version
	cmd.BuildTime = buildTime
	cmd.GitCommit = gitCommit

	app := &cli.App{
		Name:    "reviewstream",
		Usage:   "AI-powered code review service for GitHub and GitLab",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.ReviewCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

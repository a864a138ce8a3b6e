package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/jaywantadh/TeleVault/pkg/env"
	"github.com/jaywantadh/TeleVault/pkg/logging"
)

var version = "dev"

func main() {
	envErr := env.LoadEnv()
	logging.InitLogger(env.GetBool("TELEVAULT_DEBUG", false))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "televault",
		Usage:   "Store large files in a Telegram channel as ordered chunks",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config",
				Usage:   "directory containing config.yaml",
				EnvVars: []string{"TELEVAULT_CONFIG_DIR"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logging.InitLogger(true)
			}
			if envErr != nil {
				logging.Log.WithError(envErr).Debug("⚠️  No .env file found, using system envs")
			}
			return nil
		},
		Commands: []*cli.Command{
			uploadCommand(),
			downloadCommand(),
			listCommand(),
			showCommand(),
			deleteCommand(),
			serveCommand(),
			checkCommand(),
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(c *cli.Context) error {
					fmt.Println(c.App.Name, c.App.Version)
					return nil
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

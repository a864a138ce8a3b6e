package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/jaywantadh/TeleVault/internal/api"
	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/pkg/httpserver"
	"github.com/jaywantadh/TeleVault/pkg/logging"
)

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Aliases:   []string{"u"},
		Usage:     "Upload a file (or the contents of a URL) and store its manifest",
		ArgsUsage: "<file> | --url <http(s) url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "caption", Usage: "caption attached to the first chunk"},
			&cli.StringFlag{Name: "manifest-out", Usage: "also write the manifest as JSON to this path"},
			&cli.StringFlag{Name: "url", Usage: "fetch the file from this http(s) URL"},
			&cli.StringFlag{Name: "name", Usage: "file name to store a --url upload under"},
		},
		Action: func(c *cli.Context) error {
			source := c.String("url")
			switch {
			case source == "" && c.NArg() != 1:
				return cli.Exit("upload takes exactly one file", 2)
			case source != "" && c.NArg() != 0:
				return cli.Exit("upload --url takes no file argument", 2)
			case source == "" && c.IsSet("name"):
				return cli.Exit("--name only applies to --url uploads", 2)
			}
			rt, err := openSession(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			var m *metadata.TransferManifest
			if source != "" {
				m, err = rt.svc.ArchiveURL(c.Context, source, c.String("name"), c.String("caption"))
			} else {
				m, err = rt.svc.Archive(c.Context, c.Args().First(), c.String("caption"))
			}
			if err != nil {
				return err
			}
			if out := c.String("manifest-out"); out != "" {
				data, err := json.MarshalIndent(m, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0644); err != nil {
					return fmt.Errorf("failed to write manifest: %w", err)
				}
			}
			fmt.Printf("✅ %s uploaded as %s (%d chunks, %s)\n", m.OriginalFilename, m.ID, m.Chunks, humanize.Bytes(uint64(m.OriginalSize)))
			return nil
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Aliases:   []string{"d"},
		Usage:     "Restore a file by manifest id or from a manifest file",
		ArgsUsage: "<id> <output> | --manifest <file.json> <output>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "manifest", Usage: "read the manifest from a JSON file instead of the store"},
		},
		Action: func(c *cli.Context) error {
			rt, err := openSession(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			var out string
			if path := c.String("manifest"); path != "" {
				if c.NArg() != 1 {
					return cli.Exit("download --manifest takes exactly one output path", 2)
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read manifest: %w", err)
				}
				m, err := metadata.ParseManifest(data)
				if err != nil {
					return err
				}
				out, err = rt.svc.RestoreManifest(c.Context, m, c.Args().First())
				if err != nil {
					return err
				}
			} else {
				if c.NArg() != 2 {
					return cli.Exit("download takes a manifest id and an output path", 2)
				}
				out, err = rt.svc.Restore(c.Context, c.Args().Get(0), c.Args().Get(1))
				if err != nil {
					return err
				}
			}
			fmt.Printf("✅ restored to %s\n", out)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List stored manifests",
		Action: func(c *cli.Context) error {
			rt, err := openSession(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			list, err := rt.svc.List()
			if err != nil {
				return err
			}
			for _, m := range list {
				fmt.Printf("%s  %-40s %10s  %3d chunks\n", m.ID, m.OriginalFilename, humanize.Bytes(uint64(m.OriginalSize)), m.Chunks)
			}
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a manifest as JSON",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			rt, err := openSession(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			m, err := rt.svc.Get(c.Args().First())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Forget a manifest (chunks stay in the channel)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			rt, err := openSession(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.svc.Delete(c.Args().First()); err != nil {
				return err
			}
			fmt.Println("🗑️  manifest deleted")
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "override server.port"},
		},
		Action: func(c *cli.Context) error {
			rt, err := openSession(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			port := rt.cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			handler := api.NewServer(rt.svc, logging.Log).Router()
			return httpserver.New(port, handler, logging.Log).Run(c.Context)
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify the bot token against the Bot API",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			client, err := newTelegramClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			me, err := client.GetMe(c.Context)
			if err != nil {
				return err
			}
			fmt.Printf("✅ authenticated as @%s (id %d)\n", me.Username, me.ID)
			return nil
		},
	}
}

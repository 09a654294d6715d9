package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mocsync/internal"
	pkgconfig "github.com/starford/mocsync/pkg/config"
)

var version = "dev"

// loadConfig reads the config file, applies command-line overrides, and
// validates the result. The vault path comes from the positional argument,
// then --vault (or OBSIDIAN_VAULT), then the config file.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Overlay(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := cmd.String("vault"); v != "" {
		cfg.Vault.Path = v
	}
	if v := cmd.Args().First(); v != "" {
		cfg.Vault.Path = v
	}
	if cmd.Bool("strict") {
		cfg.MOC.Strict = true
	}

	if err := pkgconfig.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunScan(ctx, os.Stdout, cmd.Bool("json"), internal.WithConfig(cfg))
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file",
			DefaultText: "config/config.yaml",
			Value:       "config/config.yaml",
			Sources:     cli.EnvVars("APP_CONFIG_FILE"),
		},
		&cli.StringFlag{
			Name:    "vault",
			Usage:   "Path to the Obsidian vault to watch",
			Sources: cli.EnvVars("OBSIDIAN_VAULT"),
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Only treat \"<prefix> - MOC\" and \"((<prefix> - MOC))\" names as index notes",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:      "mocsync",
		Usage:     "Keep Obsidian index notes (MOCs) linked to the notes that share their prefix",
		Version:   version,
		ArgsUsage: "[vault]",
		Action:    run,
		Flags:     commonFlags(),
		Commands: []*cli.Command{
			{
				Name:      "scan",
				Usage:     "Scan the vault once and print the prefix to index note registry",
				ArgsUsage: "[vault]",
				Action:    scan,
				Flags: append(commonFlags(), &cli.BoolFlag{
					Name:  "json",
					Usage: "Print the registry as JSON",
				}),
			},
			{
				Name:      "mcp",
				Usage:     "Serve registry and sync tools over MCP on stdin/stdout",
				ArgsUsage: "[vault]",
				Action:    serveMCP,
				Flags:     commonFlags(),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

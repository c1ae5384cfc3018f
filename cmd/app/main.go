package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/dealsync/internal"
	pkgconfig "github.com/starford/dealsync/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) && !cmd.IsSet("config") {
		// Run on defaults when the default config file is absent.
		return cfg, cfg.Validate()
	}
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "dealsync",
		Usage: "Reconcile versioned deal workbooks across tiers and keep the master ledger in sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "Extract every deal document and rebuild the master ledger",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "retain",
						Usage: "Highest versions per deal kept in the record tables (0 uses config)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Process at most N documents (0 means all)",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					retain := int(cmd.Int("retain"))
					if retain <= 0 {
						retain = cfg.Retention.Retain
					}
					return internal.RunSync(cfg, retain, int(cmd.Int("limit")))
				},
			},
			{
				Name:  "reconcile",
				Usage: "Move outdated deal versions between the Current, Previous, and Archive tiers",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "keep",
						Usage: "Highest versions per deal kept in Current (0 uses config)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Log planned moves without applying them",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					keep := int(cmd.Int("keep"))
					if keep <= 0 {
						keep = cfg.Retention.Keep
					}
					return internal.RunReconcile(cfg, keep, cmd.Bool("dry-run"))
				},
			},
			{
				Name:  "audit",
				Usage: "Cross-check tiers against the ledger and write the dashboard report",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.RunAudit(cfg)
				},
			},
			{
				Name:  "serve",
				Usage: "Watch the tiers, re-sync on changes, and serve the status API",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
						return fmt.Errorf("app run error: %w", err)
					}
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

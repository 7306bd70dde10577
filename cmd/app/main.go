package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tessera/internal"
	"github.com/starford/tessera/internal/workspace"
	pkgconfig "github.com/starford/tessera/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, string, error) {
	configPath := cmd.String("config")
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, configPath, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
	if cmd.Bool("watch-config") {
		opts = append(opts, internal.WithConfigPath(configPath))
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func previewLayout(_ context.Context, cmd *cli.Command) error {
	return renderLayout(os.Stdout,
		int(cmd.Int("tiles")),
		cmd.Float("width"),
		cmd.Float("height"),
		cmd.Float("gap"),
	)
}

func main() {
	defaults := workspace.DefaultSettings()

	cmd := &cli.Command{
		Name:    "tessera",
		Usage:   "Tiling workspace manager for notes, journal entries and quick notes",
		Version: version,
		Action:  serve,
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
				Name:   "serve",
				Usage:  "Run the HTTP API and event stream",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "watch-config",
						Usage:   "Reload the tiles section when the config file changes",
						Value:   true,
						Sources: cli.EnvVars("APP_WATCH_CONFIG"),
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve workspace tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:   "layout",
				Usage:  "Print the auto-tile rectangles for a tile count",
				Action: previewLayout,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "tiles", Aliases: []string{"n"}, Usage: "Number of tiles", Value: 4},
					&cli.FloatFlag{Name: "width", Usage: "Canvas width", Value: defaults.CanvasWidth},
					&cli.FloatFlag{Name: "height", Usage: "Canvas height", Value: defaults.CanvasHeight},
					&cli.FloatFlag{Name: "gap", Usage: "Gap between tiles", Value: defaults.Gap},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

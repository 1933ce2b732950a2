package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/wstore/internal"
	pkgconfig "github.com/starford/wstore/pkg/config"
)

var version = "dev"

// loadConfig reads the config file, if present, and applies flag overrides
// before validation.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg, func(c *internal.Config) {
		if v := cmd.String("storage-dir"); v != "" {
			c.Storage.Path = v
		}
		if v := cmd.String("username"); v != "" {
			c.Auth.Username = v
		}
		if v := cmd.String("password"); v != "" {
			c.Auth.Password = v
			c.Auth.PasswordHash = ""
		}
		if cmd.IsSet("port") {
			c.App.HTTP.Port = int(cmd.Int("port"))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Debug("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "wstore-server",
		Usage:   "Path-addressed file store served over HTTP with Basic-auth gated writes",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml or .toml)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "storage-dir",
				Usage:   "Directory holding stored files",
				Sources: cli.EnvVars("STORAGE_DIR"),
			},
			&cli.StringFlag{
				Name:    "username",
				Usage:   "Username required for writes",
				Sources: cli.EnvVars("AUTH_USERNAME"),
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Password required for writes",
				Sources: cli.EnvVars("AUTH_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP listen port",
				Sources: cli.EnvVars("PORT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the storage tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/engelke/fashion-hack-2024/internal/app"
	"github.com/engelke/fashion-hack-2024/internal/config"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/service"
	"github.com/engelke/fashion-hack-2024/internal/source/localdir"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		logger.GetDefault().WithError(err).Error("Ingest command failed")
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newApp(out io.Writer) *cli.App {
	limitFlag := &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"n"},
		Usage:   "Maximum number of items to process (0 = all)",
	}

	return &cli.App{
		Name:      "ingest",
		Usage:     "Store clothing images and extract their attributes",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default ./configs/config.yaml)",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "files",
				Usage:  "Ingest every image file under a directory",
				Action: filesCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Aliases:  []string{"d"},
						Usage:    "Directory containing images",
						Required: true,
					},
					&cli.BoolFlag{
						Name:    "recursive",
						Aliases: []string{"r"},
						Usage:   "Walk subdirectories",
					},
					limitFlag,
				},
			},
			{
				Name:   "retry",
				Usage:  "Re-run analysis for images whose latest record failed",
				Action: retryCommand,
				Flags:  []cli.Flag{limitFlag},
			},
			{
				Name:   "analyze",
				Usage:  "Analyze one stored image by id",
				Action: analyzeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Image id",
						Required: true,
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Add complete records to the search index",
				Action: reindexCommand,
				Flags:  []cli.Flag{limitFlag},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	cfg := logger.LoadFromEnv()
	cfg.ServiceName = "fashion-hack-ingest"
	if c.IsSet("log-level") || os.Getenv("LOG_LEVEL") == "" {
		cfg.Level = c.String("log-level")
	}
	logger.SetDefaultLogger(logger.New(cfg))
	return nil
}

// withApp loads config, builds the components and runs fn.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.New(c.Context, cfg, logger.GetDefault())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(c.Context, a)
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func filesCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		src := localdir.NewAdapter(c.String("dir"), c.Bool("recursive"))
		stats, err := a.Ingest.IngestFromSource(ctx, src, c.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(c, stats)
	})
}

func retryCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		stats, err := a.Ingest.RetryFailed(ctx, c.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(c, stats)
	})
}

func analyzeCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		result, err := a.Ingest.RetryAnalysis(ctx, c.String("id"))
		if err != nil {
			return err
		}
		return printJSON(c, analyzeOutput(result))
	})
}

type analyzeResult struct {
	*service.IngestResult
	Error string `json:"error,omitempty"`
}

func analyzeOutput(r *service.IngestResult) analyzeResult {
	out := analyzeResult{IngestResult: r}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

func reindexCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		stats, err := a.Ingest.Reindex(ctx, c.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(c, stats)
	})
}

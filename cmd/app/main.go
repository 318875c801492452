package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/perthro/internal"
	"github.com/starford/perthro/internal/engine"
	"github.com/starford/perthro/internal/history"
	"github.com/starford/perthro/internal/mcpserver"
	"github.com/starford/perthro/internal/registry"
	"github.com/starford/perthro/internal/version"
	"github.com/starford/perthro/internal/watch"
	pkgconfig "github.com/starford/perthro/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err == nil {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// validateParams builds engine parameters from the validate/watch flags.
func validateParams(cmd *cli.Command) (engine.Params, error) {
	p := engine.Params{
		CurrentRoot:  cmd.String("root"),
		PreviousRoot: cmd.String("previous"),
	}
	var err error
	if raw := cmd.String("previous-version"); raw != "" {
		if p.PreviousVersion, err = version.Parse(raw); err != nil {
			return p, err
		}
	}
	if raw := cmd.String("deck-version"); raw != "" {
		if p.CurrentVersion, err = version.Parse(raw); err != nil {
			return p, err
		}
	}
	return p, nil
}

func buildEngine(cmd *cli.Command) *engine.Engine {
	opts := []engine.Option{}
	if topics := cmd.StringSlice("topics"); len(topics) > 0 {
		opts = append(opts, engine.WithTopicProvider(registry.Static{Topics: topics}))
	}
	return engine.New(opts...)
}

func validate(ctx context.Context, cmd *cli.Command) error {
	p, err := validateParams(cmd)
	if err != nil {
		return err
	}

	res, err := buildEngine(cmd).Validate(ctx, p)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		for _, v := range res.Report.Violations {
			fmt.Println(v)
		}
		fmt.Printf("required bump: %s\n", res.Report.RequiredBump)
		if res.Report.DeclaredBump != "" {
			fmt.Printf("declared bump: %s\n", res.Report.DeclaredBump)
		}
	}

	if !res.Pass() {
		return cli.Exit("conformance failed", 1)
	}
	return nil
}

func watchCmd(ctx context.Context, cmd *cli.Command) error {
	p, err := validateParams(cmd)
	if err != nil {
		return err
	}

	wc := watch.Config{
		Engine: buildEngine(cmd),
		Params: p,
	}
	if dbPath := cmd.String("history"); dbPath != "" {
		db, err := history.Open(dbPath)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		defer db.Close()
		wc.Store = db
	}
	return watch.Run(ctx, wc)
}

func mcpCmd(ctx context.Context, cmd *cli.Command) error {
	var db history.RunStore
	if dbPath := cmd.String("history"); dbPath != "" {
		d, err := history.Open(dbPath)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		defer d.Close()
		db = d
	}
	return mcpserver.New(engine.New(), db).ServeStdio()
}

func runsCmd(ctx context.Context, cmd *cli.Command) error {
	db, err := history.Open(cmd.String("history"))
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer db.Close()

	runs, total, err := db.ListRuns(int(cmd.Int("limit")), int(cmd.Int("offset")))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"runs": runs, "total": total})
}

func deckFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "root",
			Aliases:  []string{"r"},
			Usage:    "Path to the deck root (folder ending in .deck)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "previous",
			Usage: "Path to the previous revision's deck root",
		},
		&cli.StringFlag{
			Name:  "previous-version",
			Usage: "Declared MAJOR.MINOR of the previous revision",
		},
		&cli.StringFlag{
			Name:  "deck-version",
			Usage: "Declared MAJOR.MINOR of this revision",
		},
		&cli.StringSliceFlag{
			Name:  "topics",
			Usage: "Registered listing topics; enables the registry check",
		},
	}
}

func historyFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "history",
		Usage:    "Path to the SQLite run-history database",
		Required: required,
		Sources:  cli.EnvVars("PERTHRO_HISTORY"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "perthro",
		Usage: "Conformance engine for plain-text flashcard decks: validates layout, card grammar, revision diffs, and version bumps",
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Run one conformance pass and print the findings",
				Action: validate,
				Flags: append(deckFlags(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full result as JSON",
					},
				),
			},
			{
				Name:   "watch",
				Usage:  "Validate continuously as deck files change",
				Action: watchCmd,
				Flags:  append(deckFlags(), historyFlag(false)),
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE events, and deck watcher",
				Action: serve,
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
			},
			{
				Name:   "mcp",
				Usage:  "Serve deck tools over the Model Context Protocol on stdio",
				Action: mcpCmd,
				Flags:  []cli.Flag{historyFlag(false)},
			},
			{
				Name:   "runs",
				Usage:  "List recorded validation runs",
				Action: runsCmd,
				Flags: []cli.Flag{
					historyFlag(true),
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Page size"},
					&cli.IntFlag{Name: "offset", Usage: "Page offset"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

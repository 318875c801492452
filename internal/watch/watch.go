// Package watch re-runs the conformance engine whenever files under the
// current deck root change. Watching is tooling around the batch engine;
// the engine itself stays a pure pass over two snapshots.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/engine"
	"github.com/starford/perthro/internal/history"
	"github.com/starford/perthro/internal/sse"
)

// Config wires the watcher to its collaborators. Store and Broker are
// optional; OnResult, if set, is called after every pass.
type Config struct {
	Engine   *engine.Engine
	Params   engine.Params
	Store    history.RunStore
	Broker   *sse.Broker
	Logger   *slog.Logger
	Debounce time.Duration
	OnResult func(*engine.Result)
}

// Run validates once, then watches the current deck root and re-validates
// after each debounced burst of file changes, until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, cfg.Params.CurrentRoot); err != nil {
		return err
	}

	cfg.Logger.Info("watch: started", slog.String("root", cfg.Params.CurrentRoot))
	runPass(ctx, cfg)

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(cfg.Debounce)
			fire = timer.C
			return
		}
		timer.Reset(cfg.Debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			cfg.Logger.Info("watch: stopped")
			return nil

		case <-fire:
			runPass(ctx, cfg)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// New directories need to join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						cfg.Logger.Warn("watch: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}

			if !relevant(ev.Name) {
				continue
			}
			if cfg.Broker != nil {
				cfg.Broker.PublishDeckChanged(ev.Name)
			}
			schedule()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			cfg.Logger.Warn("watch: watcher error", slog.String("error", err.Error()))
		}
	}
}

// runPass executes one validation, records it, and broadcasts the outcome.
func runPass(ctx context.Context, cfg Config) {
	if cfg.Broker != nil {
		cfg.Broker.PublishRunStarted(cfg.Params.CurrentRoot)
	}

	res, err := cfg.Engine.Validate(ctx, cfg.Params)
	if err != nil {
		cfg.Logger.Error("watch: validation failed", slog.String("error", err.Error()))
		return
	}

	summary := sse.RunSummary{
		Root:         res.Report.Root,
		Pass:         res.Report.Pass,
		Blocking:     len(res.Report.Blocking()),
		Advisory:     len(res.Report.Advisories()),
		RequiredBump: res.Report.RequiredBump,
		DeclaredBump: res.Report.DeclaredBump,
	}

	if cfg.Store != nil {
		id, err := cfg.Store.Record(history.FromReport(res.Report, cfg.Params.PreviousRoot))
		if err != nil {
			cfg.Logger.Warn("watch: record run failed", slog.String("error", err.Error()))
		} else {
			summary.RunID = id
		}
	}

	if cfg.Broker != nil {
		cfg.Broker.PublishRunFinished(summary)
	}
	if cfg.OnResult != nil {
		cfg.OnResult(res)
	}

	cfg.Logger.Info("watch: pass complete",
		slog.Bool("pass", res.Report.Pass),
		slog.Int("blocking", summary.Blocking),
		slog.Int("advisory", summary.Advisory))
}

// relevant filters out editor temp files and anything outside the deck
// format's extensions.
func relevant(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	for _, ext := range []string{
		deck.CardExt, deck.ChangeExt, deck.TemplateExt, ".toml", ".css", ".tex",
	} {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.EqualFold(d.Name(), deck.AssetsFolder) && p != root {
			return fs.SkipDir
		}
		return w.Add(p)
	})
}

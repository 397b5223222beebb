package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrisonrobin/hubsync/pkg/auth"
	"github.com/harrisonrobin/hubsync/pkg/config"
	"github.com/harrisonrobin/hubsync/pkg/csvsource"
	"github.com/harrisonrobin/hubsync/pkg/drift"
	"github.com/harrisonrobin/hubsync/pkg/engine"
	"github.com/harrisonrobin/hubsync/pkg/index"
	"github.com/harrisonrobin/hubsync/pkg/insight"
	"github.com/harrisonrobin/hubsync/pkg/metrics"
	"github.com/harrisonrobin/hubsync/pkg/sheets"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	driftFile    = "drift.json"
	rowIndexFile = "row_index.json"
)

// app holds everything a command needs once config is loaded.
type app struct {
	cfg      *config.Config
	dir      string
	log      *slog.Logger
	engine   *engine.Engine
	registry *prometheus.Registry
	closers  []io.Closer
}

func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return nil, "", fmt.Errorf("could not find path to configuration file: %w", err)
		}
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, filepath.Dir(path), nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// newApp loads config and wires the engine to the configured task source.
// withInsight enables the Gemini summarizer when a key is available.
func newApp(ctx context.Context, withInsight bool) (*app, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	a := &app{cfg: cfg, dir: dir, log: newLogger(os.Stderr, level), registry: prometheus.NewRegistry()}
	slog.SetDefault(a.log)

	source, err := a.newSource(ctx)
	if err != nil {
		return nil, err
	}

	table, err := drift.NewTable(filepath.Join(dir, driftFile))
	if err != nil {
		a.log.Warn("failed to load drift table", "error", err)
		table = nil
	}

	opts := engine.Options{
		Stations:         cfg.StationList(),
		RetainStale:      cfg.RetainStale,
		FetchConcurrency: cfg.FetchConcurrency,
		FetchTimeout:     cfg.FetchTimeout.Std(),
		WriteTimeout:     cfg.WriteTimeout.Std(),
		Drift:            table,
		Metrics:          metrics.New(a.registry),
		Logger:           a.log,
	}
	if withInsight && cfg.GeminiAPIKey != "" {
		g, err := insight.NewGemini(ctx, cfg.GeminiAPIKey, cfg.InsightModel)
		if err != nil {
			a.log.Warn("insights disabled", "error", err)
		} else {
			opts.Insight = g
			a.closers = append(a.closers, g)
		}
	}
	a.engine = engine.New(source, opts)
	return a, nil
}

func (a *app) newSource(ctx context.Context) (engine.TaskSource, error) {
	switch a.cfg.Source {
	case config.SourceCSV:
		return csvsource.New(a.cfg.CSVDir, a.log), nil
	default:
		if a.cfg.SpreadsheetID == "" {
			return nil, fmt.Errorf("no spreadsheet configured, run: hubsync config set-spreadsheet <id>")
		}
		srv, err := auth.NewSheetsService(ctx, a.dir)
		if err != nil {
			return nil, err
		}
		idx, err := index.NewRowIndex(filepath.Join(a.dir, rowIndexFile))
		if err != nil {
			a.log.Warn("failed to load row index", "error", err)
			idx = nil
		}
		return sheets.NewClient(srv, a.cfg.SpreadsheetID, idx, a.log), nil
	}
}

// load runs one refresh and reports stations that could not be read.
func (a *app) load(ctx context.Context) error {
	res, err := a.engine.Refresh(ctx, engine.RefreshOptions{})
	if err != nil {
		return err
	}
	for _, st := range res.Failed {
		a.log.Warn("station unavailable", "station", st, "error", res.Errors[st])
	}
	return nil
}

func (a *app) Close() {
	a.engine.Wait()
	for _, c := range a.closers {
		c.Close()
	}
}

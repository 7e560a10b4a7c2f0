package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jugmac00/revindex/internal/config"
	"github.com/jugmac00/revindex/internal/importer"
	"github.com/jugmac00/revindex/internal/oracle"
	"github.com/jugmac00/revindex/internal/querier"
	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

var (
	configPathFlag string
	logFileFlag    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "path to revindex.toml (default ./revindex.toml)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "rotate structured logs into this file instead of stderr")
}

// newLogger builds the command's slog.Logger. With --log-file unset,
// logs go to stderr; otherwise they're rotated via lumberjack the same
// way a long-running import is expected to be operated under a
// supervisor that never truncates its own output.
func newLogger() *slog.Logger {
	var w io.Writer = os.Stderr
	if logFileFlag != "" {
		w = &lumberjack.Logger{
			Filename:   logFileFlag,
			MaxSize:    64, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

// ancestryDoc is the JSON shape read by --ancestry: {"tip": "...",
// "parents": {"rev": ["parent1", "parent2"]}}. A revision present only
// as a value, never a key, is a ghost (spec.md §6).
type ancestryDoc struct {
	Tip     types.RevID                   `json:"tip"`
	Parents map[types.RevID][]types.RevID `json:"parents"`
}

func loadOracle(path string) (*oracle.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("revindex: reading ancestry document %s: %w", path, err)
	}
	var doc ancestryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("revindex: parsing ancestry document %s: %w", path, err)
	}
	m := oracle.NewMemory(doc.Tip)
	for id, parents := range doc.Parents {
		m.AddRevision(id, parents...)
	}
	return m, nil
}

// env bundles everything a subcommand needs: the resolved config, an
// open Store, and an Importer/Querier pair wired to it. Call close when
// done.
type env struct {
	cfg     config.Resolved
	store   *store.Store
	lock    *importer.WriterLock
	imp     *importer.Importer
	oracleM *oracle.Memory
	q       *querier.Querier
}

func setupEnv(ctx context.Context, ancestryPath string) (*env, error) {
	cfg, err := config.Load(configPathFlag)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, cfg.DBPath, cfg.MaxCacheSizeBytes)
	if err != nil {
		return nil, err
	}

	o, err := loadOracle(ancestryPath)
	if err != nil {
		s.Close()
		return nil, err
	}

	lock := importer.NewWriterLock(cfg.DBPath + ".lock")
	imp := importer.New(s, lock, importer.Config{
		Incremental:       cfg.Incremental,
		Validate:          cfg.Validate,
		MaxCacheSizeBytes: cfg.MaxCacheSizeBytes,
		MainlineRangeLen:  cfg.MainlineRangeLen,
	}, newLogger())

	q := querier.New(s, imp, o, cfg.MainlineRangeLen)

	return &env{cfg: cfg, store: s, lock: lock, imp: imp, oracleM: o, q: q}, nil
}

func (e *env) close() {
	e.store.Close()
}

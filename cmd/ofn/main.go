// Package main is the ofn CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ofn/internal/blob"
	"github.com/hyperjump/ofn/internal/config"
	"github.com/hyperjump/ofn/internal/fileid"
	"github.com/hyperjump/ofn/internal/indexer"
	"github.com/hyperjump/ofn/internal/puzzle"
	"github.com/hyperjump/ofn/internal/search"
	"github.com/hyperjump/ofn/internal/storage"
	"github.com/hyperjump/ofn/internal/words"
	"github.com/hyperjump/ofn/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ofn/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config file yields the built-in defaults with an empty resolved path.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the persistent flags and the components opened for one command.
type app struct {
	configPath string
	debug      bool

	cfg        *config.Config
	logger     *zap.Logger
	components *Components
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ofn",
		Short: "ofn - find visually similar images",
		Long: `ofn indexes image files by perceptual signature and finds near-duplicates:
resized, recompressed or slightly edited copies of the same picture.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.commitCmd(),
		a.searchCmd(),
		a.processCmd(),
		a.indexCmd(),
		a.watchCmd(),
		a.statusCmd(),
		versionCmd(),
	)
	return root
}

// open loads the config, builds the logger, and initializes components.
// The caller must call close.
func (a *app) open() error {
	cfg, resolved, err := loadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	debugMode := cfg.Debug || a.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("database_path", cfg.Storage.DatabasePath),
		zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.components = components
	return nil
}

func (a *app) close() {
	if a.components != nil {
		a.components.Close()
		a.components = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// Components holds the wired store, engine, and indexer.
type Components struct {
	Store     *storage.SQLiteStore
	Extractor *puzzle.Extractor
	Splitter  *words.Splitter
	Engine    *search.Engine
	Indexer   *indexer.Indexer
}

// Close releases the store.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	blobType, err := blob.ParseType(cfg.Storage.SignatureCompression)
	if err != nil {
		return nil, err
	}
	digester, err := fileid.New(cfg.Index.Digest)
	if err != nil {
		return nil, err
	}
	extractor, err := puzzle.NewExtractor(cfg.Puzzle, logger)
	if err != nil {
		return nil, err
	}
	splitter, err := words.NewSplitter(cfg.Index.WordCount, cfg.Index.WordLength, nil)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath,
		storage.WithDriver(cfg.Storage.Driver),
		storage.WithWordSettings(cfg.Index.WordCount, cfg.Index.WordLength),
		storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	engine := search.NewEngine(store, extractor, splitter, &cfg.Search,
		search.WithLogger(logger),
		search.WithDigest(digester.Digest),
		search.WithBlobCodec(blobType))
	idx := indexer.NewIndexer(engine, indexer.WithLogger(logger))

	return &Components{
		Store:     store,
		Extractor: extractor,
		Splitter:  splitter,
		Engine:    engine,
		Indexer:   idx,
	}, nil
}

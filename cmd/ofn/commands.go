package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ofn/internal/cli"
	"github.com/hyperjump/ofn/internal/models"
	"github.com/hyperjump/ofn/internal/storage"
	"github.com/hyperjump/ofn/internal/watcher"
)

func (a *app) commitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <file>...",
		Short: "Store the signature of each image",
		Long: `Extract the signature of each image file and store it with its words.
Every call stores a new image row, even for a file committed before.
Use "ofn index" to skip files whose content is already stored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				img, err := a.components.Engine.Commit(cmd.Context(), path)
				if err != nil {
					if cmd.Context().Err() != nil {
						return err
					}
					a.logger.Error("commit failed", zap.String("path", path), zap.Error(err))
					failed++
					continue
				}
				fmt.Fprintf(out, "committed %s as image %d (%s)\n", img.Filename, img.ID, img.Ref)
			}
			return filesFailed("commit", failed, len(args))
		},
	}
}

// filesFailed reports how many of total files a command could not handle.
func filesFailed(op string, failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d of %d files failed", op, failed, total)
}

func (a *app) processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>...",
		Short: "Extract and print image signatures without storing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				v, err := a.components.Extractor.Extract(cmd.Context(), path)
				if err == nil {
					var full []byte
					if full, err = a.components.Splitter.CompressFull(v); err == nil {
						fmt.Fprintf(out, "%s\t%d\t%x\n", path, len(v), full)
						continue
					}
				}
				if cmd.Context().Err() != nil {
					return err
				}
				a.logger.Error("process failed", zap.String("path", path), zap.Error(err))
				failed++
			}
			return filesFailed("process", failed, len(args))
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	var (
		threshold     float64
		maxCandidates int
		timeout       time.Duration
		limit         int
		output        string
	)
	cmd := &cobra.Command{
		Use:   "search [flags] <file>...",
		Short: "Find stored images similar to each image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			opts := a.components.Engine.DefaultOptions()
			flags := cmd.Flags()
			if flags.Changed("threshold") {
				opts.Threshold = threshold
			}
			if flags.Changed("max-candidates") {
				opts.MaxCandidates = maxCandidates
			}
			if flags.Changed("timeout") {
				opts.Timeout = timeout
			}
			if flags.Changed("limit") {
				opts.Limit = limit
			}

			failed := 0
			for _, path := range args {
				resp, err := a.components.Engine.Search(cmd.Context(), path, opts)
				if err != nil {
					if cmd.Context().Err() != nil || errors.Is(err, models.ErrValidation) {
						return fmt.Errorf("search %s: %w", path, err)
					}
					a.logger.Error("search failed", zap.String("path", path), zap.Error(err))
					failed++
					continue
				}
				if err := cli.WriteSearchResults(cmd.OutOrStdout(), resp, format); err != nil {
					return fmt.Errorf("output failed: %w", err)
				}
			}
			return filesFailed("search", failed, len(args))
		},
	}
	f := cmd.Flags()
	f.Float64Var(&threshold, "threshold", 0, "keep matches with distance below this (default from config)")
	f.IntVar(&maxCandidates, "max-candidates", 0, "maximum candidates re-ranked per search (default from config)")
	f.DurationVar(&timeout, "timeout", 0, "re-rank deadline; partial results are returned when it passes (default from config)")
	f.IntVar(&limit, "limit", 0, "maximum matches printed per image; 0 prints all")
	f.StringVarP(&output, "output", "o", "text", "output format: text, compact (one match per line) or json")
	return cmd
}

func (a *app) indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <file-or-directory>...",
		Short: "Commit images that are not stored yet",
		Long: `Commit image files, walking directories recursively. Files whose content
digest is already stored are skipped. Directory files that cannot be decoded
are logged and counted as failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()
			out := cmd.OutOrStdout()
			exts := a.cfg.Index.Extensions
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("failed to stat path: %w", err)
				}
				if info.IsDir() {
					res, err := a.components.Indexer.IndexDirectory(cmd.Context(), path, exts)
					if err != nil {
						return fmt.Errorf("indexing %s failed: %w", path, err)
					}
					fmt.Fprintf(out, "%s: %d committed, %d skipped, %d failed\n", path, res.Committed, res.Skipped, res.Failed)
					continue
				}
				// An explicitly named file is not filtered by extension.
				committed, err := a.components.Indexer.IndexFile(cmd.Context(), path, nil)
				if err != nil {
					return fmt.Errorf("indexing %s failed: %w", path, err)
				}
				if committed {
					fmt.Fprintf(out, "%s: committed\n", path)
				} else {
					fmt.Fprintf(out, "%s: already stored\n", path)
				}
			}
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "watch [directory]...",
		Short: "Commit images as they appear in watched directories",
		Long: `Watch directories (from the arguments, or watch.directories in the config)
and commit new or rewritten images. Existing images are indexed first unless
--no-sync is given. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			dirs := args
			if len(dirs) == 0 {
				dirs = a.cfg.Watch.Directories
			}
			if len(dirs) == 0 {
				return fmt.Errorf("no directories to watch; pass them as arguments or set watch.directories")
			}
			exts := a.cfg.Index.Extensions

			if !noSync {
				for _, dir := range dirs {
					if _, err := os.Stat(dir); err != nil {
						continue
					}
					res, err := a.components.Indexer.IndexDirectory(ctx, dir, exts)
					if err != nil {
						return fmt.Errorf("sync %s failed: %w", dir, err)
					}
					a.logger.Info("watch synced directory",
						zap.String("path", dir),
						zap.Int("committed", res.Committed),
						zap.Int("skipped", res.Skipped),
						zap.Int("failed", res.Failed))
				}
			}

			w := watcher.NewWatcher(a.components.Indexer, dirs, exts, a.cfg.Watch.RecursiveOrDefault(),
				watcher.WithLogger(a.logger))
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %d directories; press Ctrl+C to stop\n", len(w.Directories()))
			<-ctx.Done()
			w.Stop()
			c := w.Counts()
			fmt.Fprintf(cmd.OutOrStdout(), "%d committed, %d skipped, %d failed\n", c.Committed, c.Skipped, c.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "do not index existing images before watching")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index counts and storage settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()
			stats, err := a.components.Engine.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			status := &cli.Status{
				DatabasePath: a.cfg.Storage.DatabasePath,
				Driver:       a.cfg.Storage.Driver,
				WordCount:    a.cfg.Index.WordCount,
				WordLength:   a.cfg.Index.WordLength,
				Stats:        stats,
			}
			if n, err := storage.DiskUsageBytes(a.cfg.Storage.DatabasePath); err == nil {
				status.DiskUsageBytes = &n
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ofn version %s\n", version)
		},
	}
}

package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/originfs/originfs/internal/devserver"
	"github.com/originfs/originfs/internal/logging"
	"github.com/originfs/originfs/pkg/originfs"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <owner> <dir>",
		Short: "Copy a local directory tree into an owner's records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logging.Sync()

			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required; the in-memory store does not outlive this command")
			}

			// Connect to PostgreSQL with retries
			var store *devserver.PostgresStore
			for i := 0; i < 15; i++ {
				store, err = devserver.NewPostgresStore(cfg.DatabaseURL)
				if err == nil {
					break
				}
				logging.Info("waiting for PostgreSQL", zap.Int("attempt", i+1), zap.Error(err))
				time.Sleep(2 * time.Second)
			}
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			n, err := seed(ctx, &devserver.LocalRemote{Store: store, Owner: args[0]}, args[1])
			if err != nil {
				return err
			}
			logging.Info("seed complete", zap.String("owner", args[0]), zap.Int("mutations", n))
			return nil
		},
	}
}

// seed mirrors the tree under root into remote and commits it as one batch.
// Files that are not valid UTF-8 are skipped.
func seed(ctx context.Context, remote originfs.Remote, root string) (int, error) {
	c := originfs.New(originfs.Config{Remote: remote})

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		target := "/" + filepath.ToSlash(rel)

		if d.IsDir() {
			return c.CreateFolder(ctx, target)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !utf8.Valid(data) {
			logging.Warn("skipping binary file", zap.String("path", path))
			return nil
		}
		logging.Debug("seeding file", zap.String("path", target), zap.Int("bytes", len(data)))
		return c.CreateFile(ctx, target, string(data))
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}

	n := c.Pending()
	if err := c.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// originfs is a command-line client for the remote record store.
//
// Every command loads the owner's path index, runs one operation and, for
// commands that change anything, commits the queued mutations before exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/originfs/originfs/internal/config"
	"github.com/originfs/originfs/internal/logging"
	"github.com/originfs/originfs/pkg/client"
	"github.com/originfs/originfs/pkg/originfs"
	"github.com/originfs/originfs/pkg/retry"
)

var (
	verbose bool
	workDir string

	// transport of the client opened by the running command, kept so a
	// failure can be reported as an unreachable store.
	transport *client.Client
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "originfs",
		Short:         "Path-based access to a remote record store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "/", "directory that relative paths are resolved against")

	rootCmd.AddCommand(
		loginCmd(),
		logoutCmd(),
		pathsCmd(),
		lsCmd(),
		catCmd(),
		writeCmd(),
		touchCmd(),
		mkdirCmd(),
		mvCmd(),
		rmCmd(),
		statCmd(),
		existsCmd(),
		idCmd(),
		pathCmd(),
	)

	err := rootCmd.ExecuteContext(ctx)
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		if unreachable() {
			fmt.Fprintln(os.Stderr, warnStyle.Render("the remote store could not be reached; check ORIGINFS_URL"))
		}
		os.Exit(1)
	}
}

// loadConfig reads the environment and sets up logging.
func loadConfig() (*config.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	if err := logging.Init(logging.Config{
		Level:      level,
		Format:     cfg.LogFormat,
		OutputPath: "stderr",
	}); err != nil {
		return nil, fmt.Errorf("logging init: %w", err)
	}
	return cfg, nil
}

// openFS builds a client from the environment and the saved token file.
func openFS() (*originfs.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	token := cfg.Token
	if token == "" {
		tf, err := client.LoadToken()
		if err != nil {
			return nil, fmt.Errorf("no credential: set ORIGINFS_TOKEN or run 'originfs login'")
		}
		if tf.IsExpired(0) {
			fmt.Fprintln(os.Stderr, warnStyle.Render("saved token has expired; run 'originfs login'"))
		}
		token = tf.Token
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts

	transport = client.New(client.Config{
		BaseURL:     cfg.URL,
		Timeout:     cfg.Timeout,
		RetryConfig: rc,
		AuthToken:   token,
	})
	return originfs.New(originfs.Config{Remote: transport}), nil
}

// unreachable reports whether the last request of the opened client failed
// before reaching the store.
func unreachable() bool {
	return transport != nil && !transport.IsOnline()
}

// resolve turns a command-line path into an absolute client path.
func resolve(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return strings.TrimSuffix(workDir, "/") + "/" + p
}

// commit flushes queued mutations and reports how many were sent.
func commit(ctx context.Context, fs *originfs.Client) error {
	n := fs.Pending()
	if n == 0 {
		return nil
	}
	start := time.Now()
	if err := fs.Commit(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, mutedStyle.Render(fmt.Sprintf("committed %d change(s) in %s", n, time.Since(start).Round(time.Millisecond))))
	return nil
}

// mutate opens a client, runs fn and commits.
func mutate(cmd *cobra.Command, fn func(ctx context.Context, fs *originfs.Client) error) error {
	fs, err := openFS()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := fn(ctx, fs); err != nil {
		return err
	}
	return commit(ctx, fs)
}

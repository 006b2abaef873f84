package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/originfs/originfs/pkg/client"
	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/originfs"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Save a credential for later commands",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				token, err = readToken()
				if err != nil {
					return err
				}
			}
			if token == "" {
				return errors.New("empty token")
			}

			transport = client.New(client.Config{BaseURL: cfg.URL, Timeout: cfg.Timeout, AuthToken: token})
			fs := originfs.New(originfs.Config{Remote: transport})
			paths, err := fs.ListPaths(cmd.Context())
			if err != nil {
				return fmt.Errorf("verify token: %w", err)
			}

			if err := client.SaveToken(&client.TokenFile{Token: token, Server: cfg.URL, SavedAt: time.Now()}); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Printf("Logged in as %s (%d paths). Token saved to %s\n",
				valueStyle.Render(fs.Owner()), len(paths), client.TokenFilePath())
			if exp, ok := client.TokenExpiry(token); ok {
				fmt.Println(mutedStyle.Render("expires " + exp.Local().Format(time.RFC1123)))
			}
			return nil
		},
	}
}

// readToken prompts for a token, hiding input on a terminal.
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Print("Token: ")
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the saved credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.DeleteToken(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("delete token: %w", err)
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func pathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "List every indexed path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := openFS()
			if err != nil {
				return err
			}
			paths, err := fs.ListPaths(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List the children of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := workDir
			if len(args) == 1 {
				dir = resolve(args[0])
			}
			fs, err := openFS()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			names, err := fs.ListDir(ctx, dir)
			if err != nil {
				return err
			}
			sort.Strings(names)

			if !long {
				for _, name := range names {
					fmt.Println(displayName(name, isFolder(ctx, fs, originfs.JoinPath(dir, name))))
				}
				return nil
			}

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rec, err := fs.ReadRecord(ctx, originfs.JoinPath(dir, name))
				if errors.Is(err, originfs.ErrNotFound) {
					// Implied by a deeper path without a record of its own.
					rows = append(rows, []string{displayName(name, true), "-", "-", "-"})
					continue
				}
				if err != nil {
					return err
				}
				kind := rec.Type
				if rec.IsFolder() {
					kind = "folder"
				}
				rows = append(rows, []string{
					displayName(name, rec.IsFolder()),
					kind,
					formatSize(rec.Size),
					formatTime(rec.Edited),
				})
			}
			fmt.Println(listingTable(rows))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show type, size and edit time")
	return cmd
}

// isFolder reports whether path has children, without fetching records.
func isFolder(ctx context.Context, fs *originfs.Client, path string) bool {
	children, err := fs.ListDir(ctx, path)
	return err == nil && len(children) > 0
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print the content of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := openFS()
			if err != nil {
				return err
			}
			text, err := fs.ReadContent(cmd.Context(), resolve(args[0]))
			if err != nil {
				return err
			}
			fmt.Print(text)
			if !strings.HasSuffix(text, "\n") && term.IsTerminal(int(os.Stdout.Fd())) {
				fmt.Println()
			}
			return nil
		},
	}
}

// dataArg returns args[i], or stdin when it is absent or "-".
func dataArg(args []string, i int) (string, error) {
	if len(args) > i && args[i] != "-" {
		return args[i], nil
	}
	if len(args) <= i && term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <path> [data|-]",
		Short: "Replace the content of an existing file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := dataArg(args, 1)
			if err != nil {
				return err
			}
			return mutate(cmd, func(ctx context.Context, fs *originfs.Client) error {
				return fs.Write(ctx, resolve(args[0]), data)
			})
		},
	}
}

func touchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <path> [data|-]",
		Short: "Create a file, with any missing parent folders",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := dataArg(args, 1)
			if err != nil {
				return err
			}
			return mutate(cmd, func(ctx context.Context, fs *originfs.Client) error {
				return fs.CreateFile(ctx, resolve(args[0]), data)
			})
		},
	}
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create folders, with any missing parents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(ctx context.Context, fs *originfs.Client) error {
				for _, p := range args {
					if err := fs.CreateFolder(ctx, resolve(p)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <old> <new>",
		Short: "Rename or move a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(ctx context.Context, fs *originfs.Client) error {
				return fs.Rename(ctx, resolve(args[0]), resolve(args[1]))
			})
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove files or folders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(ctx context.Context, fs *originfs.Client) error {
				for _, p := range args {
					if err := fs.Remove(ctx, resolve(p)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func statCmd() *cobra.Command {
	var byID string
	cmd := &cobra.Command{
		Use:   "stat <path> | --id <id>",
		Short: "Show a record's metadata",
		Args: func(cmd *cobra.Command, args []string) error {
			if byID != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := openFS()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var rec *models.Record
			var path string
			if byID != "" {
				if rec, err = fs.StatID(ctx, byID); err != nil {
					return err
				}
				if path, err = fs.GetPath(ctx, byID); err != nil {
					return err
				}
			} else {
				path = resolve(args[0])
				if rec, err = fs.ReadRecord(ctx, path); err != nil {
					return err
				}
			}
			fmt.Print(statBlock(path, rec))
			return nil
		},
	}
	cmd.Flags().StringVar(&byID, "id", "", "look the record up by identifier")
	return cmd
}

func existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <path>",
		Short: "Exit 0 when the path is indexed, 1 otherwise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := openFS()
			if err != nil {
				return err
			}
			if !fs.Exists(cmd.Context(), resolve(args[0])) {
				os.Exit(1)
			}
			return nil
		},
	}
}

func idCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id <path>",
		Short: "Print the identifier stored for a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := openFS()
			if err != nil {
				return err
			}
			id, err := fs.GetID(cmd.Context(), resolve(args[0]))
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}

func pathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path <id>",
		Short: "Print the path of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := openFS()
			if err != nil {
				return err
			}
			p, err := fs.GetPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(p)
			return nil
		},
	}
}

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/absfs/kvfs"
)

func newLsCmd(s *session) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				names, err := fs.ReadDir(ctx, dir)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !long {
					for _, name := range names {
						fmt.Fprintln(out, path.Base(name))
					}
					return nil
				}

				table := newTable(out, "MODE", "TYPE", "SIZE", "ID", "NAME")
				for _, name := range names {
					info, err := fs.Lstat(ctx, name)
					if err != nil {
						return err
					}
					display := info.Name()
					if info.Type() == kvfs.TypeSymlink {
						target, err := fs.Readlink(ctx, name)
						if err != nil {
							return err
						}
						display += " -> " + target
					}
					table.Append([]string{
						info.Mode().String(),
						string(info.Type()),
						strconv.FormatInt(info.Size(), 10),
						info.ID().String(),
						display,
					})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show mode, type, size and id")
	return cmd
}

func newCatCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "cat path...",
		Short: "Print file contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				for _, name := range args {
					data, err := fs.ReadFile(ctx, name)
					if err != nil {
						return err
					}
					if _, err := cmd.OutOrStdout().Write(data); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newPutCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "put path [source]",
		Short: "Write a file from a host file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 2 && args[1] != "-" {
				data, err = os.ReadFile(args[1])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return errors.Wrap(err, "reading source")
			}
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				return fs.WriteFile(ctx, args[0], data)
			})
		},
	}
}

func newMkdirCmd(s *session) *cobra.Command {
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkdir path...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				for _, name := range args {
					var err error
					if parents {
						err = fs.MkdirAll(ctx, name)
					} else {
						err = fs.Mkdir(ctx, name)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parents, keep existing directories")
	return cmd
}

func newRmCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rm path...",
		Short: "Remove files, links or whole directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				for _, name := range args {
					if err := fs.Unlink(ctx, name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newStatCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stat path",
		Short: "Describe an inode without following a final symlink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				info, err := fs.Lstat(ctx, args[0])
				if err != nil {
					return err
				}
				pairs := [][2]string{
					{"Path", kvfs.ParsePath(args[0]).String()},
					{"Type", string(info.Type())},
					{"Mode", info.Mode().String()},
					{"Size", strconv.FormatInt(info.Size(), 10)},
					{"ID", info.ID().String()},
				}
				if info.Type() == kvfs.TypeSymlink {
					target, err := fs.Readlink(ctx, args[0])
					if err != nil {
						return err
					}
					pairs = append(pairs, [2]string{"Target", target})
				}
				table := newTable(cmd.OutOrStdout())
				for _, p := range pairs {
					table.Append([]string{p[0] + ":", p[1]})
				}
				table.Render()
				return nil
			})
		},
	}
}

func newLnCmd(s *session) *cobra.Command {
	var symbolic bool
	cmd := &cobra.Command{
		Use:   "ln -s target link",
		Short: "Create a symbolic link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !symbolic {
				return errors.New("hard links are not supported, use -s")
			}
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				return fs.Symlink(ctx, args[0], args[1])
			})
		},
	}
	cmd.Flags().BoolVarP(&symbolic, "symbolic", "s", false, "make a symbolic link")
	return cmd
}

func newReadlinkCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "readlink path",
		Short: "Print a symlink target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				target, err := fs.Readlink(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), target)
				return nil
			})
		},
	}
}

func newChmodCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "chmod mode path...",
		Short: "Change permission bits, given in octal",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := strconv.ParseUint(args[0], 8, 32)
			if err != nil {
				return errors.Wrapf(err, "invalid mode %q", args[0])
			}
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				for _, name := range args[1:] {
					if err := fs.Chmod(ctx, name, os.FileMode(mode)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newMvCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mv old new",
		Short: "Rename, replacing whatever new holds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				return fs.Rename(ctx, args[0], args[1])
			})
		},
	}
}

func newTreeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [path]",
		Short: "Print a directory tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "/"
			if len(args) == 1 {
				root = args[0]
			}
			return s.run(cmd, func(ctx context.Context, fs *kvfs.AsyncFS) error {
				snap := fs.Storage().Snapshot()
				defer snap.Release()

				base := len(kvfs.ParsePath(root))
				out := cmd.OutOrStdout()
				return snap.Walk(root, func(name string, info *kvfs.FileInfo, err error) error {
					if err != nil {
						return err
					}
					depth := len(kvfs.ParsePath(name)) - base
					line := info.Name()
					switch info.Type() {
					case kvfs.TypeDir:
						if depth > 0 {
							line += "/"
						}
					case kvfs.TypeSymlink:
						target, err := snap.Readlink(name)
						if err != nil {
							return err
						}
						line += " -> " + target
					}
					fmt.Fprintf(out, "%*s%s\n", depth*2, "", line)
					return nil
				})
			})
		},
	}
}

// newTable returns a borderless, left aligned table.
func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	if len(headers) > 0 {
		table.SetHeader(headers)
	}
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// Package cli wires configuration, search, mounting and playback into the
// btstrm command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X btstrm/internal/cli.Version=...".
var Version = "dev"

type options struct {
	configPath string
	logLevel   string
	player     string
	title      string
	keep       bool
	impd       bool
	noCache    bool
}

// Execute runs the command tree under a context cancelled by SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree := newCommandTree()
	err := tree.root.ExecuteContext(ctx)
	if tree.rt != nil {
		tree.rt.close(ctx)
	}
	report(tree.root.ErrOrStderr(), err)
	return err
}

// report prints a diagnostic for failures the user did not cause. Interrupts
// and aborted selections exit quietly.
func report(w io.Writer, err error) {
	if err == nil || ExitCode(err) == ExitOK || errors.Is(err, context.Canceled) {
		return
	}
	_, _ = fmt.Fprintln(w, "Error:", err)
}

// commandTree keeps the runtime built by whichever command ran, so Execute can
// close it on every exit path. PersistentPostRun is skipped on errors.
type commandTree struct {
	root *cobra.Command
	rt   *runtime
}

func newCommandTree() *commandTree {
	opts := &options{}
	tree := &commandTree{}

	cmd := &cobra.Command{
		Use:   "btstrm [flags] [URI|query...]",
		Short: "Search Jackett, mount a torrent with btfs and stream it to a player",
		Long: `btstrm streams a torrent without waiting for the download.

Give it a magnet URI, a .torrent file, a Jackett download link, or a free-text
query. Queries are sent to every configured Jackett indexer and the results are
offered in fzf. The chosen torrent is mounted with btfs and its video files are
handed to the first available player.`,
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			rt, err := newRuntime(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			tree.rt = rt
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.title == "" {
				return cmd.Help()
			}
			return tree.rt.play(cmd.Context(), opts, args)
		},
	}
	cmd.SetVersionTemplate("btstrm version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/btstrm/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false, "bypass the search result cache")

	cmd.Flags().StringVarP(&opts.player, "player", "p", "", "player command line to launch")
	cmd.Flags().BoolVarP(&opts.keep, "keep", "k", false, "keep downloaded files after the session")
	cmd.Flags().BoolVarP(&opts.impd, "impd", "i", false, "add fully downloaded files into impd")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "look up alternative titles on TMDB first")

	cmd.AddCommand(newSearchCmd(tree))
	cmd.AddCommand(newIndexersCmd(tree))
	cmd.AddCommand(newHistoryCmd(tree))
	cmd.AddCommand(newScanCmd(tree))
	cmd.AddCommand(newVersionCmd())

	tree.root = cmd
	return tree
}

package cli

import (
	"fmt"
	"runtime/debug"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"btstrm/internal/mount"
	"btstrm/internal/picker"
)

func newSearchCmd(tree *commandTree) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY...",
		Short: "Print ranked search results without mounting anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := tree.rt.search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(result) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No torrents found.")
				return err
			}
			for _, row := range picker.Rows(result) {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), row); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newIndexersCmd(tree *commandTree) *cobra.Command {
	return &cobra.Command{
		Use:   "indexers",
		Short: "List the indexers configured in Jackett",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			indexers, err := tree.rt.jackett.ListIndexers(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range indexers {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newHistoryCmd(tree *commandTree) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent playback sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store := tree.rt.historyStore(ctx)
			defer store.Close(ctx)

			records, err := store.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "STARTED\tDURATION\tOUTCOME\tEXIT\tTITLE")
			for _, rec := range records {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					rec.StartedAt.Local().Format(time.DateTime),
					rec.Duration().Round(time.Second),
					rec.Outcome,
					rec.ExitCode,
					rec.Title,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to show")
	return cmd
}

func newScanCmd(tree *commandTree) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [DIR]",
		Short: "List fully downloaded files (defaults to the btfs data directory)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := tree.rt.cfg.Mount.DataDir()
			if len(args) == 1 {
				dir = args[0]
			}
			files, err := mount.CompletedFiles(tree.rt.fs, dir, tree.rt.logger)
			if err != nil {
				return err
			}
			for _, path := range files {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			goVersion := "unknown"
			if info, ok := debug.ReadBuildInfo(); ok {
				goVersion = info.GoVersion
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "btstrm %s (%s)\n", Version, goVersion)
			return err
		},
	}
}

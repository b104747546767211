package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/comalice/commando/internal/production"
)

var historyCmd = &cobra.Command{
	Use:   "history [pilot-id]",
	Short: "Show recorded pilot snapshots",
	Long: `Show the snapshots recorded by a pilot run with --persist bolt.

Without a pilot ID, lists the pilots with recorded snapshots.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var (
	historyDB    string
	historyLimit int
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyDB, "db", "", "Snapshot database (default: <persistence.path>/pilot.db)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show only the last n snapshots (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDB
	if path == "" {
		path = filepath.Join(viper.GetString("persistence.path"), production.BoltFileName)
	}
	store, err := production.OpenBoltPersister(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		pilots, err := store.Pilots(ctx)
		if err != nil {
			return err
		}
		for _, id := range pilots {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	history, err := store.History(ctx, args[0], historyLimit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tEVENT\tSTATE\tVELOCITY")
	for _, s := range history {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			s.Sequence, s.Timestamp.Format(time.RFC3339), s.LastEvent, s.State, s.Velocity)
	}
	return w.Flush()
}

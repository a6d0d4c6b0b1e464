// Command keelctl inspects and maintains a keel record store from the
// command line. It connects directly to the underlying database, so it
// can be run while the owning process is down (for example to inspect
// permanently failed records after an incident).
package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
	"github.com/xraph/keel/storage/bunstore"
)

var (
	dbPath string
	dbDSN  string
)

func main() {
	root := &cobra.Command{
		Use:           "keelctl",
		Short:         "Inspect and maintain a keel record store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to a SQLite database file")
	root.PersistentFlags().StringVar(&dbDSN, "dsn", "", "PostgreSQL connection string")

	root.AddCommand(listCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(pruneCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "keelctl:", err)
		os.Exit(1)
	}
}

// open connects to whichever backend the flags select. Exactly one of
// --db and --dsn must be set.
func open() (*bunstore.DB, error) {
	switch {
	case dbPath != "" && dbDSN != "":
		return nil, fmt.Errorf("--db and --dsn are mutually exclusive")
	case dbPath != "":
		return bunstore.OpenSQLite(dbPath)
	case dbDSN != "":
		return bunstore.OpenPostgres(dbDSN)
	default:
		return nil, fmt.Errorf("one of --db or --dsn is required")
	}
}

func listCmd() *cobra.Command {
	var label, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records for a label, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			statuses := []record.Status{
				record.StatusReady,
				record.StatusRunning,
				record.StatusPermanentlyFailed,
				record.StatusObsolete,
			}
			if status != "" {
				st := record.ParseStatus(status)
				if st == record.StatusUnknown {
					return fmt.Errorf("unknown status %q", status)
				}
				statuses = []record.Status{st}
			}

			var recs []*record.Record
			err = db.Read(ctx, func(tx storage.Tx) error {
				for _, st := range statuses {
					rs, err := db.AllWithStatus(ctx, tx, label, st)
					if err != nil {
						return err
					}
					recs = append(recs, rs...)
				}
				return nil
			})
			if err != nil {
				return err
			}
			sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tFAILURES\tEXCLUSIVE\tUPDATED")
			for _, r := range recs {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
					r.ID, r.Status, r.FailureCount, r.ExclusiveProcessID,
					r.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "record label")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (ready, running, permanently_failed, obsolete)")
	cmd.MarkFlagRequired("label")
	return cmd
}

func statusCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record counts per status for a label",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			var counts map[record.Status]int64
			err = db.Read(ctx, func(tx storage.Tx) error {
				var err error
				counts, err = db.Counts(ctx, tx, label)
				return err
			})
			if err != nil {
				return err
			}

			statuses := make([]string, 0, len(counts))
			for st := range counts {
				statuses = append(statuses, string(st))
			}
			sort.Strings(statuses)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, st := range statuses {
				fmt.Fprintf(w, "%s\t%d\n", st, counts[record.Status(st)])
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "record label")
	cmd.MarkFlagRequired("label")
	return cmd
}

func pruneCmd() *cobra.Command {
	var label, processID string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete terminal records and records owned by other processes",
		Long: `Prune deletes records that can never run again: records in a
terminal status, and ready records bound exclusively to a process other
than --process-id. This mirrors the cleanup a queue performs at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			var pruned int
			err = db.Write(ctx, func(tx storage.Tx) error {
				stale, err := db.Stale(ctx, tx, label, processID)
				if err != nil {
					return err
				}
				for _, r := range stale {
					if err := db.Delete(ctx, tx, r.ID); err != nil {
						return err
					}
				}
				pruned = len(stale)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d record(s)\n", pruned)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "record label")
	cmd.Flags().StringVar(&processID, "process-id", "", "treat this process ID as the surviving owner")
	cmd.MarkFlagRequired("label")
	return cmd
}

package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"example.com/mergington/internal/config"
	"example.com/mergington/internal/outbox"
	"example.com/mergington/internal/persistence"
)

var dlqLimit int

var errNeedsPostgres = errors.New("the outbox requires STORE_DRIVER=postgres")

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect registration events that failed to reach Kafka",
}

var dlqListCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List dead-lettered registration events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDLQ(cmd, func(dlq *outbox.DLQ) error {
			entries, err := dlq.List(cmd.Context(), dlqLimit)
			if err != nil {
				printError("list dlq", err)
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEVENT\tTYPE\tACTIVITY\tPARKED\tREASON")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n", e.ID, e.EventID, e.EventType, e.AggregateID, e.CreatedAt.Format(time.RFC3339), e.Reason)
			}
			return w.Flush()
		})
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Move dead-lettered events back into the outbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDLQ(cmd, func(dlq *outbox.DLQ) error {
			n, err := dlq.Replay(cmd.Context(), dlqLimit)
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d events\n", n)
			if err != nil {
				printError("replay", err)
			}
			return err
		})
	},
}

func init() {
	outboxCmd.PersistentFlags().IntVar(&dlqLimit, "limit", 50, "maximum entries to process")
	outboxCmd.AddCommand(dlqListCmd, replayCmd)
	rootCmd.AddCommand(outboxCmd)
}

func withDLQ(cmd *cobra.Command, fn func(*outbox.DLQ) error) error {
	return withBackend(cmd.Context(), func(backend *persistence.Backend, cfg config.Config) error {
		if cfg.StoreDriver != config.DriverPostgres || backend.Pool == nil {
			return errNeedsPostgres
		}
		return fn(outbox.NewDLQ(backend.Pool))
	})
}

package cmd

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/service"
)

var (
	eventsAfter uint64
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the change feed and rebuild its projections",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List change events after a sequence number",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeDB(gdb)

		page, err := service.NewChangeFeedService(store.Events).Changes(cmd.Context(), eventsAfter, eventsLimit)
		if err != nil {
			return err
		}
		writeEvents(cmd.OutOrStdout(), page)
		return nil
	},
}

var eventsReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Index every job again and drop cached reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, "production-cli")
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.projector.Reindex(cmd.Context(), reindexBatchSize)
		log.Info().Int("indexed", n).Msg("Reindexed jobs")
		return err
	},
}

func init() {
	eventsListCmd.Flags().Uint64Var(&eventsAfter, "after", 0, "sequence to start after")
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 100, "maximum number of events")

	eventsCmd.AddCommand(eventsListCmd, eventsReindexCmd)
	rootCmd.AddCommand(eventsCmd)
}

func writeEvents(w io.Writer, page *service.ChangePage) {
	if len(page.Events) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no events"))
		return
	}
	fmt.Fprintln(w, headStyle.Render(fmt.Sprintf("%-8s  %-24s  %-36s  %s", "SEQ", "TYPE", "AGGREGATE", "OCCURRED")))
	for _, ev := range page.Events {
		fmt.Fprintln(w, eventLine(ev))
	}
	if page.HasMore {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("more events follow, continue with --after %d", page.Next)))
	}
}

func eventLine(ev models.ChangeEvent) string {
	return fmt.Sprintf("%-8d  %-24s  %-36s  %s", ev.Sequence, ev.EventType, ev.AggregateID, ev.OccurredAt.Format("2006-01-02 15:04:05"))
}

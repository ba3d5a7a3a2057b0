package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hookrelay/packages/journal"
	"github.com/abdul-hamid-achik/hookrelay/packages/keys"
)

var (
	journalLimitFlag int
	journalKeyFlag   string
	journalJSONFlag  bool
)

var journalCmd = &cobra.Command{
	Use:   "journal <file>",
	Short: "Show recent events from a relay journal",
	Long: `Show recent push, poll, miss, evict and expire events recorded by
'hookrelay serve --journal <file>'. Newest events come first.

Examples:
  hookrelay journal relay.db
  hookrelay journal relay.db --key orders --limit 20
  hookrelay journal relay.db --json`,
	Args: exactArgs(1),
	RunE: journalCommand,
}

func init() {
	journalCmd.Flags().IntVarP(&journalLimitFlag, "limit", "n", getEnvInt("HOOKRELAY_JOURNAL_LIMIT", 50), "Number of events to show (env: HOOKRELAY_JOURNAL_LIMIT)")
	journalCmd.Flags().StringVarP(&journalKeyFlag, "key", "k", "", "Only show events for this key")
	journalCmd.Flags().BoolVar(&journalJSONFlag, "json", false, "Print JSON")
}

func journalCommand(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		return usageError(fmt.Errorf("journal not found: %w", err))
	}

	j, err := journal.Open(args[0])
	if err != nil {
		return configError(err)
	}
	defer j.Close()

	key := ""
	if journalKeyFlag != "" {
		key = keys.FromArg(journalKeyFlag)
	}

	events, err := j.Recent(cmd.Context(), key, journalLimitFlag)
	if err != nil {
		return err
	}

	newFormatter(cmd, journalJSONFlag, false).FormatEvents(events)
	return nil
}

package cmd

import (
	"github.com/spf13/cobra"
)

var statsJSONFlag bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache occupancy and traffic of a running relay",
	Long: `Show cache occupancy, eviction counts and latency percentiles of a running relay.

Examples:
  hookrelay stats
  hookrelay stats --relay http://relay.internal:8080 --json`,
	Args: exactArgs(0),
	RunE: statsCommand,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSONFlag, "json", false, "Print JSON")
}

func statsCommand(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	st, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}

	newFormatter(cmd, statsJSONFlag, false).FormatStats(st)
	return nil
}

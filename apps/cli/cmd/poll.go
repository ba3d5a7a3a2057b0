package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hookrelay/packages/capture"
	"github.com/abdul-hamid-achik/hookrelay/packages/client"
	"github.com/abdul-hamid-achik/hookrelay/packages/keys"
	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

var (
	pollWaitFlag     string
	pollIntervalFlag string
	pollQueryFlags   []string
	pollSchemaFlag   string
	pollJSONFlag     bool
	pollVerboseFlag  bool
)

var pollCmd = &cobra.Command{
	Use:   "poll <key>",
	Short: "Take everything captured under <key>",
	Long: `Fetch and remove every request captured under <key>, oldest first.

Exits with status 1 when nothing was captured, or when --schema is given and a
body does not match it.

Examples:
  hookrelay poll orders
  hookrelay poll orders --wait 30s
  hookrelay poll orders --query body.id --query headers.x-signature
  hookrelay poll orders --schema order.schema.json --json`,
	Args: exactArgs(1),
	RunE: pollCommand,
}

func init() {
	pollCmd.Flags().StringVar(&pollWaitFlag, "wait", "", "Keep polling up to this long for something to arrive (e.g. 30s)")
	pollCmd.Flags().StringVar(&pollIntervalFlag, "interval", "500ms", "Delay between polls with --wait")
	pollCmd.Flags().StringArrayVar(&pollQueryFlags, "query", nil, "Print only this gjson path of each request (repeatable)")
	pollCmd.Flags().StringVar(&pollSchemaFlag, "schema", "", "Validate each body against this JSON schema file")
	pollCmd.Flags().BoolVar(&pollJSONFlag, "json", false, "Print JSON")
	pollCmd.Flags().BoolVarP(&pollVerboseFlag, "verbose", "v", false, "Show protocol and headers")
}

func pollCommand(cmd *cobra.Command, args []string) error {
	var schema []byte
	if pollSchemaFlag != "" {
		data, err := os.ReadFile(pollSchemaFlag)
		if err != nil {
			return usageError(fmt.Errorf("failed to read schema file: %w", err))
		}
		schema = data
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	key := args[0]
	snaps, err := fetch(cmd.Context(), c, key)
	if err != nil {
		return err
	}

	formatter := newFormatter(cmd, pollJSONFlag, pollVerboseFlag)
	if len(pollQueryFlags) > 0 {
		rows := make([]map[string]any, len(snaps))
		for i, s := range snaps {
			rows[i] = capture.ExtractAll(s, pollQueryFlags)
		}
		formatter.FormatValues(pollQueryFlags, rows)
	} else {
		formatter.FormatSnapshots(snaps)
	}

	if schema != nil {
		var failures []string
		for i, s := range snaps {
			if err := capture.ValidateBody(schema, s); err != nil {
				failures = append(failures, fmt.Sprintf("#%d: %v", i+1, err))
			}
		}
		if len(failures) > 0 {
			return fmt.Errorf("%w\n  %s", capture.ErrSchemaMismatch, strings.Join(failures, "\n  "))
		}
	}
	return nil
}

func fetch(ctx context.Context, c *client.Client, key string) ([]snapshot.Snapshot, error) {
	if pollWaitFlag == "" {
		snaps, ok, err := c.Poll(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w under %s", client.ErrNotFound, keys.FromArg(key))
		}
		return snaps, nil
	}

	wait, err := time.ParseDuration(pollWaitFlag)
	if err != nil {
		return nil, usageError(fmt.Errorf("invalid wait value %q: %w", pollWaitFlag, err))
	}
	interval, err := time.ParseDuration(pollIntervalFlag)
	if err != nil {
		return nil, usageError(fmt.Errorf("invalid interval value %q: %w", pollIntervalFlag, err))
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return c.WaitPoll(ctx, key, interval)
}

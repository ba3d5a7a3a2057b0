package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hookrelay/packages/client"
	"github.com/abdul-hamid-achik/hookrelay/packages/output"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	relayURLFlag string
	timeoutFlag  string
	noColorFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "hookrelay",
	Short: "Capture requests now, poll them later.",
	Long: `hookrelay is a request-capture relay for integration testing.

Point a webhook or async callback at /push/<key> and every request sent
there is captured. Poll /poll/<key> later to receive everything captured
under that key, oldest first. Polling drains the key.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		output.NewConsoleFormatter(output.WithWriter(os.Stderr), output.WithNoColor(noColorFlag)).FormatError(err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&relayURLFlag, "relay", "r", getEnvString("HOOKRELAY_URL", "http://127.0.0.1:8080"), "Relay base URL (env: HOOKRELAY_URL)")
	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "timeout", getEnvString("HOOKRELAY_TIMEOUT", "30s"), "Request timeout (env: HOOKRELAY_TIMEOUT)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("HOOKRELAY_NO_COLOR", false), "Disable colored output (env: HOOKRELAY_NO_COLOR)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

// newClient builds a relay client from the persistent flags
func newClient() (*client.Client, error) {
	timeout, err := time.ParseDuration(timeoutFlag)
	if err != nil {
		return nil, usageError(fmt.Errorf("invalid timeout value %q: %w", timeoutFlag, err))
	}
	c, err := client.NewClient(relayURLFlag, client.WithTimeout(timeout))
	if err != nil {
		return nil, usageError(err)
	}
	return c, nil
}

func newFormatter(cmd *cobra.Command, jsonOut, verbose bool) output.Formatter {
	if jsonOut {
		return output.NewJSONFormatter(output.JSONWithWriter(cmd.OutOrStdout()))
	}
	return output.NewConsoleFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithVerbose(verbose),
		output.WithNoColor(noColorFlag),
	)
}

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hookrelay/packages/client"
	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

var (
	pushMethodFlag  string
	pushDataFlag    string
	pushHeaderFlags []string
	pushQueryFlag   string
	pushJSONFlag    bool
)

var pushCmd = &cobra.Command{
	Use:   "push <key>",
	Short: "Send a request to /push/<key>",
	Long: `Send a request to the relay and print the snapshot it captured.

Use --data @file to send a file, or --data @- to read the body from stdin.

Examples:
  hookrelay push orders --data '{"id": 1}' -H 'Content-Type: application/json'
  hookrelay push orders -X PUT --data @payload.json
  hookrelay push ping --query 'a=b&c=d'`,
	Args: exactArgs(1),
	RunE: pushCommand,
}

func init() {
	pushCmd.Flags().StringVarP(&pushMethodFlag, "method", "X", "", "HTTP method (default POST with data, GET without)")
	pushCmd.Flags().StringVarP(&pushDataFlag, "data", "d", "", "Request body, @file or @- for stdin")
	pushCmd.Flags().StringArrayVarP(&pushHeaderFlags, "header", "H", nil, "Header as 'Name: value' (repeatable)")
	pushCmd.Flags().StringVarP(&pushQueryFlag, "query", "q", "", "Raw query string")
	pushCmd.Flags().BoolVar(&pushJSONFlag, "json", false, "Print JSON")
}

func pushCommand(cmd *cobra.Command, args []string) error {
	headers, err := parseHeaders(pushHeaderFlags)
	if err != nil {
		return usageError(err)
	}

	body, err := readData(cmd.InOrStdin(), pushDataFlag)
	if err != nil {
		return usageError(err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	snap, err := c.Push(cmd.Context(), client.PushRequest{
		Key:     args[0],
		Method:  strings.ToUpper(pushMethodFlag),
		Body:    body,
		Headers: headers,
		Query:   pushQueryFlag,
	})
	if err != nil {
		return err
	}

	newFormatter(cmd, pushJSONFlag, true).FormatSnapshots([]snapshot.Snapshot{*snap})
	return nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func readData(stdin io.Reader, data string) (string, error) {
	switch {
	case data == "@-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(b), nil
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return "", fmt.Errorf("failed to read data file: %w", err)
		}
		return string(b), nil
	}
	return data, nil
}

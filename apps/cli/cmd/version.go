package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionJSONFlag bool

// versionInfo is printed by 'hookrelay version --json'
type versionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the hookrelay version, build time and the Go toolchain and platform
it was built for. Include this output when reporting relay issues.`,
	Args: exactArgs(0),
	RunE: versionCommand,
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSONFlag, "json", false, "Print JSON")
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:   version,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func versionCommand(cmd *cobra.Command, args []string) error {
	info := currentVersion()
	out := cmd.OutOrStdout()

	if versionJSONFlag {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}

	fmt.Fprintf(out, "hookrelay version %s\n", info.Version)
	fmt.Fprintf(out, "Built:    %s\n", info.BuildTime)
	fmt.Fprintf(out, "Go:       %s\n", info.GoVersion)
	fmt.Fprintf(out, "Platform: %s\n", info.Platform)
	return nil
}

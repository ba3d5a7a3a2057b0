package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// completionShells maps a shell name to its script generator
var completionShells = map[string]func(root *cobra.Command, w io.Writer) error{
	"bash": func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
	"zsh":  func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
	"fish": func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	"powershell": func(root *cobra.Command, w io.Writer) error {
		return root.GenPowerShellCompletionWithDesc(w)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion bash|zsh|fish|powershell",
	Short: "Generate shell completion scripts",
	Long: `Print a completion script for hookrelay. Key arguments are not completed,
only commands and flags.

  bash:        source <(hookrelay completion bash)
  zsh:         hookrelay completion zsh > "${fpath[1]}/_hookrelay"
  fish:        hookrelay completion fish | source
  powershell:  hookrelay completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, ok := completionShells[args[0]]
		if !ok {
			return usageError(fmt.Errorf("unsupported shell %q", args[0]))
		}
		return gen(cmd.Root(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// Command stylize runs neural style transfer on images.
//
// Usage:
//
//	stylize run -s settings.yaml -o out.png frame.png
//	stylize encode -s settings.yaml style.png style.f16
//	stylize inspect nets/transfer.yaml
//	stylize env
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/styletransfer"
	"github.com/gogpu/styletransfer/capture"
	"github.com/gogpu/styletransfer/config"
)

func main() {
	if err := NewCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewCLI returns the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stylize",
		Short: "Neural style transfer for rendered frames",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			styletransfer.SetLogger(newLogger(os.Stderr, logLevel(verbose)))
			if config.CaptureDir != "" {
				capture.Register(capture.NewTraceProvider(config.CaptureDir))
			}
			return nil
		},
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information")

	rootCmd.AddCommand(
		NewRunCmd(),
		NewEncodeCmd(),
		NewInspectCmd(),
		NewEnvCmd(),
	)
	return rootCmd
}

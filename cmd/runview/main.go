// cmd/runview: 终端渲染 run 转录 JSON。
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "runview",
		Short:         "Render agent run transcripts in the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML config file")

	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newClassifyCmd())
	return rootCmd
}

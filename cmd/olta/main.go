// Command olta runs and inspects the olta collaborative session server.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/olta-dev/olta/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
   ___  _ _
  / _ \| | |_ __ _
 | (_) | |  _/ _' |
  \___/|_|\__\__,_|
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "olta",
		Short: "Real-time collaborative session-state server",
		Long: `olta keeps the shared state of collaborative sessions ("processes")
in memory, broadcasts every change to the websocket clients of the
session, and persists snapshots to a durable store in the background.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default olta.yaml if present)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		serveCmd(),
		inspectCmd(),
		benchCmd(),
		versionCmd(),
	)
	return rootCmd
}

// printBanner prints the olta banner.
func printBanner() {
	fmt.Print(color.CyanString(banner))
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("%s %s\n", color.YellowString("⚠"), fmt.Sprintf(format, args...))
}

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Persistent flags available to all subcommands
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "interceptd",
	Short: "interceptd intercepts HTTP requests and checks expectations on them",
	Long: `interceptd runs an HTTP interceptor server. Test processes open a session
over a WebSocket, declare request handlers with restrictions, delays and
expected call counts, and point their HTTP clients at the session base URL.

Configuration can be provided via flags, environment variables (INTERCEPTD_*),
a local .interceptdrc.yaml, or a global config file in the user config
directory.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Main()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

// Main runs the root command with os.Args and returns the process exit code.
func Main() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

// Execute runs the root command and exits on error.
// This is called by main.main().
func Execute() {
	os.Exit(Main())
}

package cli

import (
	"fmt"

	"github.com/getmockd/interceptd/pkg/cli/internal/output"
	"github.com/getmockd/interceptd/pkg/config"
	"github.com/spf13/cobra"
)

// ValidateResult is the JSON output of validate for one file.
type ValidateResult struct {
	File     string `json:"file"`
	Valid    bool   `json:"valid"`
	Handlers int    `json:"handlers,omitempty"`
	Error    string `json:"error,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Validate handler files without starting a server",
	Long: `Validate handler files against the handler file schema and check method
tokens, handler paths, durations and call counts.`,
	Example: `  interceptd validate api.yaml
  interceptd validate --json handlers/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results := make([]ValidateResult, 0, len(args))
		invalid := 0
		for _, path := range args {
			res := ValidateResult{File: path}
			file, err := config.LoadHandlerFile(path)
			if err != nil {
				res.Error = err.Error()
				invalid++
			} else {
				res.Valid = true
				res.Handlers = len(file.Handlers)
			}
			results = append(results, res)
		}

		if jsonOutput {
			if err := output.JSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
		} else {
			for _, res := range results {
				if res.Valid {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d handlers)\n", res.File, res.Handlers)
				} else {
					fmt.Fprintln(cmd.ErrOrStderr(), res.Error)
				}
			}
		}

		if invalid > 0 {
			return fmt.Errorf("%d of %d handler files invalid", invalid, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

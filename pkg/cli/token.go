package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/getmockd/interceptd/pkg/cli/internal/output"
	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/server"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage session tokens",
}

var tokenCreateFlags struct {
	secret  string
	subject string
	ttl     time.Duration
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a signed session token",
	Long: `Create an HS256 token accepted by a server configured with the same token
secret. The secret comes from --secret, INTERCEPTD_TOKEN_SECRET or the
tokenSecret config key.`,
	Example: `  INTERCEPTD_TOKEN_SECRET=s3cret interceptd token create --subject ci --ttl 2h`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &tokenCreateFlags
		secret := f.secret
		if secret == "" {
			cfg, err := config.LoadAll()
			if err != nil {
				return err
			}
			secret = cfg.TokenSecret
		}
		if secret == "" {
			return ErrNoTokenSecret
		}
		if f.ttl < 0 {
			return fmt.Errorf("--ttl must not be negative")
		}

		token, err := server.NewToken([]byte(secret), f.subject, f.ttl)
		if err != nil {
			return err
		}
		if f.ttl == 0 {
			output.Warn(cmd.ErrOrStderr(), "token never expires")
		}

		if jsonOutput {
			out := map[string]any{"token": token, "subject": f.subject}
			if f.ttl > 0 {
				out["expiresAt"] = time.Now().Add(f.ttl).UTC().Format(time.RFC3339)
			}
			return output.JSON(cmd.OutOrStdout(), out)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenCreateCmd)

	host, _ := os.Hostname()
	f := &tokenCreateFlags
	tokenCreateCmd.Flags().StringVar(&f.secret, "secret", "", "Token secret (default: configured tokenSecret)")
	tokenCreateCmd.Flags().StringVar(&f.subject, "subject", host, "Token subject")
	tokenCreateCmd.Flags().DurationVar(&f.ttl, "ttl", 24*time.Hour, "Token lifetime; 0 never expires")
}

package cmd

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
	"github.com/brocaar/basicstation-testserver/internal/config"
	"github.com/brocaar/basicstation-testserver/internal/token"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [router id]",
	Short: "Print a tc.key / cups.key token for the given router",
	Long: `Print a bearer token, signed with backend.basic_station.auth.token_secret,
in the HTTP header format expected by Basic Station in the tc.key and cups.key files.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := config.C.Backend.BasicStation.Auth.TokenSecret
		if secret == "" {
			return errors.New("backend.basic_station.auth.token_secret is not configured")
		}

		var router structs.EUI64
		if err := router.UnmarshalText([]byte(args[0])); err != nil {
			return errors.Wrap(err, "parse router id error")
		}

		tok, err := token.New(secret, router, tokenTTL)
		if err != nil {
			return errors.Wrap(err, "new token error")
		}

		fmt.Println(token.HeaderLine(tok))
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (0 = no expiration)")
}

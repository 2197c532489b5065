package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/lectio/lectio/devserver"
	"github.com/lectio/lectio/pkg/clierr"
	"github.com/spf13/cobra"
)

// devserverCmd runs the in-memory backend for local development.
func devserverCmd() *cobra.Command {
	var addr, seedUser string
	var accessTTL time.Duration
	var analysisLag int

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory development backend",
		Long:  "Run an in-memory backend that issues rotating tokens and walks uploaded lectures from pending to done.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := devserver.New(
				devserver.WithTokenTTL(accessTTL, 0),
				devserver.WithAnalysisLag(analysisLag),
			)
			if seedUser != "" {
				email, password, ok := strings.Cut(seedUser, ":")
				if !ok || email == "" || password == "" {
					return clierr.New(clierr.Validation, "--user must look like email:password.", nil)
				}
				if _, err := srv.AddUser(email, password); err != nil {
					return clierr.New(clierr.Internal, "Failed to seed the user.", err)
				}
			}

			cmd.Printf("Serving the development backend on http://%s/api\n", addr)
			if err := srv.ListenAndServe(cmd.Context(), addr); err != nil {
				return clierr.New(clierr.Network, fmt.Sprintf("Failed to serve on %s.", addr), err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	cmd.Flags().StringVar(&seedUser, "user", "", "Account to create at startup, as email:password")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 15*time.Minute, "Access token lifetime")
	cmd.Flags().IntVar(&analysisLag, "analysis-lag", 0, "Analysis requests answered 404 after a lecture is done")

	return cmd
}

package cmd

import (
	"runtime"

	"github.com/lectio/lectio/config"
	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	goVersion = runtime.Version()
	platform  = runtime.GOOS + "/" + runtime.GOARCH
)

// versionCmd prints build details and the backend this installation is
// configured for. A broken config does not fail the command.
func versionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and backend information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("lectio %s (%s, %s)\n", version, goVersion, platform)

			cfg, err := config.Load(a.configPath)
			if err != nil {
				cmd.Println("Config: unreadable:", err)
				return
			}
			if a.apiURL != "" {
				cfg.API.BaseURL = a.apiURL
			}
			cmd.Println("API:", cfg.API.BaseURL)
			cmd.Println("Session store:", cfg.Store.Backend)
		},
	}
}

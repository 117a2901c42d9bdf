package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relayhttp/relay/internal/config"
	"github.com/relayhttp/relay/internal/logging"
)

func newConfigCommand(cfg *config.Config, logger logging.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "config file:       %s\n", displayOrNone(cfg.GetConfigFile()))
			fmt.Fprintf(w, "log_level:         %s\n", cfg.LogLevel)
			fmt.Fprintf(w, "log_format:        %s\n", cfg.LogFormat)
			fmt.Fprintf(w, "timeout_seconds:   %d\n", cfg.Client.TimeoutSeconds)
			fmt.Fprintf(w, "pool_soft_limit:   %d\n", cfg.Client.PoolSoftLimit)
			fmt.Fprintf(w, "pool_hard_limit:   %d\n", cfg.Client.PoolHardLimit)
			fmt.Fprintf(w, "max_redirects:     %d\n", cfg.Client.MaxRedirects)
			fmt.Fprintf(w, "trust_env:         %t\n", cfg.Client.TrustEnv)
			fmt.Fprintf(w, "base_url:          %s\n", displayOrNone(cfg.Client.BaseURL))
			fmt.Fprintf(w, "proxy_url:         %s\n", displayOrNone(cfg.Client.ProxyURL))
			return nil
		},
	}
}

func displayOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/relayhttp/relay/relay"
	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/internal/config"
	"github.com/relayhttp/relay/internal/logging"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/rurl"
)

func newGetCommand(cfg *config.Config, logger logging.Logger) *cobra.Command {
	var headers []string
	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Send a GET request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient(cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			u, err := rurl.Parse(args[0])
			if err != nil {
				return err
			}
			req, err := message.NewRequest("GET", u, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(cmd.Context(), req, &relay.CallOptions{Headers: hdr.FromMap(parseHeaderFlags(headers))})
			if err != nil {
				return err
			}
			return printResponse(cmd, resp, cfg.CLI.OutputFormat)
		},
	}
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra request header (Key: Value), repeatable")
	return cmd
}

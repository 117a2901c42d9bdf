package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/relayhttp/relay/relay"
	"github.com/relayhttp/relay/hdr"
	"github.com/relayhttp/relay/internal/config"
	"github.com/relayhttp/relay/internal/logging"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/rurl"
)

func newPostCommand(cfg *config.Config, logger logging.Logger) *cobra.Command {
	var headers []string
	var data string
	var dataFile string
	cmd := &cobra.Command{
		Use:   "post <url>",
		Short: "Send a POST request with a body and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient(cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			payload := []byte(data)
			if dataFile != "" {
				payload, err = os.ReadFile(dataFile)
				if err != nil {
					return err
				}
			}

			u, err := rurl.Parse(args[0])
			if err != nil {
				return err
			}
			req, err := message.NewRequest("POST", u, message.NewBytesBody(payload))
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
	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body, as a literal string")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "Request body, read from a file")
	return cmd
}

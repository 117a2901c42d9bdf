package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relayhttp/relay/message"
)

func parseHeaderFlags(raw []string) map[string]string {
	out := map[string]string{}
	for _, h := range raw {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}

// printResponse renders resp to cmd's stdout in "text" (status line,
// headers, body) or "json" form.
func printResponse(cmd *cobra.Command, resp *message.Response, format string) error {
	body, err := resp.Read()
	if err != nil {
		return err
	}

	if strings.EqualFold(format, "json") {
		out := map[string]interface{}{
			"status":  resp.StatusCode,
			"reason":  resp.Reason,
			"headers": resp.Header,
			"body":    string(body),
			"hops":    len(resp.History),
		}
		enc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %d %s\n", resp.HTTPVersion, resp.StatusCode, resp.Reason)
	for k, vv := range resp.Header {
		for _, v := range vv {
			fmt.Fprintf(w, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, string(body))
	if len(resp.History) > 0 {
		fmt.Fprintf(w, "(%d earlier hop(s): redirects and auth challenges)\n", len(resp.History))
	}
	return nil
}

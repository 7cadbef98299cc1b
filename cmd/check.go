package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"apisession/pkg/challenge"
	"apisession/pkg/session"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the API server and show its authentication schemes",
		Long: `Probe the API server with an unauthenticated request and report which
authentication schemes it advertises. No credentials are sent.`,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	endpoint, err := config.endpoint()
	if err != nil {
		return err
	}

	client, err := config.sessionConfiguration().HTTPClient()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("invalid endpoint %s: %w", endpoint, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return &session.ConnectionError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	challenges := challenge.FromResponse(resp)

	fmt.Printf("Server: %s\n", endpoint)
	fmt.Printf("Status: %s\n", resp.Status)

	if resp.StatusCode != http.StatusUnauthorized {
		fmt.Println("The server accepts unauthenticated requests.")
		return nil
	}
	if len(challenges) == 0 {
		fmt.Println("The server requires authentication but advertised no schemes.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Scheme", "Parameters"})
	for _, ch := range challenges {
		t.AppendRow(table.Row{ch.Scheme, formatParams(ch)})
	}
	t.Render()
	return nil
}

func formatParams(ch challenge.Challenge) string {
	if ch.Token68 != "" {
		return "(token data)"
	}
	out := ""
	for _, key := range ch.Params.Keys() {
		value, _ := ch.Params.Get(key)
		if out != "" {
			out += ", "
		}
		out += key + "=" + value
	}
	return out
}

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"apisession/pkg/secretstore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List stored OIDC credentials",
		Long: `List the OIDC credentials stored on this machine, with their expiry
and whether they can be refreshed without a new login.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := secretstore.NewFileStore(config.StoreDir)
	if err != nil {
		return err
	}

	creds, err := store.List()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Println("No stored credentials.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Authority", "Client ID", "Access Token", "Refreshable", "Stored"})
	for _, cred := range creds {
		t.AppendRow(table.Row{
			cred.Authority,
			cred.ClientID,
			expiryStatus(cred),
			yesNo(cred.RefreshToken != ""),
			cred.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	t.Render()
	return nil
}

func expiryStatus(cred *secretstore.Credential) string {
	switch {
	case cred.AccessToken == "":
		return "none"
	case cred.Expiry.IsZero():
		return "valid"
	case time.Now().After(cred.Expiry):
		return "expired"
	default:
		return "valid until " + cred.Expiry.Local().Format("15:04:05")
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

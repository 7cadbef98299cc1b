package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"apisession/pkg/secretstore"
)

var logoutAll bool

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout [authority] [client-id]",
		Short: "Delete stored OIDC credentials",
		Long: `Delete the stored OIDC credential for the given authority and client
ID, or all stored credentials with --all. The provider session is not
revoked; only the local copy is removed.`,
		Args: cobra.MaximumNArgs(2),
		RunE: runLogout,
	}
	cmd.Flags().BoolVar(&logoutAll, "all", false, "delete every stored credential")
	return cmd
}

func runLogout(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := secretstore.NewFileStore(config.StoreDir)
	if err != nil {
		return err
	}

	if logoutAll {
		creds, err := store.List()
		if err != nil {
			return err
		}
		for _, cred := range creds {
			if err := store.Delete(secretstore.Key(cred.Authority, cred.ClientID)); err != nil {
				return err
			}
		}
		fmt.Printf("Deleted %d stored credential(s).\n", len(creds))
		return nil
	}

	authority := config.OIDC.Authority
	clientID := config.OIDC.ClientID
	if len(args) > 0 {
		authority = args[0]
	}
	if len(args) > 1 {
		clientID = args[1]
	}
	if authority == "" || clientID == "" {
		return fmt.Errorf("no credential identified: pass authority and client ID, configure them, or use --all")
	}

	if err := store.Delete(secretstore.Key(authority, clientID)); err != nil {
		return err
	}
	fmt.Printf("Deleted the stored credential for %s.\n", authority)
	return nil
}

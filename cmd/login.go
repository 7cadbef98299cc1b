package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"apisession/pkg/oidc"
	"apisession/pkg/secretstore"
	"apisession/pkg/session"
)

var (
	loginAnonymous    bool
	loginUsername     string
	loginPassword     string
	loginOIDC         bool
	loginRefreshToken string
	loginStored       bool
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate to the configured API server",
		Long: `Authenticate to the configured API server and verify the session.

The authentication method is chosen with flags and matched against the
schemes the server advertises:

  apisession login --anonymous             # no credentials
  apisession login --username alice        # Basic or NTLM, as advertised
  apisession login --oidc                  # OIDC browser login
  apisession login --oidc --stored         # reuse a stored OIDC credential
  apisession login --oidc --refresh-token <token>

OIDC credentials are persisted so later runs can use --stored.`,
		RunE: runLogin,
	}

	cmd.Flags().BoolVar(&loginAnonymous, "anonymous", false, "connect without credentials")
	cmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username for Basic or NTLM authentication")
	cmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password for Basic or NTLM authentication")
	cmd.Flags().BoolVar(&loginOIDC, "oidc", false, "authenticate via OIDC")
	cmd.Flags().StringVar(&loginRefreshToken, "refresh-token", "", "seed OIDC with an existing refresh token")
	cmd.Flags().BoolVar(&loginStored, "stored", false, "reuse the stored OIDC credential instead of logging in")

	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	endpoint, err := config.endpoint()
	if err != nil {
		return err
	}

	builder := session.NewBuilder(endpoint, config.sessionConfiguration())
	if err := configureBuilder(builder, config); err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Connecting to %s...", endpoint)
	s.Start()
	sess, err := builder.Connect(cmd.Context())
	s.Stop()
	if err != nil {
		return err
	}
	defer sess.Close()

	if warning := sess.Warning(); warning != "" {
		fmt.Printf("Warning: %s\n", warning)
	}

	if scheme := sess.Scheme(); scheme != "" {
		fmt.Printf("Connected to %s using %s authentication.\n", endpoint, scheme)
	} else {
		fmt.Printf("Connected to %s anonymously.\n", endpoint)
	}

	if tokens := sess.TokenManager(); tokens != nil {
		printIdentity(cmd, tokens)
	}
	return nil
}

// configureBuilder applies exactly one authentication method from the
// flags.
func configureBuilder(builder *session.Builder, config Config) error {
	switch {
	case loginAnonymous:
		return builder.WithAnonymous()

	case loginUsername != "":
		return builder.WithCredentials(loginUsername, loginPassword)

	case loginOIDC:
		opts := config.oidcOptions()
		store, err := secretstore.NewFileStore(config.StoreDir)
		if err != nil {
			return err
		}
		opts.Store = store
		opts.WatchStore = true

		switch {
		case loginRefreshToken != "":
			return builder.WithOIDCRefreshToken(opts, loginRefreshToken)
		case loginStored:
			return builder.WithStoredOIDCToken(opts)
		default:
			return builder.WithOIDC(opts)
		}

	default:
		return fmt.Errorf("no authentication method selected: use --anonymous, --username, or --oidc")
	}
}

// printIdentity shows who the OIDC login authenticated as, based on the
// ID token claims.
func printIdentity(cmd *cobra.Command, tokens *oidc.TokenManager) {
	claims, err := tokens.IDTokenClaims(cmd.Context())
	if err != nil {
		return
	}

	if sub, ok := claims["sub"].(string); ok {
		line := "Logged in as " + sub
		if email, ok := claims["email"].(string); ok {
			line += " (" + email + ")"
		}
		fmt.Println(line)
	}
	if exp, ok := claims["exp"].(time.Time); ok {
		fmt.Printf("Token expires at %s\n", exp.Local().Format(time.RFC1123))
	}
}

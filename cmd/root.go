package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"apisession/pkg/logging"
	"apisession/pkg/oidc"
	"apisession/pkg/session"
)

// Exit codes for CLI commands. These follow common conventions so scripts
// can react to the failure class.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates a login is required before the
	// command can succeed.
	ExitCodeAuthRequired = 2
	// ExitCodeConnectionFailed indicates the server could not be reached.
	ExitCodeConnectionFailed = 3
)

var (
	flagConfigPath string
	flagEndpoint   string
	flagVerbose    bool
	flagDebug      bool
)

// rootCmd is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "apisession",
	Short: "Authenticate to API servers that negotiate their scheme",
	Long: `apisession connects to API servers that advertise their supported
authentication schemes via WWW-Authenticate challenges. It negotiates
Basic, NTLM/Negotiate, or OIDC bearer authentication, keeps OIDC tokens
fresh, and stores credentials for later sessions.`,
	// SilenceUsage prevents Cobra from printing the usage message on
	// errors the application already reports.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelWarn
		if flagVerbose {
			level = logging.LevelInfo
		}
		if flagDebug {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "apisession version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error to its semantic exit code.
func getExitCode(err error) int {
	var reauth *oidc.ReauthenticationRequiredError
	if errors.As(err, &reauth) {
		return ExitCodeAuthRequired
	}

	var connErr *session.ConnectionError
	var timeoutErr *session.TimeoutError
	if errors.As(err, &connErr) || errors.As(err, &timeoutErr) {
		return ExitCodeConnectionFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file (default is $HOME/.config/apisession/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "API server URL (overrides the configured endpoint)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable informational output")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug output")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newVersionCmd())
}

package cli

import (
	"os"

	"github.com/spf13/cobra"

	"qrelay/internal/client"
	"qrelay/internal/constants"
	"qrelay/internal/logger"
)

const version = "0.1.0"

var (
	serverURL string
	logLevel  string
	interval  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qrelay",
	Short: "qrelay - send images between devices through a short-lived session",
	Long: `qrelay pairs a receiver and a sender through a short-lived session on a
relay server. The receiver shows a link and QR code, the sender opens it and
uploads images, and every image is delivered once and then deleted.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.New(logger.Config{Level: logLevel, Pretty: true, Output: cmd.ErrOrStderr()})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultServer := os.Getenv("QRELAY_SERVER")
	if defaultServer == "" {
		defaultServer = constants.DefaultServerURL
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "relay server URL (env QRELAY_SERVER)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&interval, "interval", constants.DefaultPollInterval.String(), "poll interval")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func newClient(base string) *client.Client {
	if base == "" {
		base = serverURL
	}
	return client.New(base)
}

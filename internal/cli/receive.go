package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qrelay/internal/client"
)

var (
	outDir string
	noQR   bool
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Open a session and save incoming images",
	Long: `Create a session on the relay, print its link and QR code, and save
every image the sender uploads until interrupted or the session ends.`,
	Args: cobra.NoArgs,
	RunE: runReceive,
}

func init() {
	receiveCmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to save images into")
	receiveCmd.Flags().BoolVar(&noQR, "no-qr", false, "do not print the QR code")
	rootCmd.AddCommand(receiveCmd)
}

func runReceive(cmd *cobra.Command, args []string) error {
	every, err := time.ParseDuration(interval)
	if err != nil {
		return fmt.Errorf("invalid --interval: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return client.Receive(ctx, newClient(""), client.ReceiveOptions{
		OutDir:   outDir,
		Interval: every,
		ShowQR:   !noQR,
		Out:      cmd.OutOrStdout(),
	})
}

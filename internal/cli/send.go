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
	sessionRef string
	screenshot bool
	display    int
)

var sendCmd = &cobra.Command{
	Use:   "send [files...]",
	Short: "Upload images to a receiver",
	Long: `Join the receiver's session and upload the given image files, or a
screenshot of the current display with --screenshot. Without --session the
link is read from standard input.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sessionRef, "session", "s", "", "session link or id shown by the receiver")
	sendCmd.Flags().BoolVar(&screenshot, "screenshot", false, "capture and send the current display")
	sendCmd.Flags().IntVar(&display, "display", 0, "display index for --screenshot")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !screenshot {
		return fmt.Errorf("give at least one file or --screenshot")
	}
	every, err := time.ParseDuration(interval)
	if err != nil {
		return fmt.Errorf("invalid --interval: %w", err)
	}

	var base, id string
	if sessionRef != "" {
		base, id, err = client.ParseSessionRef(sessionRef)
	} else {
		base, id, err = client.PromptSession(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return client.Send(ctx, newClient(base), client.SendOptions{
		SessionID:  id,
		Files:      args,
		Screenshot: screenshot,
		Display:    display,
		Interval:   every,
		Out:        cmd.OutOrStdout(),
	})
}

package utils

import (
	"fmt"
	"time"

	"qrelay/internal/constants"
)

func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes == 0 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%02ds", minutes, seconds)
}

func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatLog returns a standardized CLI line for a transfer event.
// If emoji is empty, it is automatically selected based on the status code.
func FormatLog(emoji string, action string, statusCode int, detail string) string {
	if emoji == "" {
		switch {
		case statusCode >= 200 && statusCode < 300:
			emoji = "✅"
		case statusCode >= 400:
			emoji = "❌"
		default:
			emoji = "📥"
		}
	}

	return fmt.Sprintf("  %s %s%s %d %s%s\n",
		emoji,
		constants.ColorDim,
		action,
		statusCode,
		detail,
		constants.ColorReset,
	)
}

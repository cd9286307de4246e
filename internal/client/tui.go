package client

import (
	"fmt"
	"io"
	"strings"

	"qrelay/internal/constants"
)

const (
	ColorReset  = constants.ColorReset
	ColorBold   = constants.ColorBold
	ColorDim    = constants.ColorDim
	ColorCyan   = constants.ColorCyan
	ColorGreen  = constants.ColorGreen
	ColorYellow = constants.ColorYellow
	ColorRed    = constants.ColorRed
)

func PrintBanner(w io.Writer, subtitle string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s%sqrelay%s\n", ColorBold, ColorCyan, ColorReset)
	fmt.Fprintf(w, "  %s%s%s\n", ColorDim, subtitle, ColorReset)
	fmt.Fprintln(w)
}

func PrintHint(w io.Writer, text string) {
	fmt.Fprintf(w, "  %s%s%s\n", ColorDim, text, ColorReset)
}

func PrintField(w io.Writer, label, value, valueColor string) {
	fmt.Fprintf(w, "  %s%-12s%s %s%s%s\n", ColorDim, label, ColorReset, valueColor, value, ColorReset)
}

func PrintSep(w io.Writer) {
	fmt.Fprintf(w, "  %s%s%s\n", ColorDim, strings.Repeat("─", 50), ColorReset)
}

// PrintQR indents a block-character QR code under the banner.
func PrintQR(w io.Writer, code string) {
	for _, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func statusColor(status string) string {
	switch status {
	case "connected":
		return ColorGreen
	case "waiting_for_sender":
		return ColorYellow
	default:
		return ColorRed
	}
}

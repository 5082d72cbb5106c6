package ui

import (
	"fmt"
	"os"
)

// CreateHyperlink wraps url in an OSC 8 hyperlink unless VIP_CHECKOUT_NO_HYPERLINKS=1.
func CreateHyperlink(url, text string) string {
	if os.Getenv("VIP_CHECKOUT_NO_HYPERLINKS") == "1" || os.Getenv("TERM") == "dumb" {
		return fmt.Sprintf("%s (%s)", text, url)
	}
	return fmt.Sprintf("\x1b]8;;%s\x1b\\%s\x1b]8;;\x1b\\", url, text)
}

// IsInteractive returns true if stdout is a terminal
func IsInteractive() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

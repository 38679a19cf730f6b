package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// TermWidth returns the current terminal width, or a fallback when
// stdout is not a terminal.
func TermWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}

	return width
}

func PrintRight(text string) {
	padding := TermWidth() - len(text)
	if padding < 0 {
		padding = 0
	}

	fmt.Printf("\r%s%s", spaces(padding), text)
}

func spaces(n int) string {
	return fmt.Sprintf("%*s", n, "")
}

func ProgressBar(percent int, width int) string {
	if percent > 100 {
		percent = 100
	}
	filled := (percent * width) / 100

	return fmt.Sprintf("%s%s",
		strings.Repeat("█", filled),
		strings.Repeat(" ", width-filled),
	)
}

// DecodeStatus renders a one-line progress indicator for a multi-file
// decode, right-aligned so it does not disturb the decoded output
// streaming on the left.
func DecodeStatus(done, total int) {
	if total <= 0 {
		return
	}
	percent := (done * 100) / total

	PrintRight(fmt.Sprintf("[%s] %d/%d files", ProgressBar(percent, 20), done, total))
}

package sanitize

import "fmt"

// mIRC color numbers.
const (
	White     = 0
	Black     = 1
	Blue      = 2
	Green     = 3
	Red       = 4
	Brown     = 5
	Purple    = 6
	Orange    = 7
	Yellow    = 8
	LightGrn  = 9
	Cyan      = 10
	LightCyan = 11
	LightBlue = 12
	Pink      = 13
	Grey      = 14
	LightGrey = 15
)

func Bolden(text string) string {
	return string(Bold) + text + string(Bold)
}

// Colorize wraps text in a foreground color and resets afterwards.
func Colorize(text string, fg int) string {
	return fmt.Sprintf("%c%02d%s%c", Color, fg, text, Reset)
}

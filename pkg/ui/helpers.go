package ui

import (
	"errors"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/bimnav/internal/datasource"
)

// truncateRunesHelper truncates a string to max visual width (cells), adding suffix if needed.
// Uses go-runewidth to handle wide characters correctly.
func truncateRunesHelper(s string, maxWidth int, suffix string) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	suffixWidth := runewidth.StringWidth(suffix)
	if suffixWidth > maxWidth {
		return runewidth.Truncate(suffix, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth-suffixWidth, "") + suffix
}

// truncate truncates s to maxWidth cells with an ellipsis.
func truncate(s string, maxWidth int) string {
	return truncateRunesHelper(s, maxWidth, "…")
}

// padRight pads s with spaces to width cells.
func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// fit truncates or pads s to exactly width cells.
func fit(s string, width int) string {
	return padRight(truncate(s, width), width)
}

// count formats n with thousands separators.
func count(n int) string {
	return humanize.Comma(int64(n))
}

// placeholder is the text shown in a region whose data could not be loaded.
// Unavailable sources get a short notice; other errors are shown as is.
func placeholder(what string, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, datasource.ErrUnavailable):
		return what + " unavailable: the data source could not be reached"
	case errors.Is(err, datasource.ErrUnsupported):
		return what + " not supported by this data source"
	case errors.Is(err, datasource.ErrNotFound):
		return what + " not found"
	default:
		return what + ": " + err.Error()
	}
}

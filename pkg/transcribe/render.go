package transcribe

import (
	"fmt"
	"strings"
)

// PlainText joins the trimmed segment texts with single spaces
func PlainText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Timecoded renders one "[HH:MM:SS] text" line per segment, stamped with its start
func Timecoded(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		lines = append(lines, "["+Timecode(s.Start)+"] "+text)
	}
	return strings.Join(lines, "\n")
}

// Timecode formats whole seconds as HH:MM:SS. Fractions are truncated.
func Timecode(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	total := int(secs)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

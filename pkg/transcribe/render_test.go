package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimecode(t *testing.T) {
	tests := []struct {
		secs float64
		want string
	}{
		{0, "00:00:00"},
		{59.99, "00:00:59"},
		{61, "00:01:01"},
		{3725.9, "01:02:05"},
		{-3, "00:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Timecode(tt.secs), "secs=%v", tt.secs)
	}
}

func TestRenderings(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 4.2, Text: " Boa noite a todos."},
		{Start: 4.2, End: 5, Text: "   "},
		{Start: 65.5, End: 70, Text: "Vamos falar de caridade. "},
	}

	assert.Equal(t, "Boa noite a todos. Vamos falar de caridade.", PlainText(segments))
	assert.Equal(t, "[00:00:00] Boa noite a todos.\n[00:01:05] Vamos falar de caridade.", Timecoded(segments))
}

func TestSidecarPaths(t *testing.T) {
	plain, tc := SidecarPaths("/media/audios/palestra 01.mp3")
	assert.Equal(t, "/media/audios/palestra 01.txt", plain)
	assert.Equal(t, "/media/audios/palestra 01.timecoded.txt", tc)
}

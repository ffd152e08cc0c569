package api

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsMIDI(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        bool
	}{
		{"song.mid", "", true},
		{"song.MIDI", "application/octet-stream", true},
		{"blob", "audio/midi", true},
		{"blob", "audio/x-midi; charset=binary", true},
		{"song.mp3", "audio/mpeg", false},
		{"song.mid.txt", "text/plain", false},
		{"", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isMIDI(tt.filename, tt.contentType), "%q %q", tt.filename, tt.contentType)
	}
}

func TestGenerateFilename(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	pattern := regexp.MustCompile(`^1700000000123-\d{1,9}\.mid$`)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		name := generateFilename(now)
		assert.Regexp(t, pattern, name)
		seen[name] = struct{}{}
	}
	// Same millisecond, so uniqueness rests on the random suffix alone.
	assert.Greater(t, len(seen), 990)
}

func TestCreateUniqueUsesScratchDir(t *testing.T) {
	dir := t.TempDir()
	file, name, err := createUnique(dir)
	if assert.NoError(t, err) {
		defer file.Close()
		assert.FileExists(t, dir+"/"+name)
	}
}

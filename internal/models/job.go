package models

import (
	"time"
)

// Upload: a staged MIDI file for the lifetime of one request
type Upload struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"-"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	CreatedAt    time.Time `json:"-"`
}

// Job: one MuseScore invocation. Never persisted.
type Job struct {
	ID         string        `json:"id"`
	InputPath  string        `json:"-"`
	OutputPath string        `json:"-"`
	Timeout    time.Duration `json:"-"`
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"-"`
	Stderr     string        `json:"-"`
	Duration   time.Duration `json:"-"`
}

// Result is what a finished conversion hands back to the HTTP layer.
type Result struct {
	MusicXML     string
	OriginalName string
}

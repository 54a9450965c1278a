// Package render turns a document snapshot into a reviewable PDF artifact.
package render

import (
	"errors"
	"time"
)

const wordsPerPage = 300

// Request contains the content to render.
type Request struct {
	Title               string
	ClientName          string
	MainContent         string // HTML
	BoilerplateSections []string
	Version             int
	Date                time.Time
	Preview             bool
}

// Artifact is the rendered output.
type Artifact struct {
	Data      []byte
	FileName  string
	MimeType  string
	SizeBytes int64
	WordCount int
	PageCount int
	Duration  time.Duration
}

var (
	// ErrChromeMissing indicates no chromium binary is available for PDF rendering.
	ErrChromeMissing = errors.New("render: chromium not installed")
	// ErrEmptyContent indicates there is nothing to render.
	ErrEmptyContent = errors.New("render: empty content")
)

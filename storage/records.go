package storage

import "time"

// BuildRecord is the journal entry for one tool path build.
type BuildRecord struct {
	ID          string
	CreatedAt   time.Time
	Files       []string
	FilesRun    int
	Skipped     int
	Moves       int
	Duration    float64 // programmed machining time in seconds
	Elapsed     time.Duration
	Interrupted bool
	Error       string
}

// ResolutionRecord is the journal entry for one surface resolution request.
type ResolutionRecord struct {
	ID        string
	CreatedAt time.Time
	Hash      string
	Filename  string
	Source    string // none, cache, compute or memory
	Lookup    string // diagnostic cache lookup outcome
	Triangles int
	Elapsed   time.Duration
	Error     string
}

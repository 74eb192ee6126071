// Package logging writes the raw output of every launched process to a
// per-run directory, one file per rank.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	RunDirectoryPrefix = "testrun-"
	SummaryFilename    = "summary.log"
)

// FileLogger owns the directory of one run:
//
//	<baseDir>/testrun-<runID>/
//	  summary.log
//	  <item or fixture>/rank-<n>.log
type FileLogger struct {
	baseDir string
	logDir  string
	runID   string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFileLogger creates the run directory.
func NewFileLogger(baseDir, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", logDir, err)
	}
	return &FileLogger{
		baseDir: baseDir,
		logDir:  logDir,
		runID:   runID,
		files:   make(map[string]*os.File),
	}, nil
}

// RankOutput returns the writer for one rank of the named item or fixture.
// Launching the same label again appends to the same file, so a fixture set up
// for several tests keeps every setup in one place.
func (l *FileLogger) RankOutput(label string, rank int) (io.WriteCloser, error) {
	dir := filepath.Join(l.logDir, safeFilename(label))
	path := filepath.Join(dir, fmt.Sprintf("rank-%d.log", rank))

	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.files[path]; ok {
		return nopCloser{f}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}
	l.files[path] = f
	return nopCloser{f}, nil
}

// LogSummary writes the session summary to summary.log.
func (l *FileLogger) LogSummary(summary string) error {
	path := filepath.Join(l.logDir, SummaryFilename)
	if err := os.WriteFile(path, []byte(summary), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// Close closes every rank file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for path, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", path, err)
		}
		delete(l.files, path)
	}
	return firstErr
}

func (l *FileLogger) RunID() string  { return l.runID }
func (l *FileLogger) LogDir() string { return l.logDir }

// nopCloser hands out a shared file. The FileLogger closes it.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	r := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	return r.Replace(s)
}

// Package transcript writes finalized utterances and their translations to
// a plain text log.
package transcript

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"github.com/tphakala/livecaption/internal/errors"
)

// Log is a transcript file truncated when opened. Records are
//
//	<text>\n<translation>\n\n
//
// with the translation line omitted, leaving a single blank line, when
// there is no translation.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	count  int
	closed bool
}

// Open truncates or creates path
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fileError(err, path, "create_transcript_dir")
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fileError(err, path, "open_transcript")
	}

	return &Log{path: path, file: file, w: bufio.NewWriter(file)}, nil
}

// Path returns the transcript file path
func (l *Log) Path() string {
	return l.path
}

// WriteText writes the utterance line and flushes it, so the text is on
// disk before translation starts.
func (l *Log) WriteText(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.Newf("transcript log is closed").
			Component("transcript").
			Category(errors.CategoryState).
			Build()
	}

	if _, err := l.w.WriteString(text + "\n"); err != nil {
		return fileError(err, l.path, "write_text")
	}
	if err := l.w.Flush(); err != nil {
		return fileError(err, l.path, "flush")
	}
	return nil
}

// WriteTranslation completes the record started by WriteText. An empty
// translation only terminates the record.
func (l *Log) WriteTranslation(translation string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.Newf("transcript log is closed").
			Component("transcript").
			Category(errors.CategoryState).
			Build()
	}

	record := "\n"
	if translation != "" {
		record = translation + "\n\n"
	}
	if _, err := l.w.WriteString(record); err != nil {
		return fileError(err, l.path, "write_translation")
	}
	if err := l.w.Flush(); err != nil {
		return fileError(err, l.path, "flush")
	}
	l.count++
	return nil
}

// Count returns the number of completed records
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close flushes and closes the file. Safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	flushErr := l.w.Flush()
	closeErr := l.file.Close()
	if flushErr != nil {
		return fileError(flushErr, l.path, "flush")
	}
	if closeErr != nil {
		return fileError(closeErr, l.path, "close")
	}
	return nil
}

func fileError(err error, path, operation string) error {
	return errors.New(err).
		Component("transcript").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Context("operation", operation).
		Build()
}

// Package segment decides when the running transcript forms a finished
// utterance.
package segment

import (
	"strings"
	"sync"
	"time"
)

// DefaultMinDuration is the shortest utterance that may be finalized
const DefaultMinDuration = 15 * time.Second

// Policy finalizes an utterance once at least MinDuration has passed since
// the previous one and the transcript ends with sentence punctuation.
type Policy struct {
	mu          sync.Mutex
	minDuration time.Duration
	clock       func() time.Time
	start       time.Time
}

// New returns a policy whose first utterance starts now. A nil clock uses
// time.Now; a negative minDuration is treated as zero.
func New(minDuration time.Duration, clock func() time.Time) *Policy {
	if clock == nil {
		clock = time.Now
	}
	return &Policy{
		minDuration: max(minDuration, 0),
		clock:       clock,
		start:       clock(),
	}
}

// Observe reports whether text completes the current utterance. It does
// not restart the clock; call Finalized once the utterance is handled.
func (p *Policy) Observe(text string) bool {
	if !EndsSentence(text) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock().Sub(p.start) >= p.minDuration
}

// Finalized starts the next utterance
func (p *Policy) Finalized() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = p.clock()
}

// Elapsed returns the age of the current utterance
func (p *Policy) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock().Sub(p.start)
}

// EndsSentence reports whether the trimmed text ends in '.', '?' or '!'.
func EndsSentence(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

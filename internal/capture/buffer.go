// Package capture holds the live sample stream shared between the audio
// driver callback and the recognition loop.
package capture

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// SampleWidth is the size of one 32-bit IEEE float sample in bytes
const SampleWidth = 4

// Unit is a recognition unit: a copy of the buffer taken once enough
// samples were pending. Samples never aliases the live buffer.
type Unit struct {
	Samples []float32
	Pending int       // pending count when the copy was taken
	Taken   time.Time // when the copy was taken
}

// Stats is a point-in-time view of buffer counters
type Stats struct {
	Capturing       bool
	Buffered        int    // samples currently held
	Pending         int    // samples appended since the last reset
	BlocksAccepted  uint64 // blocks appended while capturing
	BlocksDiscarded uint64 // blocks dropped because capture was stopped
	Resets          uint64
}

// StreamBuffer accumulates captured samples until the consumer resets it.
// A single mutex guards the samples, the pending count and the capturing
// flag. Producers never block on anything but that mutex.
type StreamBuffer struct {
	mu        sync.Mutex
	samples   []float32
	pending   int
	capturing bool
	// wake is closed and replaced on every append and on Stop
	wake chan struct{}

	accepted  uint64
	discarded uint64
	resets    uint64

	now func() time.Time
}

// NewStreamBuffer returns an empty, stopped buffer. capacity is a hint for
// the initial allocation in samples.
func NewStreamBuffer(capacity int) *StreamBuffer {
	return &StreamBuffer{
		samples: make([]float32, 0, max(capacity, 0)),
		wake:    make(chan struct{}),
		now:     time.Now,
	}
}

// TargetSamples returns the number of samples in interval seconds of audio
func TargetSamples(sampleRate int, interval float64) int {
	return int(math.Round(float64(sampleRate) * interval))
}

// Start enables appends
func (b *StreamBuffer) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capturing = true
}

// Stop disables appends and wakes every waiter so none of them hang.
func (b *StreamBuffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.capturing {
		return
	}
	b.capturing = false
	b.broadcastLocked()
}

// Capturing reports whether appends are enabled
func (b *StreamBuffer) Capturing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capturing
}

// Write decodes a block of little-endian float32 samples and appends it.
// Blocks written while stopped are discarded. A block whose length is not a
// multiple of SampleWidth is rejected with ErrMisalignedBlock and nothing is
// appended.
func (b *StreamBuffer) Write(block []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.capturing {
		b.discarded++
		return nil
	}
	if len(block)%SampleWidth != 0 {
		return misalignedBlockError(len(block))
	}

	n := len(block) / SampleWidth
	for i := range n {
		bits := binary.LittleEndian.Uint32(block[i*SampleWidth:])
		b.samples = append(b.samples, math.Float32frombits(bits))
	}
	b.pending += n
	b.accepted++

	if n > 0 {
		b.broadcastLocked()
	}
	return nil
}

// broadcastLocked wakes all current waiters. Caller holds mu.
func (b *StreamBuffer) broadcastLocked() {
	close(b.wake)
	b.wake = make(chan struct{})
}

// Wait blocks until at least target samples are pending, then returns a
// copy of the whole buffer. It returns ctx.Err() when ctx ends and
// ErrNotCapturing when capture is stopped before target is reached.
func (b *StreamBuffer) Wait(ctx context.Context, target int) (Unit, error) {
	for {
		b.mu.Lock()
		if b.pending >= target {
			unit := b.snapshotLocked()
			b.mu.Unlock()
			return unit, nil
		}
		if !b.capturing {
			b.mu.Unlock()
			return Unit{}, ErrNotCapturing
		}
		// taken under the lock, so an append after Unlock still closes it
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Unit{}, ctx.Err()
		case <-wake:
		}
	}
}

// Snapshot returns a copy of the buffer without waiting
func (b *StreamBuffer) Snapshot() Unit {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *StreamBuffer) snapshotLocked() Unit {
	samples := make([]float32, len(b.samples))
	copy(samples, b.samples)
	return Unit{
		Samples: samples,
		Pending: b.pending,
		Taken:   b.now(),
	}
}

// Reset discards the buffered samples and zeroes the pending count.
func (b *StreamBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
	b.pending = 0
	b.resets++
}

// Drain removes and returns the buffered samples and zeroes the pending
// count. The returned slice belongs to the caller.
func (b *StreamBuffer) Drain() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.samples
	b.samples = make([]float32, 0, cap(drained))
	b.pending = 0
	b.resets++
	return drained
}

// Pending returns the number of samples appended since the last reset
func (b *StreamBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Stats returns the current counters
func (b *StreamBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Capturing:       b.capturing,
		Buffered:        len(b.samples),
		Pending:         b.pending,
		BlocksAccepted:  b.accepted,
		BlocksDiscarded: b.discarded,
		Resets:          b.resets,
	}
}

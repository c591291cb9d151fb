package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/livecaption/internal/archive"
	"github.com/tphakala/livecaption/internal/capture"
	"github.com/tphakala/livecaption/internal/datastore"
	"github.com/tphakala/livecaption/internal/recognizer"
	"github.com/tphakala/livecaption/internal/transcript"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testRate = 16000
	unitSize = 6400 // 0.4 s at 16 kHz
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// block encodes n samples with values starting at first
func block(n int, first float32) []byte {
	buf := make([]byte, n*capture.SampleWidth)
	for i := range n {
		binary.LittleEndian.PutUint32(buf[i*capture.SampleWidth:], math.Float32bits(first+float32(i)))
	}
	return buf
}

// fakeSource writes an initial unit into the buffer when started
type fakeSource struct {
	buffer  *capture.StreamBuffer
	initial int
	errCh   chan error

	mu      sync.Mutex
	starts  int
	stops   int
	startFn func() error
}

func newFakeSource(buffer *capture.StreamBuffer, initial int) *fakeSource {
	return &fakeSource{buffer: buffer, initial: initial, errCh: make(chan error, 1)}
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	s.starts++
	startFn := s.startFn
	s.mu.Unlock()

	if startFn != nil {
		return startFn()
	}
	if s.initial > 0 {
		return s.buffer.Write(block(s.initial, 0))
	}
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSource) Errors() <-chan error { return s.errCh }

func (s *fakeSource) DeviceName() string { return "Test Microphone" }

type step struct {
	text string
	err  error
}

// scriptedRecognizer returns the script in order. Every call advances the
// clock and captures another unit of audio, as a live device would while
// recognition runs.
type scriptedRecognizer struct {
	mu     sync.Mutex
	script []step
	calls  int
	sizes  []int
	buffer *capture.StreamBuffer
	clock  *fakeClock
	tick   time.Duration
}

func (r *scriptedRecognizer) Recognize(_ context.Context, samples []float32, _ recognizer.Options) ([]string, error) {
	r.mu.Lock()
	idx := r.calls
	r.calls++
	r.sizes = append(r.sizes, len(samples))
	r.mu.Unlock()

	if idx >= len(r.script) {
		return nil, fmt.Errorf("script exhausted")
	}
	r.clock.Advance(r.tick)
	if err := r.buffer.Write(block(unitSize, float32(idx*unitSize))); err != nil {
		return nil, err
	}
	if r.script[idx].err != nil {
		return nil, r.script[idx].err
	}
	return []string{r.script[idx].text}, nil
}

func (r *scriptedRecognizer) Sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.sizes...)
}

type fakeTranslator struct {
	result string
	err    error

	mu    sync.Mutex
	texts []string
}

func (f *fakeTranslator) Translate(_ context.Context, text, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, target+":"+text)
	return f.result, f.err
}

type fakeStore struct {
	mu     sync.Mutex
	saved  []datastore.Utterance
	closed bool
}

func (f *fakeStore) Open() error { return nil }

func (f *fakeStore) Save(u *datastore.Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *u)
	return nil
}

func (f *fakeStore) Latest(int) ([]datastore.Utterance, error) { return nil, nil }

func (f *fakeStore) BySession(string) ([]datastore.Utterance, error) { return nil, nil }

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakePublisher struct {
	mu           sync.Mutex
	payloads     [][]byte
	disconnected bool
}

func (f *fakePublisher) Connect(context.Context) error { return nil }

func (f *fakePublisher) Publish(_ context.Context, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) IsConnected() bool { return true }

func (f *fakePublisher) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

type harness struct {
	session    *Session
	source     *fakeSource
	recognizer *scriptedRecognizer
	translator *fakeTranslator
	store      *fakeStore
	publisher  *fakePublisher
	clock      *fakeClock
	display    *bytes.Buffer
	transcript string
	archive    string
}

func newHarness(t *testing.T, script []step, target string) *harness {
	t.Helper()

	dir := t.TempDir()
	clock := newFakeClock()
	buffer := capture.NewStreamBuffer(testRate)

	log, err := transcript.Open(filepath.Join(dir, "temp.txt"))
	require.NoError(t, err)

	wav, err := archive.Create(filepath.Join(dir, "audio.wav"), &audio.Format{NumChannels: 1, SampleRate: testRate})
	require.NoError(t, err)

	h := &harness{
		source:     newFakeSource(buffer, unitSize),
		recognizer: &scriptedRecognizer{script: script, buffer: buffer, clock: clock, tick: 10 * time.Second},
		translator: &fakeTranslator{result: "Hei maailma."},
		store:      &fakeStore{},
		publisher:  &fakePublisher{},
		clock:      clock,
		display:    &bytes.Buffer{},
		transcript: log.Path(),
		archive:    wav.Path(),
	}

	h.session, err = New(Config{
		ID:               "test-session",
		SampleRate:       testRate,
		Interval:         0.4,
		MinDuration:      15 * time.Second,
		Language:         "en",
		TranslateTarget:  target,
		StripAnnotations: true,
		ClearScreen:      true,
	}, Deps{
		Buffer:     buffer,
		Source:     h.source,
		Recognizer: h.recognizer,
		Translator: h.translator,
		Transcript: log,
		Archive:    wav,
		Store:      h.store,
		Publisher:  h.publisher,
		Display:    h.display,
		Clock:      clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

// runUntil runs the session until cond holds, then cancels it
func (h *harness) runUntil(t *testing.T, cond func() bool) error {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- h.session.Run(ctx) }()

	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after cancellation")
		return nil
	}
}

func (h *harness) utterances() int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return len(h.store.saved)
}

func TestSessionFinalizesUtterance(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []step{
		{text: " Hello"},
		{text: " Hello world. [BLANK_AUDIO]"},
	}, "fi")

	err := h.runUntil(t, func() bool { return h.utterances() == 1 })
	require.NoError(t, err)
	require.NoError(t, h.session.Close())

	// units grow by one interval until the utterance is finalized
	assert.Equal(t, []int{unitSize, 2 * unitSize}, h.recognizer.Sizes())

	data, err := os.ReadFile(h.transcript)
	require.NoError(t, err)
	assert.Equal(t, "Hello world.\nHei maailma.\n\n", string(data))

	assert.Equal(t, []string{"fi:Hello world."}, h.translator.texts)

	require.Len(t, h.store.saved, 1)
	u := h.store.saved[0]
	assert.Equal(t, "test-session", u.SessionID)
	assert.Equal(t, 1, u.Sequence)
	assert.Equal(t, "Hello world.", u.Text)
	assert.Equal(t, "Hei maailma.", u.Translation)
	assert.Equal(t, "fi", u.Language)
	assert.Equal(t, 20*time.Second, u.FinalizedAt.Sub(u.StartedAt))
	assert.Equal(t, 3*unitSize, u.Samples)
	assert.True(t, h.store.closed)

	require.Len(t, h.publisher.payloads, 1)
	assert.Contains(t, string(h.publisher.payloads[0]), `"text":"Hello world."`)
	assert.True(t, h.publisher.disconnected)

	assert.True(t, bytes.HasPrefix(h.display.Bytes(), []byte(clearSequence+"Hello\n")))
	assert.Contains(t, h.display.String(), clearSequence+"Hello world.\n")
}

func TestSessionArchivesEveryCapturedSample(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []step{
		{text: "One."},
		{text: "Two"},
		{text: "Two."},
	}, "")

	err := h.runUntil(t, func() bool { return h.utterances() == 1 })
	require.NoError(t, err)
	require.NoError(t, h.session.Close())

	f, err := os.Open(h.archive)
	require.NoError(t, err)
	defer f.Close()

	header, err := archive.ReadHeader(f)
	require.NoError(t, err)

	// the initial unit plus one unit per recognition call, drained at the
	// finalize boundary and at close
	calls := len(h.recognizer.Sizes())
	assert.Equal(t, (1+calls)*unitSize, header.Samples())
	assert.Equal(t, header.DataSize+36, header.RIFFSize)

	data, err := os.ReadFile(h.transcript)
	require.NoError(t, err)
	assert.Equal(t, "Two.\n\n", string(data))
}

func TestSessionSkipsFailedUnits(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []step{
		{err: fmt.Errorf("backend unavailable")},
		{text: "Still here."},
	}, "fi")
	h.translator.err = fmt.Errorf("quota exceeded")

	err := h.runUntil(t, func() bool { return h.utterances() == 1 })
	require.NoError(t, err)
	require.NoError(t, h.session.Close())

	data, err := os.ReadFile(h.transcript)
	require.NoError(t, err)
	assert.Equal(t, "Still here.\n\n", string(data))
	assert.Empty(t, h.store.saved[0].Translation)
}

func TestSessionNeverFinalizesEarly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []step{{text: "Hi."}}, "")
	h.recognizer.tick = time.Second

	err := h.runUntil(t, func() bool { return len(h.recognizer.Sizes()) >= 2 })
	require.NoError(t, err)
	require.NoError(t, h.session.Close())

	assert.Zero(t, h.utterances())
	data, err := os.ReadFile(h.transcript)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestSessionStopsOnSourceError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, "")
	h.source.initial = 0
	h.source.errCh <- capture.ErrMisalignedBlock

	err := h.session.Run(t.Context())
	require.ErrorIs(t, err, capture.ErrMisalignedBlock)

	require.NoError(t, h.session.Close())
	f, err := os.Open(h.archive)
	require.NoError(t, err)
	defer f.Close()
	_, err = archive.ReadHeader(f)
	require.NoError(t, err)
}

func TestSessionStartFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, "")
	h.source.startFn = func() error { return fmt.Errorf("no device") }

	err := h.session.Run(t.Context())
	require.Error(t, err)
	assert.False(t, h.session.Buffer.Capturing())
}

func TestSessionEndsWhenCaptureStops(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, "")
	h.source.initial = 0

	done := make(chan error, 1)
	go func() { done <- h.session.Run(t.Context()) }()

	require.Eventually(t, h.session.Buffer.Capturing, time.Second, time.Millisecond)
	h.session.Buffer.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after capture stopped")
	}
}

func TestCloseRunsOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, "")

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.session.Close())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.source.stops)
	assert.False(t, h.session.Buffer.Capturing())
}

func TestStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []step{{text: "Hello."}}, "")

	err := h.runUntil(t, func() bool { return len(h.recognizer.Sizes()) >= 1 && h.session.Status().LastText != "" })
	require.NoError(t, err)

	status := h.session.Status()
	assert.Equal(t, "test-session", status.SessionID)
	assert.Equal(t, "Test Microphone", status.Device)
	assert.Equal(t, "Hello.", status.LastText)
	assert.NotEmpty(t, status.System.OS)
}

func TestNewRejectsIncompleteDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Config{SampleRate: testRate, Interval: 0.4}, Deps{})
	require.Error(t, err)

	buffer := capture.NewStreamBuffer(0)
	log, err := transcript.Open(filepath.Join(t.TempDir(), "t.txt"))
	require.NoError(t, err)
	defer log.Close()

	deps := Deps{
		Buffer:     buffer,
		Source:     newFakeSource(buffer, 0),
		Recognizer: &scriptedRecognizer{},
		Transcript: log,
	}
	_, err = New(Config{SampleRate: testRate}, deps)
	require.Error(t, err)

	s, err := New(Config{SampleRate: testRate, Interval: 0.4}, deps)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
}

func TestDisplay(t *testing.T) {
	t.Parallel()

	var clearing bytes.Buffer
	d := NewDisplay(&clearing, true)
	require.NoError(t, d.Show("one"))
	require.NoError(t, d.Show("two"))
	assert.Equal(t, clearSequence+"one\n"+clearSequence+"two\n", clearing.String())

	var plain bytes.Buffer
	d = NewDisplay(&plain, false)
	require.NoError(t, d.Show("one"))
	require.NoError(t, d.Show("two"))
	assert.Equal(t, "one\ntwo\n", plain.String())
}
